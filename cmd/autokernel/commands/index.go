package commands

import (
	"github.com/spf13/cobra"

	"github.com/autokernel/autokernel/pkg/stores"
)

func newIndexCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Dump the parsed symbol table into a SQLite database",
		Long: `Parses the kernel's Kconfig tree and writes every named symbol, with
its type, default value, visibility and dependency expressions, into a
queryable SQLite database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			store, err := stores.NewSymbolStore(output)
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()

			var records []stores.SymbolRecord
			for _, sym := range s.bridge.AllSymbols() {
				if sym.Name() == "" || sym.IsConst() {
					continue
				}
				rec := stores.SymbolRecord{
					Name:       sym.Name(),
					Type:       sym.Type().String(),
					Value:      sym.StringValue(),
					Visibility: sym.Visible().String(),
					Prompts:    sym.PromptCount(),
				}
				if e, err := sym.VisibilityExpr(); err == nil && e != nil {
					rec.DirectDeps = e.String()
				}
				if e, err := sym.RevDepExpr(); err == nil && e != nil {
					rec.ReverseDeps = e.String()
				}
				records = append(records, rec)
			}

			run, err := store.WriteIndex(cmd.Context(), s.bridge.Env("KERNELVERSION"), kernelDir, records)
			if err != nil {
				return err
			}
			s.logger.Infof("Indexed %d symbols (run %s) into %s", run.Symbols, run.ID, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "autokernel-index.db", "database file to write")
	return cmd
}
