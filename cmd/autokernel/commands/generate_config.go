package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func newGenerateConfigCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a .config file by applying the configuration script",
		Long: `Runs the configured script against a freshly parsed Kconfig model and
writes the resulting configuration in the kernel's canonical .config
format. Any semantically invalid assignment aborts with a diagnostic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.applyConfiguredScript(); err != nil {
				return err
			}

			out := output
			if out == "" {
				out = filepath.Join(kernelDir, ".config")
			}
			s.logger.Infof("Writing kernel config (%s)", out)
			return s.bridge.WriteConfig(out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to <kernel-dir>/.config)")
	return cmd
}
