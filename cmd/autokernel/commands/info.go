package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// symbolInfo is the serializable view the info command renders.
type symbolInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Value       string   `json:"value" yaml:"value"`
	Visibility  string   `json:"visibility" yaml:"visibility"`
	Prompts     []string `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	DirectDeps  string   `json:"direct_deps,omitempty" yaml:"direct_deps,omitempty"`
	ReverseDeps string   `json:"reverse_deps,omitempty" yaml:"reverse_deps,omitempty"`
	RangeMin    string   `json:"range_min,omitempty" yaml:"range_min,omitempty"`
	RangeMax    string   `json:"range_max,omitempty" yaml:"range_max,omitempty"`
}

func newInfoCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info <SYMBOL>",
		Short: "Show a symbol's type, value, prompts and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			name := kconfig.NormalizeName(args[0])
			sym, ok := s.bridge.Symbol(name)
			if !ok {
				return kconfig.NewError(kconfig.KindUnknownSymbol, "symbol does not exist").
					WithSymbol(name)
			}

			info := symbolInfo{
				Name:       sym.Name(),
				Type:       sym.Type().String(),
				Value:      sym.StringValue(),
				Visibility: sym.Visible().String(),
			}
			if prompts, err := sym.Prompts(); err == nil {
				info.Prompts = prompts
			}
			if e, err := sym.VisibilityExpr(); err == nil && e != nil {
				info.DirectDeps = e.String()
			}
			if e, err := sym.RevDepExpr(); err == nil && e != nil {
				info.ReverseDeps = e.String()
			}
			if sym.Type() == kconfig.TypeInt || sym.Type() == kconfig.TypeHex {
				lo, hi := sym.IntRange()
				if lo != 0 || hi != 0 {
					if sym.Type() == kconfig.TypeHex {
						info.RangeMin = fmt.Sprintf("0x%x", lo)
						info.RangeMax = fmt.Sprintf("0x%x", hi)
					} else {
						info.RangeMin = fmt.Sprintf("%d", lo)
						info.RangeMax = fmt.Sprintf("%d", hi)
					}
				}
			}

			return renderInfo(cmd, info, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	return cmd
}

func renderInfo(cmd *cobra.Command, info symbolInfo, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(out).Encode(info)
	case "text":
		fmt.Fprintf(out, "%s\n", info.Name)
		fmt.Fprintf(out, "  type:       %s\n", info.Type)
		fmt.Fprintf(out, "  value:      %s\n", info.Value)
		fmt.Fprintf(out, "  visibility: %s\n", info.Visibility)
		for _, p := range info.Prompts {
			fmt.Fprintf(out, "  prompt:     %s\n", p)
		}
		if info.DirectDeps != "" {
			fmt.Fprintf(out, "  depends on: %s\n", info.DirectDeps)
		}
		if info.ReverseDeps != "" {
			fmt.Fprintf(out, "  selected by: %s\n", info.ReverseDeps)
		}
		if info.RangeMin != "" {
			fmt.Fprintf(out, "  range:      [%s, %s]\n", info.RangeMin, info.RangeMax)
		}
		return nil
	}
	return kconfig.NewErrorf(kconfig.KindInvalidValue,
		"unknown format %q (expected text, json or yaml)", strings.ToLower(format))
}
