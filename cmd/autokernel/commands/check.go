package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/autokernel/autokernel/pkg/kconfig"
	"github.com/autokernel/autokernel/pkg/policy"
	"github.com/autokernel/autokernel/pkg/script"
)

func newCheckCommand() *cobra.Command {
	var compareWith string
	var policyDir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the generated config against another and run policy checks",
		Long: `Applies the configuration script, then compares the resulting
configuration against another .config file (order-independent) and
optionally evaluates Rego policies over the final symbol assignment.`,
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

			generated, err := currentConfigMap(s)
			if err != nil {
				return err
			}

			failed := false
			if compareWith != "" {
				other, err := script.ParseConfigFile(compareWith)
				if err != nil {
					return err
				}
				diffs := diffConfigs(generated, other)
				for _, d := range diffs {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				if len(diffs) > 0 {
					failed = true
					s.logger.Warnf("%d differences against %s", len(diffs), compareWith)
				} else {
					s.logger.Infof("No differences against %s", compareWith)
				}
			}

			if policyDir != "" {
				policies, err := policy.LoadDir(policyDir)
				if err != nil {
					return err
				}
				engine, err := policy.NewEngine(cmd.Context(), policies,
					s.logger.NewComponentLogger("policy").Zerolog())
				if err != nil {
					return err
				}
				result, err := engine.Evaluate(cmd.Context(), generated, s.bridge.Env("KERNELVERSION"))
				if err != nil {
					return err
				}
				if !result.Allowed {
					failed = true
				}
			}

			if failed {
				return kconfig.NewError(kconfig.KindInvalidValue, "check failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&compareWith, "compare", "", "compare against this .config file")
	cmd.Flags().StringVarP(&policyDir, "policy", "p", "", "directory of .rego policies to evaluate")
	return cmd
}

// currentConfigMap writes the live configuration to a scratch file and
// parses it back, yielding an order-independent view.
func currentConfigMap(s *session) (map[string]string, error) {
	tmp, err := os.MkdirTemp("", "autokernel")
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not create temporary directory", err)
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, ".config")
	if err := s.bridge.WriteConfig(path); err != nil {
		return nil, err
	}
	return script.ParseConfigFile(path)
}

// diffConfigs renders the differences between two config maps, one
// line per divergent symbol.
func diffConfigs(generated, other map[string]string) []string {
	names := make(map[string]bool, len(generated)+len(other))
	for k := range generated {
		names[k] = true
	}
	for k := range other {
		names[k] = true
	}

	var out []string
	for name := range names {
		g, gok := generated[name]
		o, ook := other[name]
		switch {
		case !gok:
			out = append(out, fmt.Sprintf("only in other:     CONFIG_%s=%s", name, o))
		case !ook:
			out = append(out, fmt.Sprintf("only in generated: CONFIG_%s=%s", name, g))
		case g != o:
			out = append(out, fmt.Sprintf("differs:           CONFIG_%s generated=%s other=%s", name, g, o))
		}
	}
	sort.Strings(out)
	return out
}
