package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autokernel/autokernel/pkg/kconfig"
	"github.com/autokernel/autokernel/pkg/satisfier"
	"github.com/autokernel/autokernel/pkg/telemetry"
)

func newSatisfyCommand() *cobra.Command {
	var recursive bool
	var ignoreConfig bool

	cmd := &cobra.Command{
		Use:   "satisfy <SYMBOL>[=<value>]",
		Short: "Compute the assignments required before a symbol can be set",
		Long: `Evaluates the dependencies of the given symbol and prints the ordered
list of assignments that must be applied before the symbol itself can
be set to the desired value (default y). The output is a ready-to-use
fragment for the scripted dialect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, rawValue := args[0], "y"
			if name, v, found := strings.Cut(args[0], "="); found {
				symbol, rawValue = name, v
			}
			desired, err := kconfig.ParseTristate(rawValue)
			if err != nil || desired == kconfig.No {
				return kconfig.NewErrorf(kconfig.KindInvalidValue,
					"invalid symbol value %q (expected m or y)", rawValue)
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			if !ignoreConfig {
				if err := s.applyConfiguredScript(); err != nil {
					return err
				}
			}

			s.logger.Infof("Trying to satisfy %s=%s...", kconfig.NormalizeName(symbol), desired)
			start := time.Now()
			_, span := s.tracer.StartSatisfySpan(cmd.Context(), kconfig.NormalizeName(symbol), desired.String())
			steps, err := s.host.Satisfy(symbol, desired, recursive)
			telemetry.EndSpan(span, err)
			s.metrics.ObserveSatisfierRun(time.Since(start), string(kconfig.KindOf(err)))
			if err != nil {
				printAmbiguity(cmd, err)
				return err
			}
			if len(steps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "-- Nothing to do :)")
				return nil
			}

			printSatisfyModule(cmd, symbol, desired, steps)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recursively satisfy dependencies of encountered symbols")
	cmd.Flags().BoolVarP(&ignoreConfig, "ignore-config", "i", false, "run the solver directly on default values, without applying the script first")
	return cmd
}

// printSatisfyModule renders the assignments as a scripted-dialect
// fragment, grouped into dependency-ordered sections.
func printSatisfyModule(cmd *cobra.Command, symbol string, desired kconfig.Tristate, steps []satisfier.Assignment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "-- satisfying configuration for %s=%s\n", kconfig.NormalizeName(symbol), desired)
	fmt.Fprintf(out, "-- generated on %s\n", time.Now().Format(time.RFC3339))
	for i, step := range steps {
		if i == 0 || steps[i-1].Value != step.Value {
			fmt.Fprintf(out, "\n-- value %s, in dependency order\n", step.Value)
		}
		fmt.Fprintf(out, "%s(%q)\n", step.Symbol, step.Value.String())
	}
}

// printAmbiguity renders the alternatives of an ambiguous solution.
func printAmbiguity(cmd *cobra.Command, err error) {
	e, ok := err.(*kconfig.Error)
	if !ok || e.Kind != kconfig.KindAmbiguousChoice {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "-- automatic solution is ambiguous; requires manual action")
	for _, note := range e.Notes {
		fmt.Fprintf(out, "--   %s\n", note)
	}
}
