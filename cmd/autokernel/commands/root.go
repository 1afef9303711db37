// Package commands implements the autokernel CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	kernelDir  string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autokernel",
		Short: "Autokernel - kernel configuration with semantic guarantees",
		Long: `Autokernel manages your kernel configuration and guarantees semantic
correctness: every symbol assignment is checked for validity against the
kernel's own Kconfig model through a native in-process bridge, so your
configuration cannot silently break across kernel updates.

Configuration programs come in three dialects: classical flat kconfig
files (.txt, .config), Lua scripts (.lua) and Starlark scripts (.star).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/autokernel/config.toml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&kernelDir, "kernel-dir", "k", "/usr/src/linux", "kernel source directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newGenerateConfigCommand())
	rootCmd.AddCommand(newSatisfyCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newIndexCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
