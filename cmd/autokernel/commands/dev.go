package commands

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/autokernel/autokernel/pkg/config"
)

func newDevCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch the configuration script and regenerate on change",
		Long: `Watches the configuration script named by the TOML config and
regenerates the .config on every change. The Kconfig model is re-parsed
per run, so each regeneration starts from clean defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch the directory: editors replace files on save, which
			// drops watches installed on the file itself.
			if err := watcher.Add(filepath.Dir(cfg.Config.Script)); err != nil {
				return err
			}

			logger := consoleLogger()
			regenerate := func() {
				s, err := newSession()
				if err != nil {
					logger.Error().Err(err).Msg("Could not build bridge")
					return
				}
				defer s.close()

				if err := s.host.Apply(cfg.Config.Script); err != nil {
					logger.Error().Err(err).Msg("Script failed")
					return
				}
				out := output
				if out == "" {
					out = filepath.Join(kernelDir, ".config")
				}
				if err := s.bridge.WriteConfig(out); err != nil {
					logger.Error().Err(err).Msg("Could not write config")
					return
				}
				logger.Info().Str("output", out).Msg("Regenerated kernel config")
			}

			logger.Info().Str("script", cfg.Config.Script).Msg("Watching for changes")
			regenerate()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != filepath.Clean(cfg.Config.Script) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
						continue
					}
					logger.Info().Str("event", event.Op.String()).Msg("Script changed")
					regenerate()
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to <kernel-dir>/.config)")
	return cmd
}
