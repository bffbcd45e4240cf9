// Package cmd wires the CLI: a root command holding the shared
// configuration plus the realtime and config subcommands.
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	configcmd "github.com/mandersson1024/intonation-toy-sub003/cmd/config"
	"github.com/mandersson1024/intonation-toy-sub003/cmd/realtime"
	"github.com/mandersson1024/intonation-toy-sub003/internal/conf"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand() *cobra.Command {
	var configPath string
	var closeLog func() error
	settings := conf.Default()

	rootCmd := &cobra.Command{
		Use:           "intone",
		Short:         "Real-time pitch detection pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := conf.Load(configPath)
			if err != nil {
				return err
			}
			*settings = *loaded

			level, err := logging.ParseLevel(settings.Log.Level)
			if err != nil {
				return err
			}

			// Structured JSON goes to the rotated log file when one is
			// configured; the text logger on stderr is always on. Without
			// a file the JSON stream is discarded so stdout stays usable
			// for detection output.
			structured := io.Discard
			if settings.Log.File != "" {
				structured, closeLog, err = logging.RotatingWriter(settings.Log.File, logging.FileLoggerConfig{
					MaxSizeMB:  settings.Log.MaxSizeMB,
					MaxBackups: settings.Log.MaxBackups,
					MaxAgeDays: settings.Log.MaxAgeDays,
				})
				if err != nil {
					return err
				}
			}
			logging.Init(level, structured, nil)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: working directory, then $HOME/.config/intone)")

	rootCmd.AddCommand(
		realtime.Command(settings),
		configcmd.Command(settings),
	)
	return rootCmd
}
