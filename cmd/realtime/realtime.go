// Package realtime implements the realtime subcommand: run the pipeline
// on a WAV file or the synthetic sine source until interrupted.
package realtime

import (
	"github.com/spf13/cobra"

	"github.com/mandersson1024/intonation-toy-sub003/internal/conf"
	"github.com/mandersson1024/intonation-toy-sub003/internal/runner"
)

// flagValues holds command-line values separately from settings so that
// only flags the user actually set override the loaded configuration.
type flagValues struct {
	algorithm string
	metrics   bool
	listen    string
	monitor   bool
}

// Command creates the realtime command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts runner.Options
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run pitch detection on a live source",
		Long:  "Build the pipeline from configuration, attach a capture source and print detections until the source ends or an interrupt arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd, settings, &flags)
			return runner.Realtime(settings, opts)
		},
	}

	cmd.Flags().StringVar(&opts.WavPath, "wav", "", "WAV file to replay instead of the synthetic source")
	cmd.Flags().Float64Var(&opts.SineFrequency, "frequency", 440, "synthetic source frequency in Hz")
	cmd.Flags().StringVar(&flags.algorithm, "algorithm", "", "detection algorithm (autocorrelation|yin|auto)")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "enable the Prometheus metrics endpoint")
	cmd.Flags().StringVar(&flags.listen, "listen", "", "listen address for the metrics endpoint")
	cmd.Flags().BoolVar(&flags.monitor, "monitor", false, "enable host resource monitoring")
	return cmd
}

// applyFlags overrides loaded settings with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, settings *conf.Settings, flags *flagValues) {
	if cmd.Flags().Changed("algorithm") {
		settings.Pitch.Algorithm = flags.algorithm
	}
	if cmd.Flags().Changed("metrics") {
		settings.Metrics.Enabled = flags.metrics
	}
	if cmd.Flags().Changed("listen") {
		settings.Metrics.Listen = flags.listen
	}
	if cmd.Flags().Changed("monitor") {
		settings.Monitor.Enabled = flags.monitor
	}
}
