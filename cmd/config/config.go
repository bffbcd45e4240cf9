// Package config implements the config subcommand: print the effective
// settings after defaults, config file and environment overrides.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mandersson1024/intonation-toy-sub003/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
