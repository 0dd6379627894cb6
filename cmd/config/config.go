// Package config implements the config subcommand.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/leafnet-go/internal/conf"
)

// Command creates the config command. It prints the effective settings, or
// writes the annotated default config file with --init.
func Command(settings *conf.Settings) *cobra.Command {
	var initPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initPath != "" {
				if err := conf.WriteDefaultConfig(initPath); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", initPath)
				return err
			}

			data, err := conf.MarshalYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&initPath, "init", "", "Write the annotated default config file to this path and exit")
	_ = cmd.MarkFlagFilename("init", "yaml", "yml")

	return cmd
}
