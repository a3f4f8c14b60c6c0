// Package config provides the config command for roadguard
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/esafety/roadguard/internal/conf"
)

// Command creates the command printing the effective settings.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSettings(cmd, settings)
		},
	}
}

func printSettings(cmd *cobra.Command, settings *conf.Settings) error {
	out := cmd.OutOrStdout()
	if file := conf.ConfigFileUsed(); file != "" {
		fmt.Fprintf(out, "# loaded from %s\n", file)
	} else {
		fmt.Fprintln(out, "# no configuration file found, showing defaults and environment overrides")
	}

	redacted := settings.Redacted()
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}
