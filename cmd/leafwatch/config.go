package main

import (
	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := conf.Load(configFile)
			if err != nil {
				return err
			}
			settings.Sentry.DSN = redact(settings.Sentry.DSN)
			settings.MQTT.Password = redact(settings.MQTT.Password)
			settings.Database.DSN = redact(settings.Database.DSN)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
