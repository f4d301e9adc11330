// Command leafwatch runs the plant and device alerting service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leafwatch",
		Short:         "Plant and sensor alerting service",
		Long:          "leafwatch evaluates device readings and watering schedules against user conditions and pushes alerts to connected clients.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (YAML)")

	root.AddCommand(newServeCmd(), newSweepCmd(), newPruneCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "leafwatch", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
