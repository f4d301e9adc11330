package main

import (
	"context"
	"fmt"

	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the watering sweep once and exit",
		Long:  "Checks every active plant condition and records watering alerts. Alerts are persisted but not pushed, since no clients are connected to this process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, o *alerting.Orchestrator, a *app) error {
				alerts, err := o.ScheduledPlantSweep(ctx)
				if err != nil {
					return err
				}
				a.log.Info("sweep finished", logger.Int("alerts", len(alerts)))
				fmt.Fprintf(cmd.OutOrStdout(), "created %d watering alerts\n", len(alerts))
				return nil
			})
		},
	}
}

func newPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete alerts older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, o *alerting.Orchestrator, a *app) error {
				if days <= 0 {
					days = a.settings.Alerting.HistoryRetentionDays
				}
				if days <= 0 {
					return fmt.Errorf("retention is disabled; pass --days or set alerting.history_retention_days")
				}
				deleted, err := o.CleanupHistory(ctx, days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d alerts older than %d days\n", deleted, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to alerting.history_retention_days)")
	return cmd
}

// runOnce bootstraps without background jobs and runs fn.
func runOnce(ctx context.Context, fn func(context.Context, *alerting.Orchestrator, *app) error) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	o := alerting.NewOrchestrator(a.alertingDeps(nil), &a.settings.Alerting)
	ctx, cancel := context.WithTimeout(ctx, a.settings.Alerting.SweepTimeout.Std())
	defer cancel()
	return fn(ctx, o, a)
}
