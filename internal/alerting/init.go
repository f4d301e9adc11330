package alerting

import (
	"context"

	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/logger"
)

// Service bundles the orchestrator with its ingestion queue and background
// jobs.
type Service struct {
	Orchestrator *Orchestrator
	Readings     *ReadingBus

	sweeper *PeriodicJob
	cleanup *PeriodicJob
	log     logger.Logger
}

// Initialize creates the orchestrator, starts the reading workers and
// schedules the plant sweep and history retention jobs.
func Initialize(deps Dependencies, settings *conf.AlertingSettings) *Service {
	if settings == nil {
		settings = &conf.AlertingSettings{}
	}
	orchestrator := NewOrchestrator(deps, settings)

	bus := NewReadingBus(func(ctx context.Context, r *Reading) error {
		_, err := orchestrator.TriggerFromReading(ctx, r)
		return err
	}, settings.ReadingWorkers, settings.ReadingBuffer, deps.Metrics, orchestrator.log)

	s := &Service{
		Orchestrator: orchestrator,
		Readings:     bus,
		cleanup:      NewHistoryCleanup(orchestrator, settings.HistoryRetentionDays),
		log:          orchestrator.log,
	}
	if interval := settings.SweepInterval.Std(); interval > 0 {
		s.sweeper = NewPlantSweeper(orchestrator, interval, settings.SweepTimeout.Std())
	}

	s.sweeper.Start()
	s.cleanup.Start()

	s.log.Info("alerting initialized",
		logger.Duration("dedup_window", orchestrator.suppressor.window),
		logger.Duration("sweep_interval", settings.SweepInterval.Std()),
		logger.Int("history_retention_days", settings.HistoryRetentionDays))
	return s
}

// Stop halts the background jobs and drains queued readings.
func (s *Service) Stop() {
	s.sweeper.Stop()
	s.cleanup.Stop()
	s.Readings.Stop()
}
