package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

const (
	// DefaultSweepTimeout bounds one plant sweep.
	DefaultSweepTimeout = 30 * time.Second
	// cleanupInterval is how often history retention runs.
	cleanupInterval = 1 * time.Hour
	// cleanupTimeout bounds one history deletion.
	cleanupTimeout = 30 * time.Second
)

// PeriodicJob runs a function on a fixed interval, each run under its own
// timeout so a hung run cannot block the next one.
type PeriodicJob struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
	log      logger.Logger

	// firstDelay, when set, replaces the first interval wait after Start.
	firstDelay func(ctx context.Context) time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewPeriodicJob creates a stopped job.
func NewPeriodicJob(name string, interval, timeout time.Duration, run func(ctx context.Context) error, log logger.Logger) *PeriodicJob {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PeriodicJob{
		name:     name,
		interval: interval,
		timeout:  timeout,
		run:      run,
		log:      log.With(logger.String("job", name)),
	}
}

// NewPlantSweeper schedules ScheduledPlantSweep every interval. The first
// sweep after Start runs one interval after the newest sweep alert, or
// immediately when that is already overdue, so restarts neither skip nor
// repeat a sweep.
func NewPlantSweeper(o *Orchestrator, interval, timeout time.Duration) *PeriodicJob {
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	job := NewPeriodicJob("plant-sweep", interval, timeout, func(ctx context.Context) error {
		_, err := o.ScheduledPlantSweep(ctx)
		return err
	}, o.log)
	job.firstDelay = func(ctx context.Context) time.Duration {
		return o.firstSweepDelay(ctx, interval)
	}
	return job
}

// firstSweepDelay is how long to wait before the first sweep. Sweeps that
// created nothing leave no row, so the newest sweep alert is a lower bound
// on the last sweep. Lookup failures fall back to a full interval.
func (o *Orchestrator) firstSweepDelay(ctx context.Context, interval time.Duration) time.Duration {
	latest, err := o.alerts.LatestPlantAlert(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return 0
		}
		o.log.Warn("failed to look up last plant sweep", logger.Error(err))
		return interval
	}
	return sweepDelay(latest.Time, o.now(), interval)
}

// sweepDelay is the time left until one interval has passed since last,
// clamped to [0, interval].
func sweepDelay(last, now time.Time, interval time.Duration) time.Duration {
	remaining := interval - now.Sub(last)
	switch {
	case remaining < 0:
		return 0
	case remaining > interval:
		return interval
	}
	return remaining
}

// NewHistoryCleanup schedules deletion of alerts older than retentionDays.
// It returns nil when retention is disabled.
func NewHistoryCleanup(o *Orchestrator, retentionDays int) *PeriodicJob {
	if retentionDays <= 0 {
		return nil
	}
	return NewPeriodicJob("history-cleanup", cleanupInterval, cleanupTimeout, func(ctx context.Context) error {
		_, err := o.CleanupHistory(ctx, retentionDays)
		return err
	}, o.log)
}

// Start launches the job goroutine. Starting a running job restarts it.
// Calling Start on a nil job is a no-op.
func (j *PeriodicJob) Start() {
	if j == nil {
		return
	}
	j.Stop()

	j.mu.Lock()
	j.stopCh = make(chan struct{})
	j.done = make(chan struct{})
	stopCh, done := j.stopCh, j.done
	j.mu.Unlock()

	go func() {
		defer close(done)
		if j.firstDelay != nil && !j.waitFirst(stopCh) {
			return
		}
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.RunOnce()
			case <-stopCh:
				return
			}
		}
	}()
	j.log.Info("periodic job started", logger.Duration("interval", j.interval))
}

// waitFirst sleeps for firstDelay and runs the job once. It returns false
// if the job was stopped first.
func (j *PeriodicJob) waitFirst(stopCh <-chan struct{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	delay := j.firstDelay(ctx)
	cancel()

	if delay > 0 {
		j.log.Debug("first run scheduled", logger.Duration("delay", delay))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		j.RunOnce()
		return true
	case <-stopCh:
		return false
	}
}

// RunOnce executes the job immediately under its timeout.
func (j *PeriodicJob) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.run(ctx); err != nil {
		j.log.Error("periodic job failed", logger.Error(err))
	}
}

// Stop signals the goroutine to exit and waits for an in-flight run.
// The nil-check-then-close happens under mu so concurrent Stop calls
// cannot double-close.
func (j *PeriodicJob) Stop() {
	if j == nil {
		return
	}
	j.mu.Lock()
	stopCh, done := j.stopCh, j.done
	j.stopCh, j.done = nil, nil
	j.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}
