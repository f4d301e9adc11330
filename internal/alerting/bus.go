package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/leafwatch/leafwatch/internal/telemetry"
)

// ReadingHandler processes one reading taken off the bus.
type ReadingHandler func(ctx context.Context, reading *Reading) error

const (
	// DefaultReadingBuffer is the capacity of the reading queue. Readings
	// are dropped when it is full so ingestion is never blocked.
	DefaultReadingBuffer = 1000
	// DefaultReadingWorkers is the number of concurrent handler goroutines.
	DefaultReadingWorkers = 4
	// readingHandleTimeout bounds a single handler invocation.
	readingHandleTimeout = 15 * time.Second
)

// ReadingBus is an async work queue between reading ingestion and alert
// evaluation. Publish is non-blocking: readings go to a buffered channel
// drained by a fixed pool of workers, so transports are never blocked by
// database writes or broadcast fan-out.
type ReadingBus struct {
	handler  ReadingHandler
	readings chan *Reading
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// mu orders Publish against Stop: no reading is enqueued once
	// stopped is set, so the drain sees every accepted reading.
	mu      sync.RWMutex
	stopped bool

	metrics *telemetry.Metrics
	log     logger.Logger
}

// NewReadingBus creates a bus and starts its workers. Non-positive sizes
// fall back to the defaults.
func NewReadingBus(handler ReadingHandler, workers, buffer int, metrics *telemetry.Metrics, log logger.Logger) *ReadingBus {
	if workers <= 0 {
		workers = DefaultReadingWorkers
	}
	if buffer <= 0 {
		buffer = DefaultReadingBuffer
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	b := &ReadingBus{
		handler:  handler,
		readings: make(chan *Reading, buffer),
		stopCh:   make(chan struct{}),
		metrics:  metrics,
		log:      log.Module("reading-bus"),
	}
	b.wg.Add(workers)
	for range workers {
		go b.worker()
	}
	return b
}

// Publish enqueues a reading. It returns false if the bus is stopped or the
// buffer is full, in which case the reading is dropped.
func (b *ReadingBus) Publish(reading *Reading) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return false
	}

	if reading.Time.IsZero() {
		reading.Time = time.Now()
	}

	select {
	case b.readings <- reading:
		return true
	default:
		b.metrics.ReadingDropped()
		b.log.Warn("reading queue full, dropping reading",
			logger.Uint64("device_id", uint64(reading.DeviceID)))
		return false
	}
}

// Stop stops accepting readings, drains the queue and waits for the
// workers to exit. Safe to call multiple times.
func (b *ReadingBus) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.stopCh)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *ReadingBus) worker() {
	defer b.wg.Done()
	for {
		select {
		case reading := <-b.readings:
			b.handle(reading)
		case <-b.stopCh:
			for {
				select {
				case reading := <-b.readings:
					b.handle(reading)
				default:
					return
				}
			}
		}
	}
}

// handle runs the handler with a deadline and panic recovery so one bad
// reading cannot kill a worker.
func (b *ReadingBus) handle(reading *Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), readingHandleTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("reading handler panicked",
				logger.Uint64("device_id", uint64(reading.DeviceID)),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := b.handler(ctx, reading); err != nil {
		b.log.Error("failed to process reading",
			logger.Uint64("device_id", uint64(reading.DeviceID)),
			logger.Error(err))
	}
}
