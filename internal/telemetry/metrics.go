// Package telemetry holds the prometheus metric set and the Sentry error
// reporter.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leafwatch"

// Alert sources recorded on the alerts_created counter.
const (
	SourceReading = "reading"
	SourceSweep   = "sweep"
)

// Broadcast send results.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics is the service's prometheus metric set. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	alertsCreated    *prometheus.CounterVec
	alertsSuppressed prometheus.Counter
	broadcastSends   *prometheus.CounterVec
	readingsDropped  prometheus.Counter
	connections      prometheus.Gauge
	sweepDuration    prometheus.Histogram
	registry         *prometheus.Registry
}

// NewMetrics creates the metric set and registers it on a fresh registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts persisted, by trigger source.",
		}, []string{"source"}),
		alertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Condition matches dropped as recent duplicates.",
		}),
		broadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Per-recipient broadcast sends, by result.",
		}, []string{"result"}),
		readingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Readings dropped because the ingestion queue was full.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Currently registered realtime client connections.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plant_sweep_duration_seconds",
			Help:      "Duration of scheduled plant sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	collectors := []prometheus.Collector{
		m.alertsCreated, m.alertsSuppressed, m.broadcastSends,
		m.readingsDropped, m.connections, m.sweepDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AlertCreated counts a persisted alert.
func (m *Metrics) AlertCreated(source string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(source).Inc()
}

// AlertSuppressed counts a match dropped by duplicate suppression.
func (m *Metrics) AlertSuppressed() {
	if m == nil {
		return
	}
	m.alertsSuppressed.Inc()
}

// BroadcastSend counts one recipient send attempt.
func (m *Metrics) BroadcastSend(result string) {
	if m == nil {
		return
	}
	m.broadcastSends.WithLabelValues(result).Inc()
}

// ReadingDropped counts a reading rejected by a full ingestion queue.
func (m *Metrics) ReadingDropped() {
	if m == nil {
		return
	}
	m.readingsDropped.Inc()
}

// SetConnections records the current connection count.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// ObserveSweep records how long a plant sweep took, in seconds.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
