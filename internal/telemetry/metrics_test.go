package telemetry

import (
	"testing"

	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.AlertCreated(SourceReading)
	m.AlertCreated(SourceReading)
	m.AlertCreated(SourceSweep)
	m.AlertSuppressed()
	m.BroadcastSend(ResultSent)
	m.BroadcastSend(ResultFailed)
	m.ReadingDropped()
	m.SetConnections(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.alertsCreated.WithLabelValues(SourceReading)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.alertsCreated.WithLabelValues(SourceSweep)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.alertsSuppressed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.broadcastSends.WithLabelValues(ResultFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.readingsDropped), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.connections), 0)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AlertCreated(SourceSweep)
		m.AlertSuppressed()
		m.BroadcastSend(ResultSent)
		m.ReadingDropped()
		m.SetConnections(1)
		m.ObserveSweep(0.5)
	})
	assert.Nil(t, m.Registry())
}

func TestInitSentry_NoDSNIsNoop(t *testing.T) {
	flush, err := InitSentry(conf.SentrySettings{}, "test")
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}
