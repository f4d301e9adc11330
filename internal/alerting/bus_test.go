package alerting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leafwatch/leafwatch/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingBus_PublishAndHandle(t *testing.T) {
	var received atomic.Pointer[Reading]
	bus := NewReadingBus(func(_ context.Context, r *Reading) error {
		received.Store(r)
		return nil
	}, 1, 10, nil, testLogger())
	defer bus.Stop()

	ok := bus.Publish(&Reading{DeviceID: 7, Temperature: f64(21.5)})
	require.True(t, ok)

	require.Eventually(t, func() bool { return received.Load() != nil }, time.Second, 5*time.Millisecond)
	got := received.Load()
	assert.Equal(t, uint(7), got.DeviceID)
	assert.False(t, got.Time.IsZero(), "publish stamps a missing time")
}

func TestReadingBus_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	bus := NewReadingBus(func(_ context.Context, _ *Reading) error {
		<-release
		handled.Add(1)
		return nil
	}, 1, 2, nil, testLogger())

	// First reading occupies the only worker; the next two fill the buffer.
	require.True(t, bus.Publish(&Reading{DeviceID: 1}))
	require.Eventually(t, func() bool { return len(bus.readings) == 0 }, time.Second, time.Millisecond)
	require.True(t, bus.Publish(&Reading{DeviceID: 2}))
	require.True(t, bus.Publish(&Reading{DeviceID: 3}))

	assert.False(t, bus.Publish(&Reading{DeviceID: 4}), "full buffer drops")

	close(release)
	bus.Stop()
	assert.Equal(t, int32(3), handled.Load())
}

func TestReadingBus_StopDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var seen []uint
	gate := make(chan struct{})
	bus := NewReadingBus(func(_ context.Context, r *Reading) error {
		<-gate
		mu.Lock()
		seen = append(seen, r.DeviceID)
		mu.Unlock()
		return nil
	}, 1, 10, nil, testLogger())

	for i := range 5 {
		require.True(t, bus.Publish(&Reading{DeviceID: uint(i + 1)}))
	}
	close(gate)
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	assert.False(t, bus.Publish(&Reading{DeviceID: 9}), "stopped bus rejects readings")
}

func TestReadingBus_SurvivesPanicsAndErrors(t *testing.T) {
	var calls atomic.Int32
	bus := NewReadingBus(func(_ context.Context, r *Reading) error {
		calls.Add(1)
		switch r.DeviceID {
		case 1:
			panic("boom")
		case 2:
			return errors.New("storage down")
		}
		return nil
	}, 1, 10, nil, testLogger())
	defer bus.Stop()

	bus.Publish(&Reading{DeviceID: 1})
	bus.Publish(&Reading{DeviceID: 2})
	bus.Publish(&Reading{DeviceID: 3})

	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestReadingBus_HandlerGetsDeadline(t *testing.T) {
	hasDeadline := make(chan bool, 1)
	bus := NewReadingBus(func(ctx context.Context, _ *Reading) error {
		_, ok := ctx.Deadline()
		hasDeadline <- ok
		return nil
	}, 1, 1, nil, testLogger())
	defer bus.Stop()

	bus.Publish(&Reading{DeviceID: 1})
	select {
	case ok := <-hasDeadline:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestReadingBus_CountsDrops(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	block := make(chan struct{})
	bus := NewReadingBus(func(_ context.Context, _ *Reading) error {
		<-block
		return nil
	}, 1, 1, metrics, testLogger())

	published := 0
	for range 10 {
		if bus.Publish(&Reading{DeviceID: 1}) {
			published++
		}
	}
	close(block)
	bus.Stop()

	assert.Less(t, published, 10)
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var dropped float64
	for _, f := range families {
		if f.GetName() == "leafwatch_readings_dropped_total" {
			dropped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.InDelta(t, float64(10-published), dropped, 0)
}

func TestReadingBus_AcceptedReadingsSurviveConcurrentStop(t *testing.T) {
	for range 50 {
		var handled atomic.Int32
		bus := NewReadingBus(func(_ context.Context, _ *Reading) error {
			handled.Add(1)
			return nil
		}, 2, 1000, nil, testLogger())

		var accepted atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := range 20 {
					if bus.Publish(&Reading{DeviceID: uint(i*100 + j)}) {
						accepted.Add(1)
					}
				}
			}()
		}

		close(start)
		bus.Stop()
		wg.Wait()

		assert.Equal(t, accepted.Load(), handled.Load(), "every accepted reading is handled")
		assert.False(t, bus.Publish(&Reading{DeviceID: 1}), "stopped bus rejects readings")
	}
}
