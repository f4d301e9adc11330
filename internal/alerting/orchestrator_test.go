package alerting

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orchNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newDeviceFixture(t *testing.T) (*memStore, *fakeBroadcaster) {
	t.Helper()
	store := newMemStore()
	store.addDevice(10, "owner-1")
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 100, UserDeviceID: 10, SensorType: "Temperature", Condition: "<=30",
	})
	return store, &fakeBroadcaster{}
}

func TestTriggerFromReading_CreatesAlertAndBroadcasts(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)

	require.Len(t, created, 1)
	alert := created[0]
	assert.Equal(t, "owner-1", alert.UserID)
	assert.Equal(t, "Temperature Alert", alert.Name)
	assert.Contains(t, alert.Description, "24.5")
	assert.Contains(t, alert.Description, "<=30")
	assert.Equal(t, "24.5°C <=30", alert.Description)
	require.NotNil(t, alert.DeviceConditionID)
	assert.Equal(t, uint(100), *alert.DeviceConditionID)
	assert.Nil(t, alert.PlantConditionID)
	assert.Len(t, store.allAlerts(), 1)

	calls := b.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "alerts-owner-1", calls[0].topic)
	assert.Equal(t, EventTypeLiveAlert, calls[0].message.EventType)
	require.Len(t, calls[0].message.Alerts, 1)
	assert.Equal(t, alert.ID, calls[0].message.Alerts[0].ID)
}

func TestTriggerFromReading_RepeatWithinDriftIsSuppressed(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	_, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)

	o.now = func() time.Time { return orchNow.Add(5 * time.Minute) }
	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.7)})
	require.NoError(t, err)

	assert.Empty(t, created)
	assert.Len(t, store.allAlerts(), 1)
	assert.Len(t, b.recorded(), 1, "no broadcast for a fully suppressed reading")
}

func TestTriggerFromReading_LargeDriftRealerts(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	_, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)

	o.now = func() time.Time { return orchNow.Add(time.Hour) }
	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(22.0)})
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Len(t, store.allAlerts(), 2)
}

func TestTriggerFromReading_UnknownDeviceIsNoop(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 999, Temperature: f64(10)})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, b.recorded())
}

func TestTriggerFromReading_EmptyOwnerIsNoop(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.addDevice(11, "")
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 101, UserDeviceID: 11, SensorType: "Temperature", Condition: "<=30",
	})
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 11, Temperature: f64(10)})
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestTriggerFromReading_NoMatchNoBroadcast(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(35), Humidity: f64(50)})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, b.recorded())
}

func TestTriggerFromReading_BatchesAllMatchesInOneBroadcast(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 102, UserDeviceID: 10, SensorType: "Humidity", Condition: ">=60",
	})
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 103, UserDeviceID: 10, SensorType: "AirQuality", Condition: ">=800",
	})
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 104, UserDeviceID: 10, SensorType: "AirPressure", Condition: "<=1000",
	})
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{
		DeviceID: 10, Temperature: f64(20), Humidity: f64(65), AirQuality: f64(850), AirPressure: f64(1012),
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	descriptions := []string{created[0].Description, created[1].Description, created[2].Description}
	assert.Equal(t, []string{"20°C <=30", "65% >=60", "850ppm >=800"}, descriptions)
	assert.Equal(t, "Air Quality Alert", created[2].Name)

	calls := b.recorded()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].message.Alerts, 3)
}

func TestTriggerFromReading_BoundaryFiresBothOperators(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.addDeviceCondition(entities.UserDeviceCondition{
		ID: 105, UserDeviceID: 10, SensorType: "Temperature", Condition: ">=30",
	})
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(30)})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestTriggerFromReading_FahrenheitDescription(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.fahrenheit["owner-1"] = true
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "76.1°F <=30", created[0].Description)

	// Drift is measured in the displayed unit: 0.5°C is 0.9°F.
	o.now = func() time.Time { return orchNow.Add(time.Minute) }
	created, err = o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(25.0)})
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestTriggerFromReading_PersistenceErrorPropagates(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.createErr = sql.ErrConnDone
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.Empty(t, created)
	assert.Empty(t, b.recorded())
}

func TestTriggerFromReading_OwnerLookupErrorPropagates(t *testing.T) {
	store, b := newDeviceFixture(t)
	store.ownerErr = sql.ErrConnDone
	o := newTestOrchestrator(store, b, orchNow)

	_, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestTriggerFromReading_BroadcastFailureIsNotAnError(t *testing.T) {
	store, b := newDeviceFixture(t)
	b.err = errors.New("socket closed")
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Len(t, store.allAlerts(), 1)
}

func TestTriggerFromReading_DeliveryOutlivesCallerContext(t *testing.T) {
	store, b := newDeviceFixture(t)
	o := newTestOrchestrator(store, b, orchNow)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	created, err := o.TriggerFromReading(ctx, &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)
	require.Len(t, created, 1)

	calls := b.recorded()
	require.Len(t, calls, 1)
	assert.NoError(t, calls[0].ctxErr, "persisted alerts are delivered after the caller gives up")
	assert.True(t, calls[0].hasDeadline, "delivery is bounded by its own timeout")
}

func TestTriggerFromReading_NilBroadcaster(t *testing.T) {
	store, _ := newDeviceFixture(t)
	o := NewOrchestrator(Dependencies{
		Devices: store, Plants: store, Conditions: store, Alerts: store, Settings: store,
	}, nil)

	created, err := o.TriggerFromReading(t.Context(), &Reading{DeviceID: 10, Temperature: f64(24.5)})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func wateredDaysAgo(days int) *time.Time {
	ts := orchNow.AddDate(0, 0, -days)
	return &ts
}

func TestScheduledPlantSweep_DuePlantAlerts(t *testing.T) {
	store := newMemStore()
	store.addPlant(&entities.Plant{ID: 1, UserID: "owner-1", Name: "Fern", LastWatered: wateredDaysAgo(5), WaterEvery: 3},
		entities.PlantCondition{ID: 50, PlantID: 1, WaterNotify: true})
	b := &fakeBroadcaster{}
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.ScheduledPlantSweep(t.Context())
	require.NoError(t, err)

	require.Len(t, created, 1)
	alert := created[0]
	assert.Equal(t, ScheduledWaterAlertName, alert.Name)
	assert.Contains(t, alert.Description, "Fern")
	require.NotNil(t, alert.PlantConditionID)
	assert.Equal(t, uint(50), *alert.PlantConditionID)
	assert.Nil(t, alert.DeviceConditionID)

	calls := b.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "alerts-owner-1", calls[0].topic)
	assert.Len(t, calls[0].message.Alerts, 1)
}

func TestScheduledPlantSweep_SkipsIneligiblePlants(t *testing.T) {
	store := newMemStore()
	// Not due yet.
	store.addPlant(&entities.Plant{ID: 1, UserID: "owner-1", Name: "Cactus", LastWatered: wateredDaysAgo(1), WaterEvery: 14},
		entities.PlantCondition{ID: 50, PlantID: 1, WaterNotify: true})
	// No owner.
	store.addPlant(&entities.Plant{ID: 2, UserID: "", Name: "Orphan", LastWatered: wateredDaysAgo(9), WaterEvery: 1},
		entities.PlantCondition{ID: 51, PlantID: 2, WaterNotify: true})
	// Notifications off.
	store.addPlant(&entities.Plant{ID: 3, UserID: "owner-1", Name: "Ivy", LastWatered: wateredDaysAgo(9), WaterEvery: 1},
		entities.PlantCondition{ID: 52, PlantID: 3, WaterNotify: false})
	// Condition for a plant that no longer exists.
	store.plantConds = append(store.plantConds, entities.PlantCondition{ID: 53, PlantID: 404, WaterNotify: true})
	b := &fakeBroadcaster{}
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.ScheduledPlantSweep(t.Context())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, b.recorded())
}

func TestScheduledPlantSweep_GroupsBroadcastsPerOwner(t *testing.T) {
	store := newMemStore()
	store.addPlant(&entities.Plant{ID: 1, UserID: "a", Name: "Fern", WaterEvery: 3},
		entities.PlantCondition{ID: 50, PlantID: 1, WaterNotify: true})
	store.addPlant(&entities.Plant{ID: 2, UserID: "b", Name: "Basil", LastWatered: wateredDaysAgo(2), WaterEvery: 2},
		entities.PlantCondition{ID: 51, PlantID: 2, WaterNotify: true})
	store.addPlant(&entities.Plant{ID: 3, UserID: "a", Name: "Mint", LastWatered: wateredDaysAgo(3), WaterEvery: 1},
		entities.PlantCondition{ID: 52, PlantID: 3, WaterNotify: true})
	b := &fakeBroadcaster{}
	o := newTestOrchestrator(store, b, orchNow)

	created, err := o.ScheduledPlantSweep(t.Context())
	require.NoError(t, err)
	assert.Len(t, created, 3)

	calls := b.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "alerts-a", calls[0].topic)
	assert.Len(t, calls[0].message.Alerts, 2)
	assert.Equal(t, "alerts-b", calls[1].topic)
	assert.Len(t, calls[1].message.Alerts, 1)
}

func TestScheduledPlantSweep_PersistenceErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.addPlant(&entities.Plant{ID: 1, UserID: "owner-1", Name: "Fern"},
		entities.PlantCondition{ID: 50, PlantID: 1, WaterNotify: true})
	store.createErr = sql.ErrConnDone
	o := newTestOrchestrator(store, &fakeBroadcaster{}, orchNow)

	_, err := o.ScheduledPlantSweep(t.Context())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestWateringDue(t *testing.T) {
	tests := []struct {
		name  string
		plant entities.Plant
		want  bool
	}{
		{"never watered", entities.Plant{WaterEvery: 3}, true},
		{"overdue", entities.Plant{LastWatered: wateredDaysAgo(5), WaterEvery: 3}, true},
		{"due exactly now", entities.Plant{LastWatered: wateredDaysAgo(3), WaterEvery: 3}, true},
		{"not yet due", entities.Plant{LastWatered: wateredDaysAgo(2), WaterEvery: 3}, false},
		{"no schedule", entities.Plant{LastWatered: wateredDaysAgo(30), WaterEvery: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WateringDue(&tt.plant, orchNow))
		})
	}
}

func TestCleanupHistory(t *testing.T) {
	store := newMemStore()
	store.seedAlert(entities.Alert{UserID: "u", Name: "old", Time: orchNow.AddDate(0, 0, -40), DeviceConditionID: uintPtr(1)})
	store.seedAlert(entities.Alert{UserID: "u", Name: "new", Time: orchNow.AddDate(0, 0, -1), DeviceConditionID: uintPtr(1)})
	o := newTestOrchestrator(store, &fakeBroadcaster{}, orchNow)

	deleted, err := o.CleanupHistory(t.Context(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted, "retention disabled")

	deleted, err = o.CleanupHistory(t.Context(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, store.allAlerts(), 1)
	assert.Equal(t, "new", store.allAlerts()[0].Name)
}
