package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/leafwatch/leafwatch/internal/telemetry"
)

// DeviceOwners resolves the user owning a device.
type DeviceOwners interface {
	DeviceOwner(ctx context.Context, deviceID uint) (string, error)
}

// PlantSource loads plants for the scheduled sweep.
type PlantSource interface {
	GetPlant(ctx context.Context, id uint) (*entities.Plant, error)
}

// ConditionSource lists the active conditions evaluated by the orchestrator.
type ConditionSource interface {
	ListDeviceConditions(ctx context.Context, deviceID uint) ([]entities.UserDeviceCondition, error)
	ListActivePlantConditions(ctx context.Context) ([]entities.PlantCondition, error)
}

// AlertStore persists alerts and serves duplicate-suppression lookups.
type AlertStore interface {
	AlertHistory
	CreateAlert(ctx context.Context, alert *entities.Alert) error
	LatestPlantAlert(ctx context.Context) (*entities.Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// UnitPreferences reports whether a user reads temperatures in Celsius.
type UnitPreferences interface {
	UsesCelsius(ctx context.Context, userID string) (bool, error)
}

// Dependencies are the collaborators of an Orchestrator. Broadcaster and
// Metrics may be nil.
type Dependencies struct {
	Devices     DeviceOwners
	Plants      PlantSource
	Conditions  ConditionSource
	Alerts      AlertStore
	Settings    UnitPreferences
	Broadcaster Broadcaster
	Metrics     *telemetry.Metrics
	Log         logger.Logger
}

// Orchestrator turns readings and scheduled checks into persisted,
// broadcast alerts.
type Orchestrator struct {
	devices    DeviceOwners
	plants     PlantSource
	conditions ConditionSource
	alerts     AlertStore
	settings   UnitPreferences
	suppressor *DuplicateSuppressor
	dispatcher *AlertDispatcher
	metrics    *telemetry.Metrics
	log        logger.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. settings may be nil for defaults.
func NewOrchestrator(deps Dependencies, settings *conf.AlertingSettings) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.Module("alerting")
	return &Orchestrator{
		devices:    deps.Devices,
		plants:     deps.Plants,
		conditions: deps.Conditions,
		alerts:     deps.Alerts,
		settings:   deps.Settings,
		suppressor: NewDuplicateSuppressorFromSettings(deps.Alerts, settings),
		dispatcher: NewAlertDispatcher(deps.Broadcaster, log),
		metrics:    deps.Metrics,
		log:        log,
		now:        time.Now,
	}
}

// TriggerFromReading evaluates a reading against its device's conditions,
// persists an alert per non-duplicate match and broadcasts them to the
// owner in one message. A reading for an unknown device is a no-op. Storage
// errors are returned; alerts created before the failure are still
// broadcast.
func (o *Orchestrator) TriggerFromReading(ctx context.Context, reading *Reading) ([]entities.Alert, error) {
	if reading == nil {
		return nil, nil
	}
	log := o.log.With(logger.Uint64("device_id", uint64(reading.DeviceID)))

	userID, err := o.devices.DeviceOwner(ctx, reading.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			log.Debug("reading for unknown device ignored")
			return nil, nil
		}
		return nil, err
	}
	if userID == "" {
		log.Warn("device has no owner, reading ignored")
		return nil, nil
	}

	conditions, err := o.conditions.ListDeviceConditions(ctx, reading.DeviceID)
	if err != nil {
		return nil, err
	}
	matches := Evaluate(conditions, reading)
	if len(matches) == 0 {
		return nil, nil
	}

	celsius, err := o.usesCelsius(ctx, userID, matches)
	if err != nil {
		return nil, err
	}

	now := o.now()
	created := make([]entities.Alert, 0, len(matches))
	defer func() { o.dispatcher.Dispatch(ctx, userID, created) }()

	for _, m := range matches {
		value, unit := displayValue(m.Sensor, m.Value, celsius)

		duplicate, err := o.suppressor.IsRecentDuplicate(ctx, m.ConditionID,
			m.Condition.Operator, m.Condition.Threshold, value, now)
		if err != nil {
			return created, err
		}
		if duplicate {
			log.Debug("suppressed duplicate alert",
				logger.Uint64("condition_id", uint64(m.ConditionID)),
				logger.Float64("value", value))
			o.metrics.AlertSuppressed()
			continue
		}

		conditionID := m.ConditionID
		alert := entities.Alert{
			UserID:            userID,
			Name:              alertName(m.Sensor),
			Description:       describeMatch(value, unit, m.Condition),
			Time:              now,
			DeviceConditionID: &conditionID,
		}
		if err := o.alerts.CreateAlert(ctx, &alert); err != nil {
			return created, err
		}
		o.metrics.AlertCreated(telemetry.SourceReading)
		created = append(created, alert)
	}

	if len(created) > 0 {
		log.Info("device alerts created",
			logger.String("user_id", userID),
			logger.Int("count", len(created)))
	}
	return created, nil
}

// usesCelsius looks up the unit preference only when a temperature
// condition matched.
func (o *Orchestrator) usesCelsius(ctx context.Context, userID string, matches []Match) (bool, error) {
	if o.settings == nil {
		return true, nil
	}
	for _, m := range matches {
		if m.Sensor == SensorTemperature {
			return o.settings.UsesCelsius(ctx, userID)
		}
	}
	return true, nil
}

// ScheduledPlantSweep raises a watering alert for every plant with an
// active notify condition that is due. Missing plants and plants without an
// owner are skipped. Alerts are broadcast per owner in one message. It
// returns the alerts created.
func (o *Orchestrator) ScheduledPlantSweep(ctx context.Context) ([]entities.Alert, error) {
	start := time.Now()
	defer func() { o.metrics.ObserveSweep(time.Since(start).Seconds()) }()

	conditions, err := o.conditions.ListActivePlantConditions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		created []entities.Alert
		owners  []string
		byOwner = make(map[string][]entities.Alert)
	)
	defer func() {
		for _, userID := range owners {
			o.dispatcher.Dispatch(ctx, userID, byOwner[userID])
		}
	}()

	for i := range conditions {
		cond := &conditions[i]
		if cond.Deleted || !cond.WaterNotify {
			continue
		}
		log := o.log.With(
			logger.Uint64("plant_id", uint64(cond.PlantID)),
			logger.Uint64("condition_id", uint64(cond.ID)))

		plant, err := o.plants.GetPlant(ctx, cond.PlantID)
		if err != nil {
			if errors.Is(err, repository.ErrPlantNotFound) {
				log.Debug("plant condition references missing plant")
				continue
			}
			return created, err
		}
		if plant.UserID == "" {
			log.Warn("plant has no owner, skipped")
			continue
		}

		now := o.now()
		if !WateringDue(plant, now) {
			continue
		}

		conditionID := cond.ID
		alert := entities.Alert{
			UserID:           plant.UserID,
			Name:             ScheduledWaterAlertName,
			Description:      fmt.Sprintf("%s needs watering", plant.Name),
			Time:             now,
			PlantConditionID: &conditionID,
		}
		if err := o.alerts.CreateAlert(ctx, &alert); err != nil {
			return created, err
		}
		o.metrics.AlertCreated(telemetry.SourceSweep)
		created = append(created, alert)
		if _, seen := byOwner[plant.UserID]; !seen {
			owners = append(owners, plant.UserID)
		}
		byOwner[plant.UserID] = append(byOwner[plant.UserID], alert)
	}

	o.log.Info("plant sweep completed",
		logger.Int("conditions", len(conditions)),
		logger.Int("alerts", len(created)))
	return created, nil
}

// CleanupHistory deletes alerts older than retentionDays. Zero or negative
// retention keeps everything.
func (o *Orchestrator) CleanupHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := o.now().AddDate(0, 0, -retentionDays)
	deleted, err := o.alerts.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		o.log.Info("alert history cleanup completed",
			logger.Int64("deleted", deleted),
			logger.Int("retention_days", retentionDays))
	}
	return deleted, nil
}

// WateringDue reports whether a plant should be watered at now. A plant
// never watered is due; a plant without a schedule is not.
func WateringDue(plant *entities.Plant, now time.Time) bool {
	if plant.LastWatered == nil || plant.LastWatered.IsZero() {
		return true
	}
	if plant.WaterEvery <= 0 {
		return false
	}
	return !now.Before(plant.LastWatered.AddDate(0, 0, plant.WaterEvery))
}

// displayValue converts a reading into the user's display unit.
// Temperatures arrive in Celsius.
func displayValue(sensor SensorType, value float64, celsius bool) (float64, string) {
	if sensor == SensorTemperature && !celsius {
		return value*9/5 + 32, "°F"
	}
	return value, sensor.Unit()
}

// describeMatch renders the alert description parsed back by
// parsePreviousAlert, e.g. "25.43°C <=30".
func describeMatch(value float64, unit string, cond Condition) string {
	return formatNumber(value) + unit + " " + cond.String()
}
