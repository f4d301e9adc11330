// Package repository provides gorm-backed stores for devices, plants,
// conditions, alerts and user settings.
package repository

import (
	"context"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
)

// Sentinel errors returned by repositories.
var (
	ErrDeviceNotFound        = errors.NewStd("device not found")
	ErrPlantNotFound         = errors.NewStd("plant not found")
	ErrAlertNotFound         = errors.NewStd("alert not found")
	ErrConditionNotFound     = errors.NewStd("condition not found")
	ErrDuplicateCondition    = errors.NewStd("an identical active condition already exists")
	ErrActiveConditionExists = errors.NewStd("plant already has an active condition")
)

// DeviceRepository reads device ownership.
type DeviceRepository interface {
	CreateDevice(ctx context.Context, device *entities.UserDevice) error
	GetDevice(ctx context.Context, id uint) (*entities.UserDevice, error)
	// DeviceOwner returns the owning user id, or ErrDeviceNotFound.
	DeviceOwner(ctx context.Context, id uint) (string, error)
}

// PlantRepository reads plants for the scheduled sweep.
type PlantRepository interface {
	CreatePlant(ctx context.Context, plant *entities.Plant) error
	GetPlant(ctx context.Context, id uint) (*entities.Plant, error)
}

// ConditionRepository manages device and plant conditions. Deletes are soft
// and every read filters deleted rows.
type ConditionRepository interface {
	CreateDeviceCondition(ctx context.Context, cond *entities.UserDeviceCondition) error
	GetDeviceCondition(ctx context.Context, id uint) (*entities.UserDeviceCondition, error)
	ListDeviceConditions(ctx context.Context, deviceID uint) ([]entities.UserDeviceCondition, error)
	DeleteDeviceCondition(ctx context.Context, id uint) error

	CreatePlantCondition(ctx context.Context, cond *entities.PlantCondition) error
	ListActivePlantConditions(ctx context.Context) ([]entities.PlantCondition, error)
	DeletePlantCondition(ctx context.Context, id uint) error
}

// AlertRepository is the append-only alert log.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *entities.Alert) error
	// LatestForDeviceCondition returns the newest alert for a device
	// condition, or ErrAlertNotFound.
	LatestForDeviceCondition(ctx context.Context, conditionID uint) (*entities.Alert, error)
	LatestPlantAlert(ctx context.Context) (*entities.Alert, error)
	ListForUser(ctx context.Context, userID string, filter AlertFilter) ([]entities.Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertFilter narrows ListForUser.
type AlertFilter struct {
	Year  *int
	Limit int
}

// SettingsRepository reads user display preferences.
type SettingsRepository interface {
	SaveSettings(ctx context.Context, settings *entities.UserSettings) error
	// UsesCelsius reports the user's temperature unit. Users without a
	// settings row default to celsius.
	UsesCelsius(ctx context.Context, userID string) (bool, error)
}
