package entities

import "time"

// Alert is an append-only record of a fired condition. Exactly one of
// PlantConditionID and DeviceConditionID is set.
//
// Description carries the triggering reading and condition in human text,
// e.g. "25.43°C <=30"; duplicate suppression parses it back.
type Alert struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"size:64;not null;index:idx_alerts_user_time,priority:1" json:"user_id"`
	Name              string    `gorm:"size:200;not null" json:"name"`
	Description       string    `gorm:"size:500;not null" json:"description"`
	Time              time.Time `gorm:"not null;index:idx_alerts_user_time,priority:2;index:idx_alerts_device_condition_time,priority:2" json:"time"`
	PlantConditionID  *uint     `gorm:"index" json:"plant_condition_id"`
	DeviceConditionID *uint     `gorm:"index:idx_alerts_device_condition_time,priority:1" json:"device_condition_id"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}

// UserSettings holds per-user display preferences.
type UserSettings struct {
	UserID  string `gorm:"primaryKey;size:64" json:"user_id"`
	Celsius bool   `gorm:"not null" json:"celsius"`
}

// TableName returns the table name for GORM.
func (UserSettings) TableName() string {
	return "user_settings"
}

// All returns every model managed by AutoMigrate.
func All() []any {
	return []any{
		&UserDevice{},
		&UserDeviceCondition{},
		&Plant{},
		&PlantCondition{},
		&Alert{},
		&UserSettings{},
	}
}
