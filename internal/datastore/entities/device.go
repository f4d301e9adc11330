package entities

import "time"

// UserDevice is an edge sensor device owned by a user.
type UserDevice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (UserDevice) TableName() string {
	return "user_devices"
}

// UserDeviceCondition is a threshold rule on one sensor of a device.
// Condition holds the operator and threshold encoded together, e.g. "<=30".
// Rows are soft-deleted so alerts referencing them stay resolvable.
type UserDeviceCondition struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserDeviceID uint      `gorm:"not null;index:idx_device_condition_lookup,priority:1" json:"user_device_id"`
	SensorType   string    `gorm:"size:32;not null" json:"sensor_type"`
	Condition    string    `gorm:"column:condition_expr;size:32;not null" json:"condition"`
	Deleted      bool      `gorm:"not null;default:false;index:idx_device_condition_lookup,priority:2" json:"deleted"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (UserDeviceCondition) TableName() string {
	return "user_device_conditions"
}
