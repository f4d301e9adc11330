package entities

import "time"

// Plant is the subset of the plant record the alerting pipeline reads.
type Plant struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      string     `gorm:"size:64;index" json:"user_id"`
	Name        string     `gorm:"size:200;not null" json:"name"`
	LastWatered *time.Time `json:"last_watered"`
	WaterEvery  int        `gorm:"default:0" json:"water_every"` // days
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Plant) TableName() string {
	return "plants"
}

// PlantCondition enables scheduled watering reminders for a plant.
// At most one non-deleted row exists per plant.
type PlantCondition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlantID     uint      `gorm:"not null;index" json:"plant_id"`
	WaterNotify bool      `gorm:"not null" json:"water_notify"`
	Deleted     bool      `gorm:"not null;default:false;index" json:"deleted"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (PlantCondition) TableName() string {
	return "plant_conditions"
}
