package repository

import (
	"context"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	"gorm.io/gorm"
)

type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

// CreateAlert appends an alert. The row must reference exactly one condition.
func (r *alertRepository) CreateAlert(ctx context.Context, alert *entities.Alert) error {
	if (alert.PlantConditionID == nil) == (alert.DeviceConditionID == nil) {
		return errors.Newf("alert must reference exactly one condition").
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("operation", "create_alert").
			Build()
	}
	if alert.Time.IsZero() {
		alert.Time = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return dbError(err, "create_alert", "user_id", alert.UserID)
	}
	return nil
}

func (r *alertRepository) LatestForDeviceCondition(ctx context.Context, conditionID uint) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).
		Where("device_condition_id = ?", conditionID).
		Order("time DESC").Order("id DESC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, dbError(err, "latest_device_condition_alert", "condition_id", conditionID)
	}
	return &alert, nil
}

// LatestPlantAlert returns the newest alert raised by the plant sweep, or
// ErrAlertNotFound.
func (r *alertRepository) LatestPlantAlert(ctx context.Context) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).
		Where("plant_condition_id IS NOT NULL").
		Order("time DESC").Order("id DESC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, dbError(err, "latest_plant_alert")
	}
	return &alert, nil
}

// ListForUser returns a user's alerts newest first, optionally limited to a
// calendar year (UTC).
func (r *alertRepository) ListForUser(ctx context.Context, userID string, filter AlertFilter) ([]entities.Alert, error) {
	var alerts []entities.Alert
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Year != nil {
		start := time.Date(*filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("time >= ? AND time < ?", start, start.AddDate(1, 0, 0))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Order("time DESC").Order("id DESC").Find(&alerts).Error; err != nil {
		return nil, dbError(err, "list_alerts", "user_id", userID)
	}
	return alerts, nil
}

// DeleteBefore removes alerts older than before.
func (r *alertRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("time < ?", before).Delete(&entities.Alert{})
	if result.Error != nil {
		return 0, dbError(result.Error, "delete_alerts_before", "before", before)
	}
	return result.RowsAffected, nil
}
