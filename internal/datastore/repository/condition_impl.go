package repository

import (
	"context"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	"gorm.io/gorm"
)

type conditionRepository struct {
	db *gorm.DB
}

// NewConditionRepository creates a new ConditionRepository.
func NewConditionRepository(db *gorm.DB) ConditionRepository {
	return &conditionRepository{db: db}
}

// CreateDeviceCondition inserts a device condition unless an identical
// non-deleted one exists for the same device and sensor.
func (r *conditionRepository) CreateDeviceCondition(ctx context.Context, cond *entities.UserDeviceCondition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&entities.UserDeviceCondition{}).
			Where("user_device_id = ? AND sensor_type = ? AND condition_expr = ? AND deleted = ?",
				cond.UserDeviceID, cond.SensorType, cond.Condition, false).
			Count(&count).Error
		if err != nil {
			return dbError(err, "count_device_conditions", "device_id", cond.UserDeviceID)
		}
		if count > 0 {
			return ErrDuplicateCondition
		}
		cond.Deleted = false
		if err := tx.Create(cond).Error; err != nil {
			return dbError(err, "create_device_condition", "device_id", cond.UserDeviceID)
		}
		return nil
	})
}

func (r *conditionRepository) GetDeviceCondition(ctx context.Context, id uint) (*entities.UserDeviceCondition, error) {
	var cond entities.UserDeviceCondition
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&cond, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConditionNotFound
		}
		return nil, dbError(err, "get_device_condition", "condition_id", id)
	}
	return &cond, nil
}

func (r *conditionRepository) ListDeviceConditions(ctx context.Context, deviceID uint) ([]entities.UserDeviceCondition, error) {
	var conds []entities.UserDeviceCondition
	err := r.db.WithContext(ctx).
		Where("user_device_id = ? AND deleted = ?", deviceID, false).
		Order("id ASC").
		Find(&conds).Error
	if err != nil {
		return nil, dbError(err, "list_device_conditions", "device_id", deviceID)
	}
	return conds, nil
}

func (r *conditionRepository) DeleteDeviceCondition(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&entities.UserDeviceCondition{}).
		Where("id = ? AND deleted = ?", id, false).
		Update("deleted", true)
	if result.Error != nil {
		return dbError(result.Error, "delete_device_condition", "condition_id", id)
	}
	if result.RowsAffected == 0 {
		return ErrConditionNotFound
	}
	return nil
}

// CreatePlantCondition inserts a plant condition unless the plant already has
// an active one.
func (r *conditionRepository) CreatePlantCondition(ctx context.Context, cond *entities.PlantCondition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&entities.PlantCondition{}).
			Where("plant_id = ? AND deleted = ?", cond.PlantID, false).
			Count(&count).Error
		if err != nil {
			return dbError(err, "count_plant_conditions", "plant_id", cond.PlantID)
		}
		if count > 0 {
			return ErrActiveConditionExists
		}
		cond.Deleted = false
		if err := tx.Create(cond).Error; err != nil {
			return dbError(err, "create_plant_condition", "plant_id", cond.PlantID)
		}
		return nil
	})
}

func (r *conditionRepository) ListActivePlantConditions(ctx context.Context) ([]entities.PlantCondition, error) {
	var conds []entities.PlantCondition
	err := r.db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("id ASC").
		Find(&conds).Error
	if err != nil {
		return nil, dbError(err, "list_plant_conditions")
	}
	return conds, nil
}

func (r *conditionRepository) DeletePlantCondition(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&entities.PlantCondition{}).
		Where("id = ? AND deleted = ?", id, false).
		Update("deleted", true)
	if result.Error != nil {
		return dbError(result.Error, "delete_plant_condition", "condition_id", id)
	}
	if result.RowsAffected == 0 {
		return ErrConditionNotFound
	}
	return nil
}
