package repository

import (
	"context"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	"gorm.io/gorm"
)

type plantRepository struct {
	db *gorm.DB
}

// NewPlantRepository creates a new PlantRepository.
func NewPlantRepository(db *gorm.DB) PlantRepository {
	return &plantRepository{db: db}
}

func (r *plantRepository) CreatePlant(ctx context.Context, plant *entities.Plant) error {
	if err := r.db.WithContext(ctx).Create(plant).Error; err != nil {
		return dbError(err, "create_plant")
	}
	return nil
}

func (r *plantRepository) GetPlant(ctx context.Context, id uint) (*entities.Plant, error) {
	var plant entities.Plant
	if err := r.db.WithContext(ctx).First(&plant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlantNotFound
		}
		return nil, dbError(err, "get_plant", "plant_id", id)
	}
	return &plant, nil
}
