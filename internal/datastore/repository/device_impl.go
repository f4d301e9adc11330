package repository

import (
	"context"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	"gorm.io/gorm"
)

type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) CreateDevice(ctx context.Context, device *entities.UserDevice) error {
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return dbError(err, "create_device")
	}
	return nil
}

func (r *deviceRepository) GetDevice(ctx context.Context, id uint) (*entities.UserDevice, error) {
	var device entities.UserDevice
	if err := r.db.WithContext(ctx).First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, dbError(err, "get_device", "device_id", id)
	}
	return &device, nil
}

func (r *deviceRepository) DeviceOwner(ctx context.Context, id uint) (string, error) {
	device, err := r.GetDevice(ctx, id)
	if err != nil {
		return "", err
	}
	return device.UserID, nil
}

// dbError wraps a storage failure in the database category so it reaches
// the error reporter. kv is an alternating list of context keys and values.
func dbError(err error, operation string, kv ...any) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}
