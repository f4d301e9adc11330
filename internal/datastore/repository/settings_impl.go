package repository

import (
	"context"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// SaveSettings upserts a user's settings row.
func (r *settingsRepository) SaveSettings(ctx context.Context, settings *entities.UserSettings) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(settings).Error
	if err != nil {
		return dbError(err, "save_settings", "user_id", settings.UserID)
	}
	return nil
}

func (r *settingsRepository) UsesCelsius(ctx context.Context, userID string) (bool, error) {
	var settings entities.UserSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return true, dbError(err, "get_settings", "user_id", userID)
	}
	return settings.Celsius, nil
}

const (
	// settingsCacheTTL bounds how long a unit preference change takes to
	// show up in alert descriptions.
	settingsCacheTTL     = 5 * time.Minute
	settingsCacheCleanup = 10 * time.Minute
)

// cachedSettingsRepository memoises UsesCelsius lookups, which run once per
// temperature alert.
type cachedSettingsRepository struct {
	next  SettingsRepository
	cache *gocache.Cache
}

// NewCachedSettingsRepository wraps next with an in-memory TTL cache.
func NewCachedSettingsRepository(next SettingsRepository) SettingsRepository {
	return &cachedSettingsRepository{
		next:  next,
		cache: gocache.New(settingsCacheTTL, settingsCacheCleanup),
	}
}

func (r *cachedSettingsRepository) SaveSettings(ctx context.Context, settings *entities.UserSettings) error {
	if err := r.next.SaveSettings(ctx, settings); err != nil {
		return err
	}
	r.cache.Set(settings.UserID, settings.Celsius, gocache.DefaultExpiration)
	return nil
}

func (r *cachedSettingsRepository) UsesCelsius(ctx context.Context, userID string) (bool, error) {
	if v, ok := r.cache.Get(userID); ok {
		if celsius, ok := v.(bool); ok {
			return celsius, nil
		}
	}
	celsius, err := r.next.UsesCelsius(ctx, userID)
	if err != nil {
		return celsius, err
	}
	r.cache.Set(userID, celsius, gocache.DefaultExpiration)
	return celsius, nil
}
