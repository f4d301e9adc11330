// Package datastore opens the gorm connection and migrates the schema.
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

const (
	sqliteBusyTimeoutMs = 5000
	mysqlMaxOpenConns   = 25
	mysqlMaxIdleConns   = 5
	mysqlConnMaxLife    = 5 * time.Minute
)

// Open connects to the configured database and runs AutoMigrate.
func Open(ctx context.Context, settings conf.DatabaseSettings, log logger.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch settings.Type {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=ON",
			settings.Path, sqliteBusyTimeoutMs)
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	case "mysql":
		db, err = gorm.Open(mysql.Open(settings.DSN), cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", settings.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", settings.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if settings.Type == "sqlite" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY on appends.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
		sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
		sqlDB.SetConnMaxLifetime(mysqlConnMaxLife)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info("database ready",
		logger.String("type", settings.Type))
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(entities.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
