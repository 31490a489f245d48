// Package database opens the relational store and owns its schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/teammatch/internal/config"
	"github.com/Aidin1998/teammatch/pkg/metrics"
	"github.com/Aidin1998/teammatch/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open connects using the configured driver and migrates the schema when enabled
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = NewSQLiteDB(cfg.DSN)
	default:
		db, err = NewPostgresDB(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		logger.Info("Database schema migrated", zap.String("driver", cfg.Driver))
	}
	return db, nil
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Team{},
		&models.TeamMember{},
		&models.Matching{},
		&models.Challenge{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// CollectPoolStats publishes connection pool gauges until ctx is done
func CollectPoolStats(ctx context.Context, db *gorm.DB, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues(name).Set(float64(stats.OpenConnections))
				metrics.DBInUseConns.WithLabelValues(name).Set(float64(stats.InUse))
			}
		}
	}
}
