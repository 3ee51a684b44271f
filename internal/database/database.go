package database

import (
	"time"

	"example.com/storefront/services/orders/config"
	"example.com/storefront/services/orders/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the write and read-only database connections, retrying
// transient connection failures a fixed number of times with a fixed
// delay, then runs migrations against the write database.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, *gorm.DB, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	readOnlyDB, err := open(cfg.ReadOnlyDSN, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	if err := configurePool(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime); err != nil {
		return nil, nil, err
	}
	// Read replicas take higher limits since they only serve queries
	if err := configurePool(readOnlyDB, cfg.MaxOpenConns*2, cfg.MaxIdleConns*2, cfg.ConnMaxLifetime); err != nil {
		return nil, nil, err
	}

	return db, readOnlyDB, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var db *gorm.DB
	var err error
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return db, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).
			Msg("Database connection failed, retrying")
		if i < attempts-1 {
			time.Sleep(cfg.ConnectRetryWait)
		}
	}
	return nil, err
}

func configurePool(db *gorm.DB, maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying DB connection")
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}
