package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database migrated", "driver", cfg.Driver)

	if cfg.EnableTimescale && cfg.Driver == "postgres" {
		log.Info("applying TimescaleDB DDL")
		if err := applyTimescaleDDL(db); err != nil {
			log.Warn("failed to apply TimescaleDB DDL; continuing without it", "error", err)
		}
	}
	return db, nil
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.BankReading{},
		&model.AlertRecord{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",
		// a hypertable needs the time column in every unique index
		"ALTER TABLE bank_readings DROP CONSTRAINT IF EXISTS bank_readings_pkey;",
		"ALTER TABLE bank_readings ADD PRIMARY KEY (id, message_time);",
		"SELECT create_hypertable('bank_readings', 'message_time', if_not_exists => TRUE, migrate_data => TRUE);",
		"CREATE INDEX IF NOT EXISTS idx_bank_readings_bank_message_time_desc ON bank_readings (bank, message_time DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
