package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/alert"
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/db"
	"co2-bank-monitor/internal/store"
)

// app holds the components shared by the daemon and the test-email command.
type app struct {
	cfg      *config.Config
	creds    *config.Credentials
	loc      *time.Location
	clock    clock.Clock
	db       *gorm.DB
	readings store.ReadingStore
	ledger   store.AlertLedger
	engine   *alert.Engine
	webpush  *webpush.Options
}

func wireApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	creds, err := config.LoadCredentials(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Portal.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	a := &app{cfg: cfg, creds: creds, loc: loc, clock: clock.System{}}

	// The database is needed for the database backend and for push subscriptions.
	if cfg.Storage.Backend == config.BackendDatabase || cfg.Push.Enabled() {
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("push notifications require database.dsn")
		}
		a.db, err = db.Init(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendDatabase:
		a.readings = store.NewGormReadingStore(a.db)
		a.ledger = store.NewGormLedger(a.db)
	default:
		readings, err := store.NewFileReadingStore(cfg.Storage.DataDir, loc, logger)
		if err != nil {
			return nil, err
		}
		ledger, err := store.NewFileLedger(cfg.Storage.DataDir, loc, logger)
		if err != nil {
			return nil, err
		}
		a.readings, a.ledger = readings, ledger
	}
	logger.Info("storage ready", "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)

	if cfg.Push.Enabled() {
		a.webpush = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	mailer := alert.NewSMTPMailer(creds, cfg.Alerts)
	a.engine = alert.NewEngine(cfg.Alerts, creds, a.ledger, mailer, a.clock, loc, logger)
	return a, nil
}
