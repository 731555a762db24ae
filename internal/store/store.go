package store

import (
	"context"
	"time"

	"co2-bank-monitor/internal/model"
)

// File names inside the data directory.
const (
	ReadingsFile       = "data_log.csv"
	LowContentLogFile  = "last_alert.log"
	StalenessLogFile   = "staleness_alert.log"
	ledgerTimeLayout   = "2006-01-02 15:04"
	readingsHeaderLine = "messageTime,bank,lastChange,content"
)

// ReadingStore is the append-only time series of bank readings.
type ReadingStore interface {
	// Append persists readings in order. Readings are never modified afterwards.
	Append(ctx context.Context, readings ...model.BankReading) error
	// Since returns readings whose MessageTime is at or after from, in insertion order.
	Since(ctx context.Context, from time.Time) ([]model.BankReading, error)
	All(ctx context.Context) ([]model.BankReading, error)
}

// AlertLedger is the append-only history used for alert cooldowns.
type AlertLedger interface {
	Append(ctx context.Context, rec model.AlertRecord) error
	// Last returns the most recent record of kind for any bank, or nil.
	Last(ctx context.Context, kind model.AlertKind) (*model.AlertRecord, error)
	// LastFor returns the most recent record of kind for bank, or nil.
	LastFor(ctx context.Context, kind model.AlertKind, bank model.Bank) (*model.AlertRecord, error)
	// Records returns every record of kind in insertion order.
	Records(ctx context.Context, kind model.AlertKind) ([]model.AlertRecord, error)
}

func latest(records []model.AlertRecord, keep func(model.AlertRecord) bool) *model.AlertRecord {
	var found *model.AlertRecord
	for i := range records {
		if !keep(records[i]) {
			continue
		}
		if found == nil || !records[i].Timestamp.Before(found.Timestamp) {
			rec := records[i]
			found = &rec
		}
	}
	return found
}
