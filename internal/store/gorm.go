package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"co2-bank-monitor/internal/model"
)

// GormReadingStore keeps readings in the bank_readings table.
type GormReadingStore struct {
	db *gorm.DB
}

func NewGormReadingStore(db *gorm.DB) *GormReadingStore {
	return &GormReadingStore{db: db}
}

func (s *GormReadingStore) Append(ctx context.Context, readings ...model.BankReading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]model.BankReading, len(readings))
	copy(rows, readings)
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}

func (s *GormReadingStore) All(ctx context.Context) ([]model.BankReading, error) {
	var readings []model.BankReading
	if err := s.db.WithContext(ctx).Order("id").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	return readings, nil
}

func (s *GormReadingStore) Since(ctx context.Context, from time.Time) ([]model.BankReading, error) {
	var readings []model.BankReading
	err := s.db.WithContext(ctx).
		Where("message_time >= ?", from).
		Order("id").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("query readings since %s: %w", from.Format(time.RFC3339), err)
	}
	return readings, nil
}

// GormLedger keeps alert records in the alert_records table.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) Append(ctx context.Context, rec model.AlertRecord) error {
	rec.ID = 0
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert alert record: %w", err)
	}
	return nil
}

func (l *GormLedger) Records(ctx context.Context, kind model.AlertKind) ([]model.AlertRecord, error) {
	var records []model.AlertRecord
	if err := l.db.WithContext(ctx).Where("kind = ?", kind).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query alert records: %w", err)
	}
	return records, nil
}

func (l *GormLedger) Last(ctx context.Context, kind model.AlertKind) (*model.AlertRecord, error) {
	return l.last(l.db.WithContext(ctx).Where("kind = ?", kind))
}

func (l *GormLedger) LastFor(ctx context.Context, kind model.AlertKind, bank model.Bank) (*model.AlertRecord, error) {
	return l.last(l.db.WithContext(ctx).Where("kind = ? AND bank = ?", kind, bank))
}

func (l *GormLedger) last(q *gorm.DB) (*model.AlertRecord, error) {
	var rec model.AlertRecord
	err := q.Order("timestamp DESC").Order("id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last alert record: %w", err)
	}
	return &rec, nil
}

var (
	_ ReadingStore = (*GormReadingStore)(nil)
	_ AlertLedger  = (*GormLedger)(nil)
)
