package model

import "time"

// AlertKind distinguishes the two alert ledgers.
type AlertKind string

const (
	AlertLowContent AlertKind = "low_content"
	AlertStaleness  AlertKind = "staleness"
)

// AlertRecord is one ledger entry. Timestamps carry minute precision.
type AlertRecord struct {
	ID        int64     `gorm:"primaryKey" json:"-"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Bank      Bank      `gorm:"size:8;not null" json:"bank"`
	Kind      AlertKind `gorm:"size:16;not null;index" json:"kind"`
	DaysOld   int       `json:"daysOld,omitempty"`
	// EmailSent is false for the log-only companion record of a staleness pass.
	EmailSent bool `gorm:"not null" json:"emailSent"`
}
