package model

import "time"

// Bank identifies one of the two cylinder supply positions.
type Bank string

const (
	BankLeft  Bank = "left"
	BankRight Bank = "right"
)

// Banks lists the banks in evaluation order.
var Banks = []Bank{BankLeft, BankRight}

// Valid reports whether b is a known bank.
func (b Bank) Valid() bool {
	return b == BankLeft || b == BankRight
}

// BankReading is one typed reading for one bank, appended once per poll cycle.
type BankReading struct {
	ID          int64     `gorm:"primaryKey" json:"-"`
	Bank        Bank      `gorm:"size:8;not null;index:idx_bank_readings_bank_message_time" json:"bank"`
	MessageTime time.Time `gorm:"not null;index:idx_bank_readings_bank_message_time" json:"messageTime"`
	LastChange  time.Time `json:"lastChange"`
	Content     int       `gorm:"not null" json:"content"`
}

// BankSample holds the raw vendor fields for one bank, exactly as returned by the portal.
type BankSample struct {
	Bank        Bank
	MessageTime string
	LastChange  string
	Content     string
}

// Snapshot is the latest reading set published by the poller. It is never mutated
// after publication; a new cycle publishes a new Snapshot.
type Snapshot struct {
	Left       BankSample
	Right      BankSample
	ReceivedAt time.Time
}

// Sample returns the sample for the given bank.
func (s *Snapshot) Sample(b Bank) BankSample {
	if b == BankRight {
		return s.Right
	}
	return s.Left
}
