// Package parse converts raw vendor CSV fields into typed values.
package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"co2-bank-monitor/internal/model"
)

// VendorLayout is the timestamp layout used by the portal (no zone; local to the site).
const VendorLayout = "2006-01-02T15:04:05"

// Error reports a field that could not be parsed.
type Error struct {
	Field string
	Value string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Time parses a vendor timestamp in loc. Fractional seconds and RFC 3339 values with a zone
// are also accepted.
func Time(field, raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &Error{Field: field, Value: raw, Cause: fmt.Errorf("empty value")}
	}
	if t, err := time.ParseInLocation(VendorLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	_, err := time.ParseInLocation(VendorLayout, s, loc)
	return time.Time{}, &Error{Field: field, Value: raw, Cause: err}
}

// Content parses a bank fill level in percent. Decimal values are truncated.
func Content(field, raw string) (int, error) {
	s := strings.TrimSpace(raw)
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, &Error{Field: field, Value: raw, Cause: err}
		}
		n = int(f)
	}
	if n < 0 || n > 100 {
		return 0, &Error{Field: field, Value: raw, Cause: fmt.Errorf("out of range 0..100")}
	}
	return n, nil
}

// Reading converts a raw sample into a typed reading. Every field must parse.
func Reading(s model.BankSample, loc *time.Location) (model.BankReading, error) {
	msg, err := Time("messageTime", s.MessageTime, loc)
	if err != nil {
		return model.BankReading{}, err
	}
	last, err := Time("lastChange", s.LastChange, loc)
	if err != nil {
		return model.BankReading{}, err
	}
	content, err := Content("content", s.Content)
	if err != nil {
		return model.BankReading{}, err
	}
	return model.BankReading{Bank: s.Bank, MessageTime: msg, LastChange: last, Content: content}, nil
}
