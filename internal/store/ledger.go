package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"co2-bank-monitor/internal/model"
)

// FileLedger keeps alert records in last_alert.log and staleness_alert.log.
// Log-only staleness lines carry a trailing "log" field; every other line reads
// back with EmailSent set.
type FileLedger struct {
	dir    string
	loc    *time.Location
	logger *slog.Logger

	mu sync.Mutex
}

const logOnlyMarker = "log"

func NewFileLedger(dataDir string, loc *time.Location, logger *slog.Logger) (*FileLedger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileLedger{dir: dataDir, loc: loc, logger: logger}, nil
}

func (l *FileLedger) pathFor(kind model.AlertKind) (string, error) {
	switch kind {
	case model.AlertLowContent:
		return filepath.Join(l.dir, LowContentLogFile), nil
	case model.AlertStaleness:
		return filepath.Join(l.dir, StalenessLogFile), nil
	default:
		return "", fmt.Errorf("unknown alert kind %q", kind)
	}
}

func (l *FileLedger) Append(ctx context.Context, rec model.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.pathFor(rec.Kind)
	if err != nil {
		return err
	}
	line := rec.Timestamp.In(l.loc).Format(ledgerTimeLayout) + "," + string(rec.Bank)
	if rec.Kind == model.AlertStaleness {
		line += "," + strconv.Itoa(rec.DaysOld)
		if !rec.EmailSent {
			line += "," + logOnlyMarker
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLines(path, "", []string{line})
}

func (l *FileLedger) Records(ctx context.Context, kind model.AlertKind) ([]model.AlertRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.pathFor(kind)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	records := make([]model.AlertRecord, 0, len(lines))
	for i, line := range lines {
		rec, err := l.decode(kind, line)
		if err != nil {
			l.logger.Warn("skipping malformed ledger line", "file", filepath.Base(path), "line", i+1, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *FileLedger) Last(ctx context.Context, kind model.AlertKind) (*model.AlertRecord, error) {
	records, err := l.Records(ctx, kind)
	if err != nil {
		return nil, err
	}
	return latest(records, func(model.AlertRecord) bool { return true }), nil
}

func (l *FileLedger) LastFor(ctx context.Context, kind model.AlertKind, bank model.Bank) (*model.AlertRecord, error) {
	records, err := l.Records(ctx, kind)
	if err != nil {
		return nil, err
	}
	return latest(records, func(r model.AlertRecord) bool { return r.Bank == bank }), nil
}

func (l *FileLedger) decode(kind model.AlertKind, line string) (model.AlertRecord, error) {
	fields := strings.Split(line, ",")
	logOnly := false
	want := 2
	if kind == model.AlertStaleness {
		want = 3
		if len(fields) == 4 && strings.TrimSpace(fields[3]) == logOnlyMarker {
			logOnly = true
			fields = fields[:3]
		}
	}
	if len(fields) != want {
		return model.AlertRecord{}, fmt.Errorf("want %d fields, got %d", want, len(fields))
	}
	ts, err := time.ParseInLocation(ledgerTimeLayout, strings.TrimSpace(fields[0]), l.loc)
	if err != nil {
		return model.AlertRecord{}, err
	}
	bank := model.Bank(strings.TrimSpace(fields[1]))
	if !bank.Valid() {
		return model.AlertRecord{}, fmt.Errorf("unknown bank %q", fields[1])
	}
	rec := model.AlertRecord{Timestamp: ts, Bank: bank, Kind: kind, EmailSent: !logOnly}
	if kind == model.AlertStaleness {
		days, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return model.AlertRecord{}, fmt.Errorf("days: %w", err)
		}
		rec.DaysOld = days
	}
	return rec, nil
}

var _ AlertLedger = (*FileLedger)(nil)
