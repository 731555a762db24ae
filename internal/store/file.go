package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/parse"
)

// appendLines writes each line with a single Write on an O_APPEND file and syncs.
// header is written first when the file is new or empty.
func appendLines(path, header string, lines []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if header != "" {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() == 0 {
			lines = append([]string{header}, lines...)
		}
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return f.Sync()
}

// readLines returns complete lines only; a trailing line without a newline is a
// partial write and is dropped. A missing file has no lines.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		return nil, nil
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// FileReadingStore keeps readings in data_log.csv.
type FileReadingStore struct {
	path   string
	loc    *time.Location
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileReadingStore creates the data directory if needed and writes the CSV header
// when the log is missing or empty.
func NewFileReadingStore(dataDir string, loc *time.Location, logger *slog.Logger) (*FileReadingStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileReadingStore{
		path:   filepath.Join(dataDir, ReadingsFile),
		loc:    loc,
		logger: logger,
	}
	if err := appendLines(s.path, readingsHeaderLine, nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileReadingStore) Append(ctx context.Context, readings ...model.BankReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lines := make([]string, 0, len(readings))
	for _, r := range readings {
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%d",
			r.MessageTime.In(s.loc).Format(parse.VendorLayout),
			r.Bank,
			r.LastChange.In(s.loc).Format(parse.VendorLayout),
			r.Content))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, readingsHeaderLine, lines)
}

func (s *FileReadingStore) All(ctx context.Context) ([]model.BankReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := readLines(s.path)
	if err != nil {
		return nil, err
	}

	readings := make([]model.BankReading, 0, len(lines))
	for i, line := range lines {
		if line == readingsHeaderLine {
			continue
		}
		r, err := s.decode(line)
		if err != nil {
			s.logger.Debug("skipping malformed reading line", "line", i+1, "error", err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *FileReadingStore) Since(ctx context.Context, from time.Time) ([]model.BankReading, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if !r.MessageTime.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileReadingStore) decode(line string) (model.BankReading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return model.BankReading{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	bank := model.Bank(strings.TrimSpace(fields[1]))
	if !bank.Valid() {
		return model.BankReading{}, fmt.Errorf("unknown bank %q", fields[1])
	}
	return parse.Reading(model.BankSample{
		Bank:        bank,
		MessageTime: fields[0],
		LastChange:  fields[2],
		Content:     fields[3],
	}, s.loc)
}

var _ ReadingStore = (*FileReadingStore)(nil)
