package portal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"co2-bank-monitor/internal/model"
)

// Columns of the vendor CSV.
const (
	ColMessageTimeLeft  = "messageTimeLeft"
	ColLastChangeLeft   = "lastChangeLeft"
	ColLeftContents     = "leftBankContents"
	ColMessageTimeRight = "messageTimeRight"
	ColLastChangeRight  = "lastChangeRight"
	ColRightContents    = "rightBankContents"
)

var requiredColumns = []string{
	ColMessageTimeLeft, ColLastChangeLeft, ColLeftContents,
	ColMessageTimeRight, ColLastChangeRight, ColRightContents,
}

// DecodeSnapshot reads a header row and at least one data row. When the export
// holds several rows the last one wins.
func DecodeSnapshot(r io.Reader) (*model.Snapshot, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformedCSV, strings.Join(missing, ", "))
	}

	var last []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}
		last = row
	}
	if last == nil {
		return nil, ErrNoRows
	}

	field := func(col string) string {
		return strings.TrimSpace(last[index[col]])
	}
	return &model.Snapshot{
		Left: model.BankSample{
			Bank:        model.BankLeft,
			MessageTime: field(ColMessageTimeLeft),
			LastChange:  field(ColLastChangeLeft),
			Content:     field(ColLeftContents),
		},
		Right: model.BankSample{
			Bank:        model.BankRight,
			MessageTime: field(ColMessageTimeRight),
			LastChange:  field(ColLastChangeRight),
			Content:     field(ColRightContents),
		},
	}, nil
}
