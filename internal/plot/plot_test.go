package plot

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-bank-monitor/internal/model"
)

func TestRender_ProducesPNG(t *testing.T) {
	to := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	from := to.Add(-10 * 24 * time.Hour)
	var readings []model.BankReading
	for h := 0; h < 240; h += 6 {
		ts := from.Add(time.Duration(h) * time.Hour)
		readings = append(readings,
			model.BankReading{Bank: model.BankLeft, MessageTime: ts, Content: 90 - h/4},
			model.BankReading{Bank: model.BankRight, MessageTime: ts, Content: 40})
	}
	alerts := []model.AlertRecord{{Timestamp: to.Add(-24 * time.Hour), Bank: model.BankLeft, Kind: model.AlertLowContent}}

	var buf bytes.Buffer
	err := Render(&buf, readings, alerts, Options{Width: 800, Height: 600, From: from, To: to, Location: time.UTC, Threshold: 10})
	require.NoError(t, err)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestRender_EmptyHistory(t *testing.T) {
	to := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil, nil, Options{From: to.Add(-time.Hour), To: to}))
	assert.NotZero(t, buf.Len())
}

func TestRender_InvalidWindow(t *testing.T) {
	to := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, nil, nil, Options{From: to, To: to}))
}

func TestPanelScale(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := panel{x: 10, y: 0, w: 100, h: 110, from: from, to: from.Add(10 * time.Hour)}
	assert.InDelta(t, 60, p.px(from.Add(5*time.Hour)), 1e-9)
	assert.InDelta(t, 0, p.py(105), 1e-9)
	assert.InDelta(t, 110, p.py(-5), 1e-9)
}
