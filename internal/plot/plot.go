// Package plot renders the bank content history as a PNG chart.
package plot

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fogleman/gg"

	"co2-bank-monitor/internal/model"
)

const (
	yMin = -5.0
	yMax = 105.0
)

// Options controls the chart geometry and time window.
type Options struct {
	Width     int
	Height    int
	From, To  time.Time
	Location  *time.Location
	Threshold int
}

type panel struct {
	x, y, w, h float64
	from, to   time.Time
}

func (p panel) px(t time.Time) float64 {
	span := p.to.Sub(p.from).Seconds()
	if span <= 0 {
		return p.x
	}
	return p.x + p.w*t.Sub(p.from).Seconds()/span
}

func (p panel) py(v float64) float64 {
	return p.y + p.h*(1-(v-yMin)/(yMax-yMin))
}

// Render draws one panel per bank, stacked, with samples joined by lines and a
// dashed vertical line at every low-content alert of that bank.
func Render(w io.Writer, readings []model.BankReading, alerts []model.AlertRecord, opt Options) error {
	if opt.Width <= 0 {
		opt.Width = 1000
	}
	if opt.Height <= 0 {
		opt.Height = 700
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if !opt.To.After(opt.From) {
		return fmt.Errorf("invalid time window %s..%s", opt.From, opt.To)
	}

	dc := gg.NewContext(opt.Width, opt.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	const marginLeft, marginRight, marginTop, gap, marginBottom = 50.0, 20.0, 30.0, 50.0, 30.0
	ph := (float64(opt.Height) - marginTop - gap - marginBottom) / 2
	for i, bank := range model.Banks {
		p := panel{
			x:    marginLeft,
			y:    marginTop + float64(i)*(ph+gap),
			w:    float64(opt.Width) - marginLeft - marginRight,
			h:    ph,
			from: opt.From,
			to:   opt.To,
		}
		drawAxes(dc, p, opt)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(title(bank), p.x+p.w/2, p.y-12, 0.5, 0.5)
		drawAlerts(dc, p, bank, alerts)
		drawSeries(dc, p, bank, readings)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func title(bank model.Bank) string {
	if bank == model.BankRight {
		return "Right bank content (%)"
	}
	return "Left bank content (%)"
}

func drawAxes(dc *gg.Context, p panel, opt Options) {
	dc.SetLineWidth(1)
	dc.SetDash()
	for _, v := range []float64{0, 25, 50, 75, 100} {
		y := p.py(v)
		dc.SetRGB(0.88, 0.88, 0.88)
		dc.DrawLine(p.x, y, p.x+p.w, y)
		dc.Stroke()
		dc.SetRGB(0.3, 0.3, 0.3)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", v), p.x-8, y, 1, 0.35)
	}

	f := opt.From.In(opt.Location)
	day := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, opt.Location)
	for ; !day.After(opt.To); day = day.AddDate(0, 0, 1) {
		if day.Before(opt.From) {
			continue
		}
		x := p.px(day)
		dc.SetRGB(0.93, 0.93, 0.93)
		dc.DrawLine(x, p.y, x, p.y+p.h)
		dc.Stroke()
		dc.SetRGB(0.3, 0.3, 0.3)
		dc.DrawStringAnchored(day.Format("01-02"), x, p.y+p.h+12, 0.5, 0.5)
	}

	if opt.Threshold > 0 {
		dc.SetRGB(1, 0.55, 0)
		dc.SetDash(2, 3)
		y := p.py(float64(opt.Threshold))
		dc.DrawLine(p.x, y, p.x+p.w, y)
		dc.Stroke()
		dc.SetDash()
	}

	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawRectangle(p.x, p.y, p.w, p.h)
	dc.Stroke()
}

func drawAlerts(dc *gg.Context, p panel, bank model.Bank, alerts []model.AlertRecord) {
	dc.SetRGB(0.85, 0.1, 0.1)
	dc.SetLineWidth(1.5)
	dc.SetDash(6, 4)
	for _, a := range alerts {
		if a.Bank != bank || a.Kind != model.AlertLowContent || a.Timestamp.Before(p.from) || a.Timestamp.After(p.to) {
			continue
		}
		x := p.px(a.Timestamp)
		dc.DrawLine(x, p.y, x, p.y+p.h)
		dc.Stroke()
	}
	dc.SetDash()
}

func drawSeries(dc *gg.Context, p panel, bank model.Bank, readings []model.BankReading) {
	var pts []model.BankReading
	for _, r := range readings {
		if r.Bank == bank && !r.MessageTime.Before(p.from) && !r.MessageTime.After(p.to) {
			pts = append(pts, r)
		}
	}
	if len(pts) == 0 {
		dc.SetRGB(0.5, 0.5, 0.5)
		dc.DrawStringAnchored("no data", p.x+p.w/2, p.y+p.h/2, 0.5, 0.5)
		return
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].MessageTime.Before(pts[j].MessageTime) })

	dc.SetRGB(0.12, 0.35, 0.75)
	dc.SetLineWidth(2)
	for i, r := range pts {
		x, y := p.px(r.MessageTime), p.py(float64(r.Content))
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()
	for _, r := range pts {
		dc.DrawCircle(p.px(r.MessageTime), p.py(float64(r.Content)), 3)
		dc.Fill()
	}
}
