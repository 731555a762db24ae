package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/parse"
)

const (
	displayLayout = "2006-01-02 15:04"
	notAvailable  = "N/A"
)

// CSS classes used by the dashboard template.
const (
	classGood = "good"
	classWarn = "warn"
	classBad  = "bad"
)

type bankView struct {
	Name             string
	Content          string
	ContentClass     string
	MessageTime      string
	MessageTimeClass string
	LastChange       string
}

type dashboardView struct {
	Banks        []bankView
	LastAlert    string
	ReceivedAt   string
	DashboardURL string
	PlotVersion  string
}

// GetDashboard renders the status page.
func (h *Handler) GetDashboard(c *gin.Context) {
	now := h.clock.Now()
	view := dashboardView{
		LastAlert:    h.lastAlertText(c),
		ReceivedAt:   notAvailable,
		DashboardURL: h.dashboardURL,
		PlotVersion:  h.dataVersion(),
	}

	snap := h.latest()
	if snap != nil {
		view.ReceivedAt = snap.ReceivedAt.In(h.loc).Format(displayLayout)
	}
	for _, bank := range model.Banks {
		if snap == nil {
			view.Banks = append(view.Banks, bankView{
				Name:        bankTitle(bank),
				Content:     notAvailable,
				MessageTime: notAvailable,
				LastChange:  notAvailable,
			})
			continue
		}
		view.Banks = append(view.Banks, h.bankView(snap.Sample(bank), now))
	}

	c.HTML(http.StatusOK, "dashboard.html", view)
}

func (h *Handler) bankView(s model.BankSample, now time.Time) bankView {
	v := bankView{
		Name:        bankTitle(s.Bank),
		Content:     notAvailable,
		MessageTime: h.displayTime("messageTime", s.MessageTime),
		LastChange:  h.displayTime("lastChange", s.LastChange),
	}
	if content, err := parse.Content("content", s.Content); err == nil {
		v.Content = fmt.Sprintf("%d%%", content)
		v.ContentClass = contentClass(content)
	}
	if t, err := parse.Time("messageTime", s.MessageTime, h.loc); err == nil {
		v.MessageTimeClass = ageClass(now.Sub(t))
	}
	return v
}

func (h *Handler) displayTime(field, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return notAvailable
	}
	t, err := parse.Time(field, raw, h.loc)
	if err != nil {
		return raw
	}
	return t.Format(displayLayout)
}

func (h *Handler) lastAlertText(c *gin.Context) string {
	rec, err := h.ledger.Last(c.Request.Context(), model.AlertLowContent)
	if err != nil {
		h.logger.Warn("failed to read alert history", "error", err)
		return "Alert history unavailable"
	}
	if rec == nil {
		return "No alerts sent yet"
	}
	return fmt.Sprintf("The last alert was sent on %s for the %s bank",
		rec.Timestamp.In(h.loc).Format(displayLayout), rec.Bank)
}

func contentClass(content int) string {
	switch {
	case content > 70:
		return classGood
	case content > 10:
		return classWarn
	default:
		return classBad
	}
}

// ageClass colours a message time by whole days elapsed.
func ageClass(age time.Duration) string {
	days := int(age / (24 * time.Hour))
	switch {
	case days > 3:
		return classBad
	case days > 1:
		return classWarn
	default:
		return ""
	}
}

func bankTitle(b model.Bank) string {
	if b == model.BankRight {
		return "Right bank"
	}
	return "Left bank"
}
