package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/store"
)

// SnapshotSource provides the latest in-memory reading.
type SnapshotSource interface {
	Latest() *model.Snapshot
}

// Deps are the collaborators of the HTTP handlers. DB and Webpush are optional.
type Deps struct {
	Snapshots    SnapshotSource
	Readings     store.ReadingStore
	Ledger       store.AlertLedger
	DB           *gorm.DB
	Webpush      *webpush.Options
	Clock        clock.Clock
	Location     *time.Location
	Logger       *slog.Logger
	PlotDays     int
	Threshold    int
	DashboardURL string
}

// Handler holds shared dependencies for API handlers. Handlers only read; they
// never trigger network calls or alerts.
type Handler struct {
	snapshots    SnapshotSource
	readings     store.ReadingStore
	ledger       store.AlertLedger
	db           *gorm.DB
	webpush      *webpush.Options
	clock        clock.Clock
	loc          *time.Location
	logger       *slog.Logger
	plotDays     int
	threshold    int
	dashboardURL string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PlotDays <= 0 {
		d.PlotDays = 10
	}
	return &Handler{
		snapshots:    d.Snapshots,
		readings:     d.Readings,
		ledger:       d.Ledger,
		db:           d.DB,
		webpush:      d.Webpush,
		clock:        d.Clock,
		loc:          d.Location,
		logger:       d.Logger,
		plotDays:     d.PlotDays,
		threshold:    d.Threshold,
		dashboardURL: d.DashboardURL,
	}
}

func (h *Handler) latest() *model.Snapshot {
	if h.snapshots == nil {
		return nil
	}
	return h.snapshots.Latest()
}

// dataVersion changes whenever the poller publishes a new snapshot.
func (h *Handler) dataVersion() string {
	snap := h.latest()
	if snap == nil {
		return "none"
	}
	return strconv.FormatInt(snap.ReceivedAt.UnixNano(), 36)
}
