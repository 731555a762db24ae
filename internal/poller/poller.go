// Package poller runs the fetch, store and alert cycle on a fixed schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/alert"
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/parse"
	"co2-bank-monitor/internal/portal"
	"co2-bank-monitor/internal/store"
)

// TokenProvider hands out a fresh bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (*portal.Token, error)
	Invalidate()
}

// Fetcher downloads the latest snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, token *portal.Token) (*model.Snapshot, error)
}

// Evaluator is the alert engine.
type Evaluator interface {
	EvaluateLowContent(ctx context.Context, snap *model.Snapshot) []alert.Result
	EvaluateStaleness(ctx context.Context, snap *model.Snapshot) []alert.Result
}

// Service orchestrates one poll cycle per interval.
type Service struct {
	cfg      config.PollerConfig
	session  TokenProvider
	fetcher  Fetcher
	readings store.ReadingStore
	alerts   Evaluator
	clock    clock.Clock
	loc      *time.Location
	logger   *slog.Logger

	latest atomic.Pointer[model.Snapshot]
}

func NewService(cfg config.PollerConfig, session TokenProvider, fetcher Fetcher, readings store.ReadingStore, alerts Evaluator, clk clock.Clock, loc *time.Location, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		session:  session,
		fetcher:  fetcher,
		readings: readings,
		alerts:   alerts,
		clock:    clk,
		loc:      loc,
		logger:   logger,
	}
}

// Latest returns the most recently fetched snapshot, or nil before the first success.
func (s *Service) Latest() *model.Snapshot {
	return s.latest.Load()
}

// Run polls immediately and then once per interval, start to start, until ctx is done.
// A cycle that overruns the interval is followed by the next one straight away.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("poller is disabled; not starting")
		return
	}
	s.logger.Info("starting poller", "interval", s.cfg.Interval)

	start := s.clock.Now()
	s.PollOnce(ctx)

	timer := s.clock.NewTimer(s.untilNext(start))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poller shutting down")
			return
		case <-timer.C():
			start = s.clock.Now()
			s.PollOnce(ctx)
			timer.Reset(s.untilNext(start))
		}
	}
}

func (s *Service) untilNext(start time.Time) time.Duration {
	d := start.Add(s.cfg.Interval).Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// PollOnce runs a single cycle. The returned error is informational; every failure
// has already been logged and the cycle never panics.
func (s *Service) PollOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
			s.logger.Error("poll cycle panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	s.logger.Debug("executing poll cycle")
	snap, err := s.fetch(ctx)
	if err != nil {
		s.logFetchError(err)
		// staleness must still be noticed while fetches fail
		s.alerts.EvaluateStaleness(ctx, s.latest.Load())
		return err
	}

	s.latest.Store(snap)
	s.appendReadings(ctx, snap)
	s.alerts.EvaluateLowContent(ctx, snap)
	s.alerts.EvaluateStaleness(ctx, snap)
	s.logger.Info("poll cycle finished",
		"left", snap.Left.Content, "right", snap.Right.Content,
		"message_time_left", snap.Left.MessageTime, "message_time_right", snap.Right.MessageTime)
	return nil
}

func (s *Service) fetch(ctx context.Context) (*model.Snapshot, error) {
	token, err := s.session.Token(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.fetcher.FetchSnapshot(ctx, token)
	if err != nil {
		var fe *portal.FetchError
		if errors.As(err, &fe) && fe.Unauthorized() {
			s.session.Invalidate()
		}
		return nil, err
	}
	snap.ReceivedAt = s.clock.Now()
	return snap, nil
}

func (s *Service) logFetchError(err error) {
	var (
		ae *portal.AuthError
		fe *portal.FetchError
	)
	switch {
	case errors.As(err, &ae):
		s.logger.Error("authentication failed; skipping fetch", "state", ae.State.String(), "error", ae.Cause)
	case errors.As(err, &fe) && fe.Unauthorized():
		s.logger.Warn("data endpoint rejected the token; will log in again next cycle", "status", fe.Status)
	case errors.As(err, &fe):
		s.logger.Error("fetch failed; no new reading this cycle", "status", fe.Status, "error", err)
	default:
		s.logger.Error("poll cycle failed", "error", err)
	}
}

func (s *Service) appendReadings(ctx context.Context, snap *model.Snapshot) {
	readings := make([]model.BankReading, 0, len(model.Banks))
	for _, bank := range model.Banks {
		r, err := parse.Reading(snap.Sample(bank), s.loc)
		if err != nil {
			s.logger.Warn("unparseable reading; not stored", "bank", bank, "error", err)
			continue
		}
		readings = append(readings, r)
	}
	if len(readings) == 0 {
		return
	}
	if err := s.readings.Append(ctx, readings...); err != nil {
		s.logger.Error("failed to store readings", "error", err)
	}
}
