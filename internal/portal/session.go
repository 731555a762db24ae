package portal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"co2-bank-monitor/internal/clock"
)

// TokenSource produces new tokens.
type TokenSource interface {
	Authenticate(ctx context.Context) (*Token, error)
}

// Session holds the single live token and refreshes it when it is too old.
type Session struct {
	source TokenSource
	clock  clock.Clock
	maxAge time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	token *Token
}

func NewSession(source TokenSource, clk clock.Clock, maxAge time.Duration, logger *slog.Logger) *Session {
	return &Session{source: source, clock: clk, maxAge: maxAge, logger: logger}
}

// Token returns a token younger than the max age, logging in at most once per call.
// The live token is only replaced on success.
func (s *Session) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && !s.token.Expired(s.clock.Now(), s.maxAge) {
		return s.token, nil
	}
	if s.token == nil {
		s.logger.Info("no session token; logging in")
	} else {
		s.logger.Info("session token expired; logging in", "obtained_at", s.token.ObtainedAt)
	}

	tok, err := s.source.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	s.token = tok
	return tok, nil
}

// Invalidate drops the live token so that the next call to Token logs in again.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// Current returns the live token without refreshing it.
func (s *Session) Current() *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
