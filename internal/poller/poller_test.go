package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/alert"
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/portal"
	"co2-bank-monitor/internal/store"
)

var t0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeSession struct {
	mu          sync.Mutex
	err         error
	calls       int
	invalidated int
}

func (f *fakeSession) Token(ctx context.Context) (*portal.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &portal.Token{Value: "tok"}, nil
}

func (f *fakeSession) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

type fakeFetcher struct {
	mu     sync.Mutex
	snap   func() *model.Snapshot
	err    error
	calls  int
	during func()
	called chan struct{}
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, token *portal.Token) (*model.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	during, err, snap := f.during, f.err, f.snap
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if f.called != nil {
		defer func() { f.called <- struct{}{} }()
	}
	if err != nil {
		return nil, err
	}
	return snap(), nil
}

type evalCall struct {
	kind model.AlertKind
	snap *model.Snapshot
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []evalCall
	panic bool
}

func (f *fakeEvaluator) EvaluateLowContent(ctx context.Context, snap *model.Snapshot) []alert.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	f.calls = append(f.calls, evalCall{model.AlertLowContent, snap})
	return nil
}

func (f *fakeEvaluator) EvaluateStaleness(ctx context.Context, snap *model.Snapshot) []alert.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, evalCall{model.AlertStaleness, snap})
	return nil
}

func goodSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Left:  model.BankSample{Bank: model.BankLeft, MessageTime: "2024-06-10T11:00:00", LastChange: "2024-06-01T09:00:00", Content: "55"},
		Right: model.BankSample{Bank: model.BankRight, MessageTime: "2024-06-10T11:05:00", LastChange: "2024-05-20T09:00:00", Content: "8"},
	}
}

type fixture struct {
	svc      *Service
	session  *fakeSession
	fetcher  *fakeFetcher
	eval     *fakeEvaluator
	readings *store.FileReadingStore
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	readings, err := store.NewFileReadingStore(t.TempDir(), time.UTC, logger)
	require.NoError(t, err)
	f := &fixture{
		session:  &fakeSession{},
		fetcher:  &fakeFetcher{snap: goodSnapshot},
		eval:     &fakeEvaluator{},
		readings: readings,
		clock:    clock.NewFake(t0),
	}
	cfg := config.Default().Poller
	f.svc = NewService(cfg, f.session, f.fetcher, readings, f.eval, f.clock, time.UTC, logger)
	return f
}

func (f *fixture) stored(t *testing.T) []model.BankReading {
	t.Helper()
	all, err := f.readings.All(context.Background())
	require.NoError(t, err)
	return all
}

func TestPollOnce_Success(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.PollOnce(context.Background()))

	snap := f.svc.Latest()
	require.NotNil(t, snap)
	assert.Equal(t, t0, snap.ReceivedAt)

	all := f.stored(t)
	require.Len(t, all, 2)
	assert.Equal(t, model.BankLeft, all[0].Bank)
	assert.Equal(t, 55, all[0].Content)
	assert.Equal(t, model.BankRight, all[1].Bank)
	assert.Equal(t, 8, all[1].Content)

	require.Len(t, f.eval.calls, 2)
	assert.Equal(t, evalCall{model.AlertLowContent, snap}, f.eval.calls[0])
	assert.Equal(t, evalCall{model.AlertStaleness, snap}, f.eval.calls[1])
}

func TestPollOnce_FetchFailureStillChecksStaleness(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.PollOnce(context.Background()))
	previous := f.svc.Latest()
	f.eval.calls = nil

	f.fetcher.err = &portal.FetchError{Status: 503}
	err := f.svc.PollOnce(context.Background())

	var fe *portal.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Len(t, f.stored(t), 2, "no new reading appended")
	assert.Same(t, previous, f.svc.Latest())
	assert.Equal(t, []evalCall{{model.AlertStaleness, previous}}, f.eval.calls)
	assert.Zero(t, f.session.invalidated)
}

func TestPollOnce_AuthFailureSkipsFetch(t *testing.T) {
	f := newFixture(t)
	f.session.err = &portal.AuthError{State: portal.StateFormFetched, Cause: portal.ErrNoAuthorizationCode}

	err := f.svc.PollOnce(context.Background())
	assert.ErrorIs(t, err, portal.ErrNoAuthorizationCode)
	assert.Zero(t, f.fetcher.calls)
	assert.Equal(t, []evalCall{{model.AlertStaleness, nil}}, f.eval.calls)
}

func TestPollOnce_UnauthorizedInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = &portal.FetchError{Status: 401}

	_ = f.svc.PollOnce(context.Background())
	assert.Equal(t, 1, f.session.invalidated)
}

func TestPollOnce_UnparseableBankNotStored(t *testing.T) {
	f := newFixture(t)
	f.fetcher.snap = func() *model.Snapshot {
		s := goodSnapshot()
		s.Left.MessageTime = "None"
		return s
	}

	require.NoError(t, f.svc.PollOnce(context.Background()))
	all := f.stored(t)
	require.Len(t, all, 1)
	assert.Equal(t, model.BankRight, all[0].Bank)
	assert.Len(t, f.eval.calls, 2, "alerts still evaluated")
}

func TestPollOnce_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.eval.panic = true

	err := f.svc.PollOnce(context.Background())
	assert.ErrorContains(t, err, "panicked")
}

func waitCycle(t *testing.T, f *fixture) {
	t.Helper()
	select {
	case <-f.fetcher.called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a poll cycle")
	}
}

func waitArmed(t *testing.T, f *fixture) {
	t.Helper()
	require.Eventually(t, func() bool { return f.clock.PendingTimers() == 1 }, 2*time.Second, time.Millisecond)
}

func TestRun_Schedule(t *testing.T) {
	f := newFixture(t)
	f.fetcher.called = make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	waitCycle(t, f) // first cycle runs immediately
	waitArmed(t, f)

	f.clock.Advance(59 * time.Minute)
	select {
	case <-f.fetcher.called:
		t.Fatal("cycle ran before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	f.clock.Advance(time.Minute)
	waitCycle(t, f)
	waitArmed(t, f)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Equal(t, 2, f.fetcher.calls)
}

func TestRun_SlowCycleDelaysNext(t *testing.T) {
	f := newFixture(t)
	f.fetcher.called = make(chan struct{}, 10)
	f.fetcher.during = func() {
		f.fetcher.mu.Lock()
		calls := f.fetcher.calls
		f.fetcher.mu.Unlock()
		if calls == 1 {
			f.clock.Set(f.clock.Now().Add(90 * time.Minute))
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.svc.Run(ctx)

	waitCycle(t, f)
	// the first cycle overran the interval, so the second starts without advancing the clock
	waitCycle(t, f)
	f.fetcher.mu.Lock()
	assert.Equal(t, 2, f.fetcher.calls)
	f.fetcher.mu.Unlock()
}

func TestRun_Disabled(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.Enabled = false

	done := make(chan struct{})
	go func() {
		f.svc.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled poller should return immediately")
	}
	assert.Zero(t, f.fetcher.calls)
}
