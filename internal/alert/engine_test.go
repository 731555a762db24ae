package alert

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
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/parse"
	"co2-bank-monitor/internal/store"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeDispatcher struct {
	records []model.AlertRecord
}

func (d *fakeDispatcher) Dispatch(rec model.AlertRecord) {
	d.records = append(d.records, rec)
}

var testNow = time.Date(2024, 6, 10, 12, 0, 30, 0, time.UTC)

type fixture struct {
	engine *Engine
	mailer *fakeMailer
	ledger *store.FileLedger
	clock  *clock.Fake
	push   *fakeDispatcher
}

func newFixture(t *testing.T, notify bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := store.NewFileLedger(t.TempDir(), time.UTC, logger)
	require.NoError(t, err)

	cfg := config.Default().Alerts
	cfg.Notify = notify
	creds := &config.Credentials{
		SMTPSender:    "lab@example.ac.uk",
		SMTPRecipient: "orders@supplier.example",
		PO:            "PO-4711",
	}
	f := &fixture{
		mailer: &fakeMailer{},
		ledger: ledger,
		clock:  clock.NewFake(testNow),
		push:   &fakeDispatcher{},
	}
	f.engine = NewEngine(cfg, creds, ledger, f.mailer, f.clock, time.UTC, logger)
	f.engine.SetDispatcher(f.push)
	return f
}

func (f *fixture) seed(t *testing.T, rec model.AlertRecord) {
	t.Helper()
	require.NoError(t, f.ledger.Append(context.Background(), rec))
}

func (f *fixture) records(t *testing.T, kind model.AlertKind) []model.AlertRecord {
	t.Helper()
	recs, err := f.ledger.Records(context.Background(), kind)
	require.NoError(t, err)
	return recs
}

func vendorTime(t time.Time) string {
	return t.Format(parse.VendorLayout)
}

func snapshot(leftContent, rightContent string, leftAge, rightAge time.Duration) *model.Snapshot {
	return &model.Snapshot{
		Left:  model.BankSample{Bank: model.BankLeft, MessageTime: vendorTime(testNow.Add(-leftAge)), LastChange: vendorTime(testNow.Add(-leftAge)), Content: leftContent},
		Right: model.BankSample{Bank: model.BankRight, MessageTime: vendorTime(testNow.Add(-rightAge)), LastChange: vendorTime(testNow.Add(-rightAge)), Content: rightContent},
	}
}

func decisions(results []Result) []Decision {
	out := make([]Decision, len(results))
	for i, r := range results {
		out[i] = r.Decision
	}
	return out
}

func TestLowContent_Threshold(t *testing.T) {
	f := newFixture(t, true)
	results := f.engine.EvaluateLowContent(context.Background(), snapshot("10", "11", time.Hour, time.Hour))

	assert.Equal(t, []Decision{Sent, Idle}, decisions(results))
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, []string{"orders@supplier.example"}, msg.To)
	assert.Equal(t, []string{"lab@example.ac.uk"}, msg.Cc)
	assert.Equal(t, "Please deliver 40-VK to the cage between SECB and Flowers.", msg.Subject)
	assert.Contains(t, msg.Body, "PO-4711")
	assert.Contains(t, msg.Body, "on the left bank")

	recs := f.records(t, model.AlertLowContent)
	require.Len(t, recs, 1)
	assert.Equal(t, model.BankLeft, recs[0].Bank)
	assert.Equal(t, testNow.Truncate(time.Minute), recs[0].Timestamp)
	require.Len(t, f.push.records, 1)
}

func TestLowContent_NotifyDisabled(t *testing.T) {
	f := newFixture(t, false)
	results := f.engine.EvaluateLowContent(context.Background(), snapshot("3", "0", time.Hour, time.Hour))

	assert.Equal(t, []Decision{Disabled, Disabled}, decisions(results))
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.records(t, model.AlertLowContent))
}

func TestLowContent_PerBankCooldown(t *testing.T) {
	tests := []struct {
		name      string
		seed      []model.AlertRecord
		wantLeft  Decision
		wantMails int
	}{
		{
			name:      "empty ledger sends",
			wantLeft:  Sent,
			wantMails: 1,
		},
		{
			name:      "same bank 71h ago suppresses",
			seed:      []model.AlertRecord{{Timestamp: testNow.Add(-71 * time.Hour), Bank: model.BankLeft, Kind: model.AlertLowContent}},
			wantLeft:  Suppressed,
			wantMails: 0,
		},
		{
			name:      "same bank 73h ago sends",
			seed:      []model.AlertRecord{{Timestamp: testNow.Add(-73 * time.Hour), Bank: model.BankLeft, Kind: model.AlertLowContent}},
			wantLeft:  Sent,
			wantMails: 1,
		},
		{
			name:      "other bank recently does not suppress",
			seed:      []model.AlertRecord{{Timestamp: testNow.Add(-time.Hour), Bank: model.BankRight, Kind: model.AlertLowContent}},
			wantLeft:  Sent,
			wantMails: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			for _, rec := range tt.seed {
				f.seed(t, rec)
			}
			results := f.engine.EvaluateLowContent(context.Background(), snapshot("5", "80", time.Hour, time.Hour))
			assert.Equal(t, tt.wantLeft, results[0].Decision)
			assert.Len(t, f.mailer.sent, tt.wantMails)
			assert.Len(t, f.records(t, model.AlertLowContent), len(tt.seed)+tt.wantMails)
		})
	}
}

func TestLowContent_SecondCycleWithinCooldown(t *testing.T) {
	f := newFixture(t, true)
	snap := snapshot("5", "80", time.Hour, time.Hour)
	f.engine.EvaluateLowContent(context.Background(), snap)
	f.clock.Advance(time.Hour)
	results := f.engine.EvaluateLowContent(context.Background(), snap)

	assert.Equal(t, Suppressed, results[0].Decision)
	assert.Len(t, f.mailer.sent, 1)
}

func TestLowContent_SendFailureWritesNoRecord(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.err = errors.New("connection refused")

	results := f.engine.EvaluateLowContent(context.Background(), snapshot("5", "80", time.Hour, time.Hour))
	assert.Equal(t, Failed, results[0].Decision)
	var ne *NotificationError
	require.True(t, errors.As(results[0].Err, &ne))
	assert.Equal(t, model.BankLeft, ne.Bank)
	assert.Empty(t, f.records(t, model.AlertLowContent))
	assert.Empty(t, f.push.records)

	// the condition is evaluated again next cycle
	f.mailer.err = nil
	f.clock.Advance(time.Hour)
	results = f.engine.EvaluateLowContent(context.Background(), snapshot("5", "80", time.Hour, time.Hour))
	assert.Equal(t, Sent, results[0].Decision)
}

func TestLowContent_UnparseableContentIsSkipped(t *testing.T) {
	f := newFixture(t, true)
	results := f.engine.EvaluateLowContent(context.Background(), snapshot("None", "4", time.Hour, time.Hour))

	assert.Equal(t, []Decision{Skipped, Sent}, decisions(results))
	var pe *parse.Error
	require.True(t, errors.As(results[0].Err, &pe))
	assert.Equal(t, "leftBankContents", pe.Field)
}

func TestStaleness_SingleBank(t *testing.T) {
	f := newFixture(t, false)
	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", time.Hour, 4*24*time.Hour))

	assert.Equal(t, []Decision{Idle, Sent}, decisions(results), "staleness ignores the notify flag")
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, []string{"lab@example.ac.uk"}, msg.To)
	assert.Equal(t, "ALERT: CO2 Bank Data Staleness", msg.Subject)
	assert.Contains(t, msg.Body, "4 days ago")
	assert.Contains(t, msg.Body, "right bank")

	recs := f.records(t, model.AlertStaleness)
	require.Len(t, recs, 1)
	assert.Equal(t, model.BankRight, recs[0].Bank)
	assert.Equal(t, 4, recs[0].DaysOld)
}

func TestStaleness_BothBanksOneEmail(t *testing.T) {
	f := newFixture(t, true)
	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", 5*24*time.Hour, 4*24*time.Hour))

	assert.Equal(t, []Decision{Sent, Logged}, decisions(results))
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].Body, "left bank")

	recs := f.records(t, model.AlertStaleness)
	require.Len(t, recs, 2)
	assert.Equal(t, model.BankLeft, recs[0].Bank)
	assert.Equal(t, 5, recs[0].DaysOld)
	assert.Equal(t, model.BankRight, recs[1].Bank)
	assert.Equal(t, 4, recs[1].DaysOld)
	assert.False(t, recs[1].EmailSent)
	require.Len(t, f.push.records, 1, "log-only records are not pushed")
}

func TestStaleness_SharedCooldown(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, model.AlertRecord{Timestamp: testNow.Add(-23 * time.Hour), Bank: model.BankRight, Kind: model.AlertStaleness, DaysOld: 4, EmailSent: true})

	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", 5*24*time.Hour, 5*24*time.Hour))

	assert.Equal(t, []Decision{Suppressed, Logged}, decisions(results))
	assert.Empty(t, f.mailer.sent)
	recs := f.records(t, model.AlertStaleness)
	require.Len(t, recs, 2)
	assert.Equal(t, model.BankRight, recs[1].Bank)
	assert.False(t, recs[1].EmailSent)
	assert.Empty(t, f.push.records)

	// the log-only record does not extend the window
	f.clock.Advance(2 * time.Hour)
	results = f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", 5*24*time.Hour, 5*24*time.Hour))
	assert.Equal(t, []Decision{Sent, Logged}, decisions(results))
	assert.Len(t, f.mailer.sent, 1)
}

func TestStaleness_WholeDaysOverThreshold(t *testing.T) {
	f := newFixture(t, true)
	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", 4*24*time.Hour-time.Minute, 4*24*time.Hour))

	assert.Equal(t, []Decision{Idle, Sent}, decisions(results))
	recs := f.records(t, model.AlertStaleness)
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].DaysOld)
}

func TestStaleness_ThreeAndAHalfDaysIsFresh(t *testing.T) {
	f := newFixture(t, true)
	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", time.Hour, 84*time.Hour))

	assert.Equal(t, []Decision{Idle, Idle}, decisions(results))
	assert.Empty(t, f.mailer.sent)
}

func TestStaleness_UnparseableTimeSkipsOnlyThatBank(t *testing.T) {
	f := newFixture(t, true)
	snap := snapshot("50", "50", time.Hour, 4*24*time.Hour)
	snap.Left.MessageTime = "None"

	results := f.engine.EvaluateStaleness(context.Background(), snap)
	assert.Equal(t, []Decision{Skipped, Sent}, decisions(results))
}

func TestStaleness_FailedSendBlocksSecondBank(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.err = errors.New("timeout")

	results := f.engine.EvaluateStaleness(context.Background(), snapshot("50", "50", 5*24*time.Hour, 5*24*time.Hour))
	assert.Equal(t, []Decision{Failed, Suppressed}, decisions(results))
	assert.Empty(t, f.records(t, model.AlertStaleness))
}

func TestEvaluate_NilSnapshot(t *testing.T) {
	f := newFixture(t, true)
	assert.Nil(t, f.engine.EvaluateLowContent(context.Background(), nil))
	assert.Nil(t, f.engine.EvaluateStaleness(context.Background(), nil))
}

func TestSendTestEmail(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.engine.SendTestEmail(context.Background(), model.BankRight))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"lab@example.ac.uk"}, f.mailer.sent[0].To)
	assert.Empty(t, f.mailer.sent[0].Cc)
	assert.Empty(t, f.records(t, model.AlertLowContent))

	assert.Error(t, f.engine.SendTestEmail(context.Background(), model.Bank("middle")))
}
