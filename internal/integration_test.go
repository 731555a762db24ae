package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/alert"
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/poller"
	"co2-bank-monitor/internal/portal"
	"co2-bank-monitor/internal/store"
)

const loginForm = `<html><body>
<form id="kc-form-login" action="/login-actions/authenticate?session_code=s" method="post">
  <input type="text" name="username"><input type="password" name="password">
  <input type="hidden" name="execution" value="e1">
</form></body></html>`

// fakePortal serves the identity provider and the CSV data endpoint.
type fakePortal struct {
	server *httptest.Server

	mu         sync.Mutex
	csv        string
	tokens     int
	rejectNext bool
	seen       []string
}

func newFakePortal(t *testing.T, csv string) *fakePortal {
	t.Helper()
	p := &fakePortal{csv: csv}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, loginForm)
	})
	mux.HandleFunc("/login-actions/authenticate", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, p.server.URL+"/callback?code=c1", http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.tokens++
		n := p.tokens
		p.mu.Unlock()
		fmt.Fprintf(w, `{"access_token":"tok-%d"}`, n)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.seen = append(p.seen, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if p.rejectNext {
			p.rejectNext = false
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, p.csv)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []alert.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg alert.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// TestMonitorLifecycle drives the poll cycle against a fake portal, from a first
// low-content alert through a rejected token to both banks going stale.
func TestMonitorLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)

	csv := "messageTimeLeft,lastChangeLeft,leftBankContents,messageTimeRight,lastChangeRight,rightBankContents\n" +
		"2024-06-10T11:00:00,2024-06-01T08:00:00,62,2024-06-10T11:00:00,2024-05-25T08:00:00,6\n"
	p := newFakePortal(t, csv)

	cfg := config.Default()
	cfg.Portal.AuthURL = p.server.URL + "/auth"
	cfg.Portal.TokenURL = p.server.URL + "/token"
	cfg.Portal.DataURL = p.server.URL + "/data"
	cfg.Portal.Timeout = 5 * time.Second
	cfg.Poller.TokenMaxAge = 24 * time.Hour
	cfg.Alerts.Notify = true

	creds := &config.Credentials{
		Username: "operator", Password: "secret", ClientID: "client", ClientSecret: "shh",
		RedirectURI: "https://dfs.example/main", SMTPSender: "lab@example.ac.uk",
		SMTPRecipient: "orders@supplier.example", PO: "PO-4711",
	}

	dir := t.TempDir()
	readings, err := store.NewFileReadingStore(dir, time.UTC, logger)
	require.NoError(t, err)
	ledger, err := store.NewFileLedger(dir, time.UTC, logger)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	engine := alert.NewEngine(cfg.Alerts, creds, ledger, mailer, clk, time.UTC, logger)
	auth := portal.NewAuthenticator(cfg.Portal, creds, nil, clk, logger)
	session := portal.NewSession(auth, clk, cfg.Poller.TokenMaxAge, logger)
	client := portal.NewClient(cfg.Portal, nil)
	svc := poller.NewService(cfg.Poller, session, client, readings, engine, clk, time.UTC, logger)

	// cycle 1: right bank is low
	require.NoError(t, svc.PollOnce(ctx))
	require.NotNil(t, svc.Latest())
	assert.Equal(t, "62", svc.Latest().Left.Content)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"orders@supplier.example"}, mailer.sent[0].To)

	// cycle 2: still low, inside the cooldown
	clk.Advance(time.Hour)
	require.NoError(t, svc.PollOnce(ctx))
	assert.Len(t, mailer.sent, 1)

	// cycle 3: the token is rejected and the snapshot is kept
	clk.Advance(time.Hour)
	p.mu.Lock()
	p.rejectNext = true
	p.mu.Unlock()
	err = svc.PollOnce(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "401"), err.Error())
	assert.Equal(t, start.Add(time.Hour), svc.Latest().ReceivedAt)

	// cycle 4: a fresh login
	clk.Advance(time.Hour)
	require.NoError(t, svc.PollOnce(ctx))
	p.mu.Lock()
	assert.Equal(t, []string{"tok-1", "tok-1", "tok-1", "tok-2"}, p.seen)
	p.mu.Unlock()

	// cycle 5: four days later the vendor still reports the same messages
	clk.Advance(96 * time.Hour)
	require.NoError(t, svc.PollOnce(ctx))
	require.Len(t, mailer.sent, 3)
	assert.Contains(t, mailer.sent[1].Body, "PO-4711")

	all, err := readings.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	low, err := ledger.Records(ctx, model.AlertLowContent)
	require.NoError(t, err)
	require.Len(t, low, 2)
	for _, rec := range low {
		assert.Equal(t, model.BankRight, rec.Bank)
	}
	assert.Equal(t, start, low[0].Timestamp)

	stale, err := ledger.Records(ctx, model.AlertStaleness)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, model.BankLeft, stale[0].Bank)
	assert.Equal(t, model.BankRight, stale[1].Bank)
	assert.Equal(t, 4, stale[0].DaysOld)
}
