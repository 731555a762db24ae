// Package alert decides when a bank condition warrants an e-mail and records
// every alert it sends in the ledger.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/clock"
	"co2-bank-monitor/internal/model"
	"co2-bank-monitor/internal/parse"
	"co2-bank-monitor/internal/store"
)

// Decision is the outcome of one (bank, kind) evaluation.
type Decision int

const (
	// Idle means the alert condition does not hold.
	Idle Decision = iota
	// Disabled means the condition holds but notifications are switched off.
	Disabled
	// Skipped means the input could not be parsed.
	Skipped
	// Suppressed means an e-mail was due but the cooldown window is still open.
	Suppressed
	// Sent means the e-mail went out and the record was appended.
	Sent
	// Logged is a log-only staleness record for a bank that was not e-mailed itself.
	Logged
	// Failed means the ledger lookup or the e-mail delivery returned an error.
	Failed
)

func (d Decision) String() string {
	switch d {
	case Idle:
		return "idle"
	case Disabled:
		return "disabled"
	case Skipped:
		return "skipped"
	case Suppressed:
		return "suppressed"
	case Sent:
		return "sent"
	case Logged:
		return "logged"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Result reports what happened for one bank and kind.
type Result struct {
	Bank     model.Bank
	Kind     model.AlertKind
	Decision Decision
	Err      error
}

// NotificationError wraps a failed e-mail delivery. No ledger record is written.
type NotificationError struct {
	Bank  model.Bank
	Kind  model.AlertKind
	Cause error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("send %s alert for %s bank: %v", e.Kind, e.Bank, e.Cause)
}

func (e *NotificationError) Unwrap() error {
	return e.Cause
}

// Dispatcher fans an alert record out to secondary channels.
type Dispatcher interface {
	Dispatch(rec model.AlertRecord)
}

// Engine evaluates low-content and staleness conditions against the ledger.
type Engine struct {
	cfg    config.AlertsConfig
	creds  *config.Credentials
	ledger store.AlertLedger
	mailer Mailer
	clock  clock.Clock
	loc    *time.Location
	logger *slog.Logger
	push   Dispatcher
}

func NewEngine(cfg config.AlertsConfig, creds *config.Credentials, ledger store.AlertLedger, mailer Mailer, clk clock.Clock, loc *time.Location, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		creds:  creds,
		ledger: ledger,
		mailer: mailer,
		clock:  clk,
		loc:    loc,
		logger: logger,
	}
}

// SetDispatcher enables push fan-out of e-mailed alerts.
func (e *Engine) SetDispatcher(d Dispatcher) {
	e.push = d
}

// EvaluateLowContent checks both banks of snap in order.
func (e *Engine) EvaluateLowContent(ctx context.Context, snap *model.Snapshot) []Result {
	if snap == nil {
		return nil
	}
	results := make([]Result, 0, len(model.Banks))
	for _, bank := range model.Banks {
		r := e.checkLowContent(ctx, snap.Sample(bank))
		e.logResult(r)
		results = append(results, r)
	}
	return results
}

func (e *Engine) checkLowContent(ctx context.Context, sample model.BankSample) Result {
	res := Result{Bank: sample.Bank, Kind: model.AlertLowContent}

	content, err := parse.Content(columns[sample.Bank].content, sample.Content)
	if err != nil {
		res.Decision, res.Err = Skipped, err
		return res
	}
	if content > e.cfg.LowContentThreshold {
		return res
	}
	if !e.cfg.Notify {
		res.Decision = Disabled
		return res
	}

	last, err := e.ledger.LastFor(ctx, model.AlertLowContent, sample.Bank)
	if err != nil {
		res.Decision, res.Err = Failed, err
		return res
	}
	now := e.clock.Now()
	if last != nil && now.Sub(last.Timestamp) < e.cfg.LowContentCooldown {
		res.Decision = Suppressed
		return res
	}

	msg := ProcurementMessage(e.creds, sample.Bank, e.cfg.Signature, false)
	if err := e.mailer.Send(ctx, msg); err != nil {
		res.Decision, res.Err = Failed, &NotificationError{Bank: sample.Bank, Kind: model.AlertLowContent, Cause: err}
		return res
	}
	res.Decision = Sent
	res.Err = e.record(ctx, model.AlertRecord{
		Timestamp: now,
		Bank:      sample.Bank,
		Kind:      model.AlertLowContent,
		EmailSent: true,
	})
	return res
}

// EvaluateStaleness checks the message time of both banks. It runs regardless of
// the notify flag. A bank is stale once more than the threshold has passed in whole
// days. The cooldown is shared by both banks: only the first stale bank of a pass
// may e-mail, and every later stale bank gets a log-only record unless that first
// send failed, so the next cycle retries.
func (e *Engine) EvaluateStaleness(ctx context.Context, snap *model.Snapshot) []Result {
	if snap == nil {
		return nil
	}
	now := e.clock.Now()
	results := make([]Result, 0, len(model.Banks))
	var first *Result

	for _, bank := range model.Banks {
		res := Result{Bank: bank, Kind: model.AlertStaleness}
		msgTime, err := parse.Time(columns[bank].messageTime, snap.Sample(bank).MessageTime, e.loc)
		if err != nil {
			res.Decision, res.Err = Skipped, err
			results = append(results, e.logResult(res))
			continue
		}
		days := int(now.Sub(msgTime) / (24 * time.Hour))
		if time.Duration(days)*24*time.Hour <= e.cfg.StalenessThreshold {
			results = append(results, e.logResult(res))
			continue
		}
		rec := model.AlertRecord{Timestamp: now, Bank: bank, Kind: model.AlertStaleness, DaysOld: days}

		switch {
		case first == nil:
			res = e.sendStaleness(ctx, res, rec)
			first = &res
		case first.Decision == Sent || first.Decision == Suppressed:
			res.Decision = Logged
			res.Err = e.record(ctx, rec)
		default:
			res.Decision = Suppressed
		}
		results = append(results, e.logResult(res))
	}
	return results
}

func (e *Engine) sendStaleness(ctx context.Context, res Result, rec model.AlertRecord) Result {
	last, err := e.lastStalenessEmail(ctx)
	if err != nil {
		res.Decision, res.Err = Failed, err
		return res
	}
	if last != nil && rec.Timestamp.Sub(last.Timestamp) < e.cfg.StalenessCooldown {
		res.Decision = Suppressed
		return res
	}

	if err := e.mailer.Send(ctx, StalenessMessage(e.creds, rec.Bank, rec.DaysOld)); err != nil {
		res.Decision, res.Err = Failed, &NotificationError{Bank: rec.Bank, Kind: model.AlertStaleness, Cause: err}
		return res
	}
	rec.EmailSent = true
	res.Decision = Sent
	res.Err = e.record(ctx, rec)
	return res
}

// lastStalenessEmail returns the newest staleness record that was e-mailed.
// Log-only records never open the cooldown window.
func (e *Engine) lastStalenessEmail(ctx context.Context) (*model.AlertRecord, error) {
	records, err := e.ledger.Records(ctx, model.AlertStaleness)
	if err != nil {
		return nil, err
	}
	var last *model.AlertRecord
	for i := range records {
		if !records[i].EmailSent {
			continue
		}
		if last == nil || !records[i].Timestamp.Before(last.Timestamp) {
			last = &records[i]
		}
	}
	return last, nil
}

// SendTestEmail sends the procurement e-mail for bank to the sender only. Nothing is recorded.
func (e *Engine) SendTestEmail(ctx context.Context, bank model.Bank) error {
	if !bank.Valid() {
		return fmt.Errorf("unknown bank %q", bank)
	}
	if err := e.mailer.Send(ctx, ProcurementMessage(e.creds, bank, e.cfg.Signature, true)); err != nil {
		return &NotificationError{Bank: bank, Kind: model.AlertLowContent, Cause: err}
	}
	return nil
}

func (e *Engine) record(ctx context.Context, rec model.AlertRecord) error {
	rec.Timestamp = rec.Timestamp.Truncate(time.Minute)
	if err := e.ledger.Append(ctx, rec); err != nil {
		return fmt.Errorf("record %s alert for %s bank: %w", rec.Kind, rec.Bank, err)
	}
	if rec.EmailSent && e.push != nil {
		e.push.Dispatch(rec)
	}
	return nil
}

func (e *Engine) logResult(r Result) Result {
	attrs := []any{"bank", r.Bank, "kind", r.Kind, "decision", r.Decision.String()}
	switch {
	case r.Err != nil && r.Decision == Sent:
		e.logger.Error("alert e-mailed but not recorded", append(attrs, "error", r.Err)...)
	case r.Err != nil:
		e.logger.Error("alert evaluation failed", append(attrs, "error", r.Err)...)
	case r.Decision == Sent, r.Decision == Logged:
		e.logger.Info("alert recorded", attrs...)
	case r.Decision == Idle:
		e.logger.Debug("alert condition clear", attrs...)
	default:
		e.logger.Info("alert not sent", attrs...)
	}
	return r
}

// vendor column names, used in parse errors
var columns = map[model.Bank]struct{ content, messageTime string }{
	model.BankLeft:  {"leftBankContents", "messageTimeLeft"},
	model.BankRight: {"rightBankContents", "messageTimeRight"},
}
