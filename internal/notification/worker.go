package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"co2-bank-monitor/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body delivered to the browser service worker.
type Payload struct {
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Bank      model.Bank      `json:"bank"`
	Kind      model.AlertKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPayload describes an alert record for a push message.
func NewPayload(rec model.AlertRecord) Payload {
	p := Payload{Bank: rec.Bank, Kind: rec.Kind, Timestamp: rec.Timestamp}
	switch rec.Kind {
	case model.AlertStaleness:
		p.Title = "CO2 bank data is stale"
		p.Body = fmt.Sprintf("No update from the %s bank for %d days.", rec.Bank, rec.DaysOld)
	default:
		p.Title = "CO2 bank running low"
		p.Body = fmt.Sprintf("The %s bank is nearly empty. A delivery request has been emailed.", rec.Bank)
	}
	return p
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan model.AlertRecord
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *slog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.AlertRecord, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("push worker started", "worker", id)
	for {
		select {
		case rec := <-wp.jobs:
			wp.broadcast(ctx, rec)
		case <-ctx.Done():
			wp.logger.Debug("push worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues an alert for delivery. It never blocks the caller; when the
// queue is full the alert is dropped and logged.
func (wp *WorkerPool) Dispatch(rec model.AlertRecord) {
	select {
	case wp.jobs <- rec:
	default:
		wp.logger.Warn("push queue full; dropping alert", "bank", rec.Bank, "kind", rec.Kind)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.AlertRecord {
	return wp.jobs
}

// broadcast sends the alert to every stored subscription.
func (wp *WorkerPool) broadcast(ctx context.Context, rec model.AlertRecord) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		wp.logger.Error("failed to load push subscriptions", "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(rec))
	if err != nil {
		wp.logger.Error("failed to encode push payload", "error", err)
		return
	}
	wp.logger.Info("sending push notifications", "count", len(subscriptions), "bank", rec.Bank, "kind", rec.Kind)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("push send failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("push subscription expired; deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
