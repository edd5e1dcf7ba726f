package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/config"
	"github.com/spec-kit/ticket-dispatch/internal/events"
)

const (
	defaultQueueSize   = 256
	defaultMaxTries    = 3
	defaultPostTimeout = 5 * time.Second
)

// Registrar is implemented by services that subscribe to events.
type Registrar interface {
	RegisterHandlers()
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notifications Registrar) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
}

// WebhookWorker delivers events to the notification webhook from a bounded queue.
type WebhookWorker struct {
	url      string
	client   *http.Client
	queue    chan events.Event
	logger   *zap.Logger
	maxTries uint
	backoff  func() backoff.BackOff
	wg       sync.WaitGroup
}

// NewWebhookWorker builds a worker posting to cfg.WebhookURL.
func NewWebhookWorker(cfg config.NotificationConfig, logger *zap.Logger) *WebhookWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookWorker{
		url:      strings.TrimSpace(cfg.WebhookURL),
		client:   &http.Client{Timeout: defaultPostTimeout},
		queue:    make(chan events.Event, defaultQueueSize),
		logger:   logger,
		maxTries: defaultMaxTries,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Enqueue schedules event for delivery. It reports false when the queue is full.
func (w *WebhookWorker) Enqueue(event events.Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Start runs the delivery loop until ctx is done. Queued events left at
// shutdown are dropped.
func (w *WebhookWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-w.queue:
				if err := w.deliver(ctx, event); err != nil {
					w.logger.Warn("webhook delivery failed",
						zap.String("event_type", string(event.Type)),
						zap.String("event_id", event.ID),
						zap.Error(err))
				}
			}
		}
	}()
}

// Wait blocks until the delivery loop has exited.
func (w *WebhookWorker) Wait() {
	w.wg.Wait()
}

func (w *WebhookWorker) deliver(ctx context.Context, event events.Event) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return struct{}{}, fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
	}, backoff.WithBackOff(w.backoff()), backoff.WithMaxTries(w.maxTries))
	if err == nil {
		w.logger.Debug("webhook delivered", zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
	}
	return err
}
