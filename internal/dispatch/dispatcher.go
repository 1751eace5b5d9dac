package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/varunnair-io/distriflow-backend/pkg/db/models"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/metrics"
	"github.com/varunnair-io/distriflow-backend/pkg/outbox"
	"github.com/varunnair-io/distriflow-backend/pkg/signature"
)

const (
	headerEvent     = "X-DistriFlow-Event"
	headerSignature = "X-DistriFlow-Signature"
	headerTimestamp = "X-DistriFlow-Timestamp"

	// maxResponseBytes caps how much of a subscriber response is retained on
	// the delivery record.
	maxResponseBytes = 2048

	defaultBatchSize = 50
)

// eventSource is the outbox surface the dispatcher drains.
type eventSource interface {
	Drain(ctx context.Context, limit int) ([]models.IntegrationEvent, error)
	MarkCompleted(ctx context.Context, event *models.IntegrationEvent) error
	IncrementAttempts(ctx context.Context, events []models.IntegrationEvent) error
}

// subscriberStore resolves active webhooks and records delivery outcomes.
type subscriberStore interface {
	ListActiveWebhooks(ctx context.Context, eventType enums.IntegrationEventType) ([]models.IntegrationWebhook, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
}

// Dispatcher drains pending integration events and delivers them to active
// webhook subscribers. At most one pass runs at a time; a pass requested
// while another is in flight is dropped, the running pass will pick up
// whatever it would have seen.
type Dispatcher struct {
	source    eventSource
	store     subscriberStore
	client    *http.Client
	metrics   *metrics.DispatchMetrics
	logg      *logger.Logger
	batchSize int
	now       func() time.Time

	mu sync.Mutex
}

// Options configures a Dispatcher.
type Options struct {
	Source      eventSource
	Store       subscriberStore
	HTTPTimeout time.Duration
	BatchSize   int
	Metrics     *metrics.DispatchMetrics
	Logger      *logger.Logger
}

// New builds a Dispatcher from the provided options.
func New(opts Options) (*Dispatcher, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("event source required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("subscriber store required")
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Dispatcher{
		source:    opts.Source,
		store:     opts.Store,
		client:    &http.Client{Timeout: timeout},
		metrics:   opts.Metrics,
		logg:      opts.Logger,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// TriggerAsync requests a dispatch pass without blocking the caller. Used by
// the outbox right after an enqueue commits.
func (d *Dispatcher) TriggerAsync(ctx context.Context) {
	go func() {
		if err := d.Run(ctx, "event"); err != nil && d.logg != nil {
			d.logg.Error(ctx, "dispatch pass finished with errors", err)
		}
	}()
}

// Run executes one dispatch pass. The trigger label distinguishes passes
// kicked by an enqueue from scheduled safety-net polls.
func (d *Dispatcher) Run(ctx context.Context, trigger string) error {
	if !d.mu.TryLock() {
		d.metrics.IncDropped()
		if d.logg != nil {
			d.logg.Info(ctx, "dispatch pass already in flight, dropping")
		}
		return nil
	}
	defer d.mu.Unlock()

	start := d.now()
	defer func() {
		d.metrics.ObservePass(trigger, d.now().Sub(start))
	}()

	events, err := d.source.Drain(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("draining outbox: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var errs error
	for i := range events {
		event := &events[i]
		allDelivered, err := d.deliverEvent(ctx, event)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		if allDelivered {
			if err := d.source.MarkCompleted(ctx, event); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("completing event %s: %w", event.ID, err))
				continue
			}
			d.metrics.IncCompleted()
		}
	}

	// Attempts count passes, not per-subscriber requests, and are bumped
	// whatever the outcome.
	if err := d.source.IncrementAttempts(ctx, events); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("incrementing attempts: %w", err))
	}
	return errs
}

// deliverEvent fans one event out to every active subscriber for its type.
// The event completes only when every subscriber acknowledged in this pass.
func (d *Dispatcher) deliverEvent(ctx context.Context, event *models.IntegrationEvent) (bool, error) {
	webhooks, err := d.store.ListActiveWebhooks(ctx, event.EventType)
	if err != nil {
		return false, fmt.Errorf("listing subscribers for %s: %w", event.EventType, err)
	}
	if len(webhooks) == 0 {
		// Nobody to notify; the event is done.
		return true, nil
	}

	body, err := json.Marshal(outbox.DeliveryEnvelope{
		ID:        event.ID,
		EventType: event.EventType,
		CreatedAt: event.CreatedAt,
		Data:      event.Payload,
	})
	if err != nil {
		return false, fmt.Errorf("encoding envelope for event %s: %w", event.ID, err)
	}

	allDelivered := true
	var errs error
	for i := range webhooks {
		webhook := &webhooks[i]
		delivery := d.deliverToWebhook(ctx, webhook, event, body)

		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recording delivery for webhook %s: %w", webhook.ID, err))
		}
		d.metrics.IncDelivery(string(delivery.Status))

		touch := map[string]any{}
		if delivery.Status == enums.DeliveryDelivered {
			touch["last_success_at"] = d.now()
			touch["last_error_at"] = nil
		} else {
			allDelivered = false
			touch["last_error_at"] = d.now()
		}
		if err := d.store.UpdateWebhook(ctx, webhook.ID, touch); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("touching webhook %s: %w", webhook.ID, err))
		}
	}
	return allDelivered, errs
}

// deliverToWebhook performs one signed POST and shapes the immutable
// delivery record. Transport failures become errored, non-2xx responses
// become failed.
func (d *Dispatcher) deliverToWebhook(ctx context.Context, webhook *models.IntegrationWebhook, event *models.IntegrationEvent, body []byte) *models.WebhookDelivery {
	delivery := &models.WebhookDelivery{
		WebhookID: webhook.ID,
		EventID:   event.ID,
	}

	timestamp := d.now().UTC().Format(time.RFC3339)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.TargetURL, bytes.NewReader(body))
	if err != nil {
		delivery.Status = enums.DeliveryErrored
		msg := err.Error()
		delivery.ErrorMessage = &msg
		return delivery
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, string(event.EventType))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSignature, signature.Compute(webhook.Secret, timestamp, body))

	resp, err := d.client.Do(req)
	if err != nil {
		delivery.Status = enums.DeliveryErrored
		msg := err.Error()
		delivery.ErrorMessage = &msg
		return delivery
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	code := resp.StatusCode
	delivery.ResponseCode = &code
	if len(responseBody) > 0 {
		text := string(responseBody)
		delivery.ResponseBody = &text
	}

	if code >= 200 && code < 300 {
		delivery.Status = enums.DeliveryDelivered
	} else {
		delivery.Status = enums.DeliveryFailed
	}
	return delivery
}
