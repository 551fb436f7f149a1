// Package webhook handles registration of HTTP callbacks and best-effort,
// signed delivery of job lifecycle events. Delivery is fire-and-forget
// relative to the caller: failures are logged and never propagate into the
// job mutation that triggered them.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

var (
	ErrValidation       = errors.New("invalid webhook configuration")
	ErrPermissionDenied = errors.New("webhook belongs to another customer")
	ErrWebhookNotFound  = errors.New("webhook not found")
)

// Dispatcher registers webhook configs and delivers matching events.
type Dispatcher struct {
	store  store.DocumentStore
	sender Sender
	now    func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(s store.DocumentStore, sender Sender) *Dispatcher {
	return &Dispatcher{store: s, sender: sender, now: time.Now}
}

// Register validates and persists a webhook config, generating an id and,
// when absent, a secret. The stored config is returned; the secret is only
// ever handed out here.
func (d *Dispatcher) Register(ctx context.Context, cfg models.WebhookConfig) (models.WebhookConfig, error) {
	if cfg.URL == "" {
		return models.WebhookConfig{}, fmt.Errorf("%w: url is required", ErrValidation)
	}
	if len(cfg.Events) == 0 {
		return models.WebhookConfig{}, fmt.Errorf("%w: at least one event is required", ErrValidation)
	}
	var invalid []string
	for _, e := range cfg.Events {
		if !models.IsValidWebhookEvent(e) {
			invalid = append(invalid, string(e))
		}
	}
	if len(invalid) > 0 {
		return models.WebhookConfig{}, fmt.Errorf("%w: unknown events %v", ErrValidation, invalid)
	}
	if cfg.CustomerID == uuid.Nil {
		return models.WebhookConfig{}, fmt.Errorf("%w: customerId is required", ErrValidation)
	}

	cfg.ID = uuid.New()
	if cfg.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return models.WebhookConfig{}, err
		}
		cfg.Secret = secret
	}
	now := d.now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	doc, err := store.Encode(cfg)
	if err != nil {
		return models.WebhookConfig{}, err
	}
	if _, err := d.store.CreateDocument(ctx, store.WebhookPath(cfg.ID), doc); err != nil {
		return models.WebhookConfig{}, fmt.Errorf("persist webhook: %w", err)
	}
	return cfg, nil
}

// List returns all webhook configs registered by a customer.
func (d *Dispatcher) List(ctx context.Context, customerID uuid.UUID) ([]models.WebhookConfig, error) {
	docs, err := d.store.QueryDocuments(ctx, store.WebhookCollection, []store.Condition{
		{Field: "customerId", Operator: store.OpEqual, Value: customerID},
	})
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}

	configs := make([]models.WebhookConfig, 0, len(docs))
	for _, doc := range docs {
		var cfg models.WebhookConfig
		if err := store.Decode(doc, &cfg); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Delete removes a webhook. The caller must own it.
func (d *Dispatcher) Delete(ctx context.Context, id, customerID uuid.UUID) error {
	doc, err := d.store.GetDocument(ctx, store.WebhookPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrWebhookNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}

	var cfg models.WebhookConfig
	if err := store.Decode(doc, &cfg); err != nil {
		return err
	}
	if cfg.CustomerID != customerID {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, id)
	}
	if err := d.store.DeleteDocument(ctx, store.WebhookPath(id)); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// Trigger dispatches event to every matching webhook for the job's
// customer. All matches are delivered concurrently; individual failures
// are logged and isolated. Trigger returns once dispatch goroutines are
// started, not when deliveries finish.
func (d *Dispatcher) Trigger(ctx context.Context, job *models.Job, event models.WebhookEvent) {
	configs, err := d.match(ctx, job, event)
	if err != nil {
		slog.Error("webhook lookup failed", "job_id", job.ID, "event", event, "error", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	payload := models.WebhookPayload{
		Event:      event,
		JobID:      job.ID,
		Timestamp:  d.now().UTC().Format(time.RFC3339),
		CustomerID: job.CustomerID,
		ProjectID:  job.ProjectID,
		Data:       map[string]any{"job": job},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook payload marshal failed", "job_id", job.ID, "event", event, "error", err)
		return
	}

	for _, cfg := range configs {
		cfg := cfg
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(cfg, event, body)
		}()
	}
}

func (d *Dispatcher) deliver(cfg models.WebhookConfig, event models.WebhookEvent, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDeliveryTimeout)
	defer cancel()

	err := d.sender.Send(ctx, Delivery{
		URL:       cfg.URL,
		Body:      body,
		Signature: Sign(cfg.Secret, body),
		Headers:   cfg.Headers,
	})
	if err != nil {
		slog.Error("webhook delivery failed",
			"webhook_id", cfg.ID, "url", cfg.URL, "event", event, "error", err)
		return
	}
	slog.Info("webhook delivered", "webhook_id", cfg.ID, "event", event)
}

// match finds the customer's configs subscribed to event, narrowed by
// project when the config pins one.
func (d *Dispatcher) match(ctx context.Context, job *models.Job, event models.WebhookEvent) ([]models.WebhookConfig, error) {
	docs, err := d.store.QueryDocuments(ctx, store.WebhookCollection, []store.Condition{
		{Field: "customerId", Operator: store.OpEqual, Value: job.CustomerID},
		{Field: "events", Operator: store.OpArrayContains, Value: event},
	})
	if err != nil {
		return nil, err
	}

	var configs []models.WebhookConfig
	for _, doc := range docs {
		var cfg models.WebhookConfig
		if err := store.Decode(doc, &cfg); err != nil {
			return nil, err
		}
		if cfg.ProjectID != "" && cfg.ProjectID != job.ProjectID {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Flush blocks until all in-flight deliveries finish. Used by graceful
// shutdown and tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}
