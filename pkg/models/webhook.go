package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent identifies a job lifecycle event a webhook can subscribe to.
type WebhookEvent string

const (
	EventJobCreated   WebhookEvent = "job.created"
	EventJobStarted   WebhookEvent = "job.started"
	EventJobCompleted WebhookEvent = "job.completed"
	EventJobFailed    WebhookEvent = "job.failed"
	EventJobCancelled WebhookEvent = "job.cancelled"
)

// AllWebhookEvents lists every subscribable event.
var AllWebhookEvents = []WebhookEvent{
	EventJobCreated, EventJobStarted, EventJobCompleted,
	EventJobFailed, EventJobCancelled,
}

// IsValidWebhookEvent reports whether e is a recognized event name.
func IsValidWebhookEvent(e WebhookEvent) bool {
	for _, v := range AllWebhookEvents {
		if v == e {
			return true
		}
	}
	return false
}

// WebhookConfig is a registered HTTP callback. The secret is generated at
// registration when the caller omits one and is never re-derived.
type WebhookConfig struct {
	ID         uuid.UUID         `json:"id"`
	URL        string            `json:"url"`
	Events     []WebhookEvent    `json:"events"`
	Secret     string            `json:"secret"`
	Headers    map[string]string `json:"headers,omitempty"`
	ProjectID  string            `json:"projectId,omitempty"`
	CustomerID uuid.UUID         `json:"customerId"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Subscribes reports whether the config wants deliveries for event.
func (c *WebhookConfig) Subscribes(event WebhookEvent) bool {
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookPayload is the JSON body POSTed to a webhook URL. The signature
// transmitted alongside is computed over this payload's canonical JSON
// serialization.
type WebhookPayload struct {
	Event      WebhookEvent   `json:"event"`
	JobID      uuid.UUID      `json:"jobId"`
	Timestamp  string         `json:"timestamp"`
	CustomerID uuid.UUID      `json:"customerId"`
	ProjectID  string         `json:"projectId,omitempty"`
	Data       map[string]any `json:"data"`
}
