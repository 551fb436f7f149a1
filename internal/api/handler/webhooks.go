package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

// WebhookRegistry defines the interface the webhook handlers depend on.
type WebhookRegistry interface {
	Register(ctx context.Context, cfg models.WebhookConfig) (models.WebhookConfig, error)
	List(ctx context.Context, customerID uuid.UUID) ([]models.WebhookConfig, error)
	Delete(ctx context.Context, id, customerID uuid.UUID) error
}

// NewRegisterWebhookHandler returns an http.HandlerFunc for POST /api/v1/webhooks.
func NewRegisterWebhookHandler(registry WebhookRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		var req struct {
			URL       string                `json:"url"`
			Events    []models.WebhookEvent `json:"events"`
			Secret    string                `json:"secret,omitempty"`
			Headers   map[string]string     `json:"headers,omitempty"`
			ProjectID string                `json:"projectId,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		cfg, err := registry.Register(r.Context(), models.WebhookConfig{
			URL:        req.URL,
			Events:     req.Events,
			Secret:     req.Secret,
			Headers:    req.Headers,
			ProjectID:  req.ProjectID,
			CustomerID: customerID,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, cfg)
	}
}

// NewListWebhooksHandler returns an http.HandlerFunc for GET /api/v1/webhooks.
func NewListWebhooksHandler(registry WebhookRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		configs, err := registry.List(r.Context(), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		// Secrets are only handed out at registration.
		for i := range configs {
			configs[i].Secret = ""
		}
		response.JSON(w, configs)
	}
}

// NewDeleteWebhookHandler returns an http.HandlerFunc for DELETE /api/v1/webhooks/{webhookID}.
func NewDeleteWebhookHandler(registry WebhookRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "webhookID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "webhookID must be a UUID", nil)
			return
		}

		if err := registry.Delete(r.Context(), id, customerID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
