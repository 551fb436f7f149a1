package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/internal/auth"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

// APIKeys defines the interface the key-management handlers depend on.
type APIKeys interface {
	Create(ctx context.Context, customerID uuid.UUID, name string, scopes []string) (auth.CreatedKey, error)
	List(ctx context.Context, customerID uuid.UUID) ([]models.APIKey, error)
	Revoke(ctx context.Context, id, customerID uuid.UUID) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(keys APIKeys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		created, err := keys.Create(r.Context(), customerID, req.Name, req.Scopes)
		if err != nil {
			writeError(w, err)
			return
		}

		response.Created(w, map[string]any{
			"id":        created.Key.ID,
			"name":      created.Key.Name,
			"keyPrefix": created.Key.KeyPrefix,
			"scopes":    created.Key.Scopes,
			"key":       created.RawKey,
			"createdAt": created.Key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(keys APIKeys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		list, err := keys.List(r.Context(), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(keys APIKeys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "keyID must be a UUID", nil)
			return
		}

		if err := keys.Revoke(r.Context(), keyID, customerID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
