package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

// RetentionPolicies defines the interface the retention handlers depend on.
type RetentionPolicies interface {
	Policy(ctx context.Context, customerID uuid.UUID) (models.RetentionPolicy, error)
	SetRetentionDays(ctx context.Context, customerID uuid.UUID, days int) error
}

// NewGetRetentionHandler returns an http.HandlerFunc for GET /api/v1/retention.
func NewGetRetentionHandler(policies RetentionPolicies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		policy, err := policies.Policy(r.Context(), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, policy)
	}
}

// NewSetRetentionHandler returns an http.HandlerFunc for PUT /api/v1/retention.
func NewSetRetentionHandler(policies RetentionPolicies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		var req struct {
			RetentionDays int `json:"retentionDays"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		if err := policies.SetRetentionDays(r.Context(), customerID, req.RetentionDays); err != nil {
			writeError(w, err)
			return
		}

		policy, err := policies.Policy(r.Context(), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, policy)
	}
}
