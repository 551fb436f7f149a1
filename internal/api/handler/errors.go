package handler

import (
	"errors"
	"net/http"

	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/internal/auth"
	"github.com/priyamshenoy/dataforge/internal/lifecycle"
	"github.com/priyamshenoy/dataforge/internal/orchestrator"
	"github.com/priyamshenoy/dataforge/internal/ratelimit"
	"github.com/priyamshenoy/dataforge/internal/retention"
	"github.com/priyamshenoy/dataforge/internal/webhook"
)

// writeError maps domain errors onto the HTTP error taxonomy.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrAlreadyCompleted):
		response.Error(w, http.StatusConflict, "ALREADY_COMPLETED",
			"Completed jobs cannot be modified", nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrUnknownStatus),
		errors.Is(err, orchestrator.ErrNotResumable):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
			err.Error(), nil)
	case errors.Is(err, orchestrator.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
			"Job not found", nil)
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		response.Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
			"Too many concurrent jobs for this customer", nil)
	case errors.Is(err, ratelimit.ErrCooldownActive):
		response.Error(w, http.StatusTooManyRequests, "COOLDOWN_PERIOD",
			"Job was recently cancelled and is in its cooldown period", nil)
	case errors.Is(err, webhook.ErrPermissionDenied):
		response.Error(w, http.StatusForbidden, "PERMISSION_DENIED",
			"Resource belongs to another customer", nil)
	case errors.Is(err, webhook.ErrWebhookNotFound):
		response.Error(w, http.StatusNotFound, "WEBHOOK_NOT_FOUND",
			"Webhook not found", nil)
	case errors.Is(err, auth.ErrKeyNotFound):
		response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND",
			"API key not found", nil)
	case errors.Is(err, webhook.ErrValidation),
		errors.Is(err, auth.ErrValidation),
		errors.Is(err, orchestrator.ErrUnknownStage),
		errors.Is(err, retention.ErrInvalidRetention):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
			err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
