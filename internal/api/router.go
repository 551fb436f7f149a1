package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateJobHandler     http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	TransitionJobHandler http.HandlerFunc
	CancelJobHandler     http.HandlerFunc
	ResumeJobHandler     http.HandlerFunc
	LimitsHandler        http.HandlerFunc

	RegisterWebhookHandler http.HandlerFunc
	ListWebhooksHandler    http.HandlerFunc
	DeleteWebhookHandler   http.HandlerFunc

	GetRetentionHandler http.HandlerFunc
	SetRetentionHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobHandler))
		r.Get("/api/v1/jobs/{projectID}", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{projectID}/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Post("/api/v1/jobs/{projectID}/{jobID}/transition", orNotImplemented(deps.TransitionJobHandler))
		r.Post("/api/v1/jobs/{projectID}/{jobID}/cancel", orNotImplemented(deps.CancelJobHandler))
		r.Post("/api/v1/jobs/{projectID}/{jobID}/resume", orNotImplemented(deps.ResumeJobHandler))

		r.Get("/api/v1/limits", orNotImplemented(deps.LimitsHandler))

		r.Post("/api/v1/webhooks", orNotImplemented(deps.RegisterWebhookHandler))
		r.Get("/api/v1/webhooks", orNotImplemented(deps.ListWebhooksHandler))
		r.Delete("/api/v1/webhooks/{webhookID}", orNotImplemented(deps.DeleteWebhookHandler))

		r.Get("/api/v1/retention", orNotImplemented(deps.GetRetentionHandler))
		r.Put("/api/v1/retention", orNotImplemented(deps.SetRetentionHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
