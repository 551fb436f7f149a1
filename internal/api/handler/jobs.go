package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/api/response"
	"github.com/priyamshenoy/dataforge/internal/orchestrator"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

// JobOrchestrator defines the interface the job handlers depend on.
type JobOrchestrator interface {
	CreateJob(ctx context.Context, p orchestrator.CreateParams) (*models.Job, error)
	GetJob(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error)
	Transition(ctx context.Context, projectID string, jobID uuid.UUID, next models.JobStatus, stage *orchestrator.StageUpdate) (*models.Job, error)
	Cancel(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error)
	Resume(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, projectID string, customerID uuid.UUID) ([]models.Job, error)
	RateLimitStatus(customerID uuid.UUID) models.RateLimitStatus
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		var req struct {
			ProjectID     string                  `json:"projectId"`
			Configuration models.JobConfiguration `json:"configuration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}
		if req.ProjectID == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "projectId is required", nil)
			return
		}
		if req.Configuration.DataType == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "configuration.dataType is required", nil)
			return
		}

		job, err := orch.CreateJob(r.Context(), orchestrator.CreateParams{
			CustomerID:    customerID,
			ProjectID:     req.ProjectID,
			Configuration: req.Configuration,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{projectID}/{jobID}.
func NewGetJobHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, orch)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{projectID}.
func NewListJobsHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}

		jobs, err := orch.ListJobs(r.Context(), chi.URLParam(r, "projectID"), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewTransitionJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{projectID}/{jobID}/transition.
func NewTransitionJobHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, orch)
		if !ok {
			return
		}

		var req struct {
			Status models.JobStatus `json:"status"`
			Stage  *struct {
				Name     string             `json:"name"`
				Status   models.StageStatus `json:"status"`
				Progress *models.Progress   `json:"progress,omitempty"`
				Error    string             `json:"error,omitempty"`
			} `json:"stage,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}
		if req.Status == "" && req.Stage == nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"status or stage is required", nil)
			return
		}

		var stage *orchestrator.StageUpdate
		if req.Stage != nil {
			if req.Stage.Name == "" {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"stage.name is required", nil)
				return
			}
			stage = &orchestrator.StageUpdate{
				Name:     req.Stage.Name,
				Status:   req.Stage.Status,
				Progress: req.Stage.Progress,
				Error:    req.Stage.Error,
			}
		}

		updated, err := orch.Transition(r.Context(),
			chi.URLParam(r, "projectID"), job.ID, req.Status, stage)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{projectID}/{jobID}/cancel.
func NewCancelJobHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, orch)
		if !ok {
			return
		}

		cancelled, err := orch.Cancel(r.Context(), chi.URLParam(r, "projectID"), job.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, cancelled)
	}
}

// NewResumeJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{projectID}/{jobID}/resume.
func NewResumeJobHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, orch)
		if !ok {
			return
		}

		resumed, err := orch.Resume(r.Context(), chi.URLParam(r, "projectID"), job.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, resumed)
	}
}

// NewLimitsHandler returns an http.HandlerFunc for GET /api/v1/limits.
func NewLimitsHandler(orch JobOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := mw.GetCustomerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
			return
		}
		response.JSON(w, orch.RateLimitStatus(customerID))
	}
}

// loadOwnedJob resolves the job from URL params and enforces ownership by
// the authenticated customer. Foreign jobs read as not found.
func loadOwnedJob(w http.ResponseWriter, r *http.Request, orch JobOrchestrator) (*models.Job, bool) {
	customerID, ok := mw.GetCustomerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing customer", nil)
		return nil, false
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "jobID must be a UUID", nil)
		return nil, false
	}

	job, err := orch.GetJob(r.Context(), chi.URLParam(r, "projectID"), jobID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if job.CustomerID != customerID {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return nil, false
	}
	return job, true
}
