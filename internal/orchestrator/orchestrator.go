// Package orchestrator coordinates the job lifecycle: admission through the
// rate limiter, validated status transitions, stage and progress updates,
// durable persistence, and webhook notification. Per-job mutations run
// inside the store's transactional read-modify-write, so concurrent
// transition requests for the same job serialize instead of racing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/cache"
	"github.com/priyamshenoy/dataforge/internal/lifecycle"
	"github.com/priyamshenoy/dataforge/internal/pipeline"
	"github.com/priyamshenoy/dataforge/internal/ratelimit"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/internal/webhook"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrUnknownStage = errors.New("job has no such stage")
	ErrNotResumable = errors.New("job cannot be resumed from its current status")
)

const jobStatusCacheTTL = 30 * time.Minute

// StageUpdate modifies one stage as part of a transition. Progress is
// optional; when present its percent applies to the stage.
type StageUpdate struct {
	Name     string
	Status   models.StageStatus
	Progress *models.Progress
	Error    string
}

// CreateParams are the inputs for a new job.
type CreateParams struct {
	CustomerID    uuid.UUID
	ProjectID     string
	Configuration models.JobConfiguration
}

// Orchestrator is the job lifecycle façade. Construct once per process and
// inject everywhere; it holds no ambient globals.
type Orchestrator struct {
	store    store.DocumentStore
	limiter  *ratelimit.Limiter
	webhooks *webhook.Dispatcher
	cache    cache.Cache
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(s store.DocumentStore, limiter *ratelimit.Limiter, dispatcher *webhook.Dispatcher, c cache.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		limiter:  limiter,
		webhooks: dispatcher,
		cache:    c,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateJob admits a new job for the customer, persists it in queued state,
// and fires job.created. The concurrency slot is reserved before the write
// and released again if the write fails.
func (o *Orchestrator) CreateJob(ctx context.Context, p CreateParams) (*models.Job, error) {
	if err := o.limiter.Admit(p.CustomerID, uuid.Nil); err != nil {
		return nil, err
	}

	now := o.now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		CustomerID:    p.CustomerID,
		ProjectID:     p.ProjectID,
		Status:        models.JobStatusQueued,
		Stages:        pipeline.DefaultStages(p.Configuration.DataType),
		Progress:      0,
		Configuration: p.Configuration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	doc, err := store.Encode(job)
	if err != nil {
		o.limiter.Release(p.CustomerID)
		return nil, err
	}
	if _, err := o.store.CreateDocument(ctx, store.JobPath(p.ProjectID, job.ID), doc); err != nil {
		o.limiter.Release(p.CustomerID)
		return nil, fmt.Errorf("persist job: %w", err)
	}

	o.cacheStatus(ctx, job)
	o.webhooks.Trigger(ctx, job, models.EventJobCreated)
	slog.Info("job created", "job_id", job.ID, "customer_id", p.CustomerID, "project_id", p.ProjectID)
	return job, nil
}

// GetJob loads a job by project and id.
func (o *Orchestrator) GetJob(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error) {
	doc, err := o.store.GetDocument(ctx, store.JobPath(projectID, jobID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	var job models.Job
	if err := store.Decode(doc, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Transition moves a job to next, optionally applying a stage update first.
// An empty next derives the status from the stages: completed when all
// stages finished, failed when any stage failed or was cancelled, otherwise
// the status is left as is. The new state is durably persisted before any
// webhook fires.
func (o *Orchestrator) Transition(ctx context.Context, projectID string, jobID uuid.UUID, next models.JobStatus, stage *StageUpdate) (*models.Job, error) {
	// Re-entry into queued is a resubmission and needs a slot; reserve it
	// up front so a concurrent admission cannot take it between the write
	// and the accounting.
	admitted := false
	var admittedFor uuid.UUID
	if next == models.JobStatusQueued {
		admittedFor = o.customerOf(ctx, projectID, jobID)
		if err := o.limiter.Admit(admittedFor, jobID); err != nil {
			return nil, err
		}
		admitted = true
	}

	var (
		updated models.Job
		prev    models.JobStatus
	)
	err := o.store.UpdateDocumentTxn(ctx, store.JobPath(projectID, jobID), func(current map[string]any) (map[string]any, error) {
		var job models.Job
		if err := store.Decode(current, &job); err != nil {
			return nil, err
		}
		prev = job.Status

		applied, err := o.apply(&job, next, stage)
		if err != nil {
			return nil, err
		}
		updated = *applied
		return store.Encode(applied)
	})
	if err != nil {
		if admitted {
			o.limiter.Release(admittedFor)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	o.settle(prev, &updated, admitted)
	o.cacheStatus(ctx, &updated)
	if event, ok := eventFor(prev, updated.Status); ok {
		o.webhooks.Trigger(ctx, &updated, event)
	}
	slog.Info("job transitioned",
		"job_id", updated.ID, "from", prev, "to", updated.Status, "progress", updated.Progress)
	return &updated, nil
}

// Cancel moves the job to cancelled and starts its cooldown window.
func (o *Orchestrator) Cancel(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error) {
	return o.Transition(ctx, projectID, jobID, models.JobStatusCancelled, nil)
}

// Resume restarts a job: paused jobs return to running, failed jobs are
// resubmitted into the queue. Any other status is rejected.
func (o *Orchestrator) Resume(ctx context.Context, projectID string, jobID uuid.UUID) (*models.Job, error) {
	job, err := o.GetJob(ctx, projectID, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusPaused:
		return o.Transition(ctx, projectID, jobID, models.JobStatusRunning, nil)
	case models.JobStatusFailed:
		return o.Transition(ctx, projectID, jobID, models.JobStatusQueued, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotResumable, job.Status)
	}
}

// ListJobs returns a customer's jobs in a project.
func (o *Orchestrator) ListJobs(ctx context.Context, projectID string, customerID uuid.UUID) ([]models.Job, error) {
	docs, err := o.store.QueryDocuments(ctx, store.JobCollection(projectID), []store.Condition{
		{Field: "customerId", Operator: store.OpEqual, Value: customerID},
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]models.Job, 0, len(docs))
	for _, doc := range docs {
		var job models.Job
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RateLimitStatus exposes the customer's current occupancy snapshot.
func (o *Orchestrator) RateLimitStatus(customerID uuid.UUID) models.RateLimitStatus {
	return o.limiter.Status(customerID)
}

// apply computes the job's next state in memory. Called inside the store
// transaction; must not perform I/O.
func (o *Orchestrator) apply(job *models.Job, next models.JobStatus, stage *StageUpdate) (*models.Job, error) {
	now := o.now().UTC()

	if next != "" {
		if err := lifecycle.Validate(job.Status, next); err != nil {
			return nil, err
		}
	} else if job.Status == models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: stage update requested", lifecycle.ErrAlreadyCompleted)
	}

	if stage != nil {
		if !pipeline.HasStage(job.Stages, stage.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage.Name)
		}
		progress := -1
		if stage.Progress != nil {
			progress = stage.Progress.Percent
		}
		job.Stages = pipeline.UpdateStageStatus(job.Stages, stage.Name, stage.Status, progress, now)
		if stage.Error != "" {
			for i := range job.Stages {
				if job.Stages[i].Name == stage.Name {
					job.Stages[i].Error = stage.Error
				}
			}
		}
	}

	job.Progress = pipeline.CalculateProgress(job.Stages)

	target := next
	switch {
	case pipeline.AllCompleted(job.Stages):
		target = models.JobStatusCompleted
	case target == "" && pipeline.AnyFailedOrCancelled(job.Stages):
		target = models.JobStatusFailed
	case target == "":
		target = job.Status
	}

	if target != job.Status {
		if err := lifecycle.Validate(job.Status, target); err != nil {
			return nil, err
		}
		job.Status = target
	}

	if job.Status == models.JobStatusCompleted && job.CompletedAt == nil {
		t := now
		job.CompletedAt = &t
	}
	if job.Status == models.JobStatusFailed && job.Error == "" && stage != nil && stage.Error != "" {
		job.Error = stage.Error
	}
	if job.Status == models.JobStatusQueued {
		// Resubmission: clear the previous failure.
		job.Error = ""
	}
	job.UpdatedAt = now
	return job, nil
}

// settle reconciles the rate limiter with a persisted transition.
func (o *Orchestrator) settle(prev models.JobStatus, job *models.Job, admitted bool) {
	wasActive := prev == models.JobStatusQueued || prev == models.JobStatusRunning || prev == models.JobStatusPaused
	if wasActive && !job.IsActive() {
		o.limiter.Release(job.CustomerID)
	}
	if !wasActive && job.IsActive() && !admitted && job.Status != models.JobStatusQueued {
		// pending/accepted straight into an active state never passes
		// through the queued admission path; nothing reserved a slot yet.
		o.limiter.Admit(job.CustomerID, job.ID)
	}
	if job.Status == models.JobStatusCancelled {
		o.limiter.EnterCooldown(job.CustomerID, job.ID, o.limiter.CooldownPeriod())
	}
}

// customerOf resolves the customer owning a job, for limiter accounting
// before the transactional read.
func (o *Orchestrator) customerOf(ctx context.Context, projectID string, jobID uuid.UUID) uuid.UUID {
	job, err := o.GetJob(ctx, projectID, jobID)
	if err != nil {
		return uuid.Nil
	}
	return job.CustomerID
}

func (o *Orchestrator) cacheStatus(ctx context.Context, job *models.Job) {
	if o.cache == nil {
		return
	}
	_ = o.cache.SetJobStatus(ctx, job.ID, string(job.Status), jobStatusCacheTTL)
}

// eventFor maps a persisted transition to its webhook event. Entry into
// queued (resubmission) has no event.
func eventFor(prev, next models.JobStatus) (models.WebhookEvent, bool) {
	if prev == next {
		return "", false
	}
	switch next {
	case models.JobStatusRunning:
		return models.EventJobStarted, true
	case models.JobStatusCompleted:
		return models.EventJobCompleted, true
	case models.JobStatusFailed:
		return models.EventJobFailed, true
	case models.JobStatusCancelled:
		return models.EventJobCancelled, true
	default:
		return "", false
	}
}
