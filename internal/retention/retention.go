// Package retention keeps per-customer retention-policy records. It only
// records and computes expiry; sweeping expired jobs is an external
// reaper's concern.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

var ErrInvalidRetention = errors.New("retention days must be positive")

// PolicyStore reads and writes retention policies through the document
// store.
type PolicyStore struct {
	store store.DocumentStore
	now   func() time.Time
}

// NewPolicyStore creates a PolicyStore.
func NewPolicyStore(s store.DocumentStore) *PolicyStore {
	return &PolicyStore{store: s, now: time.Now}
}

// Policy returns the customer's retention record, falling back to the
// defaults when none has been stored.
func (p *PolicyStore) Policy(ctx context.Context, customerID uuid.UUID) (models.RetentionPolicy, error) {
	doc, err := p.store.GetDocument(ctx, store.RetentionPath(customerID))
	if errors.Is(err, store.ErrNotFound) {
		return models.RetentionPolicy{
			CustomerID:           customerID,
			RetentionDays:        models.DefaultJobRetentionDays,
			ProjectRetentionDays: models.DefaultProjectRetentionDays,
		}, nil
	}
	if err != nil {
		return models.RetentionPolicy{}, fmt.Errorf("load retention policy: %w", err)
	}

	var policy models.RetentionPolicy
	if err := store.Decode(doc, &policy); err != nil {
		return models.RetentionPolicy{}, err
	}
	if policy.RetentionDays <= 0 {
		policy.RetentionDays = models.DefaultJobRetentionDays
	}
	if policy.ProjectRetentionDays <= 0 {
		policy.ProjectRetentionDays = models.DefaultProjectRetentionDays
	}
	return policy, nil
}

// RetentionDays returns how many days the customer's job history is kept.
func (p *PolicyStore) RetentionDays(ctx context.Context, customerID uuid.UUID) (int, error) {
	policy, err := p.Policy(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return policy.RetentionDays, nil
}

// SetRetentionDays updates the customer's job-history retention window.
// Rejects non-positive values.
func (p *PolicyStore) SetRetentionDays(ctx context.Context, customerID uuid.UUID, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRetention, days)
	}

	policy, err := p.Policy(ctx, customerID)
	if err != nil {
		return err
	}
	policy.CustomerID = customerID
	policy.RetentionDays = days
	policy.LastUpdated = p.now().UTC()

	doc, err := store.Encode(policy)
	if err != nil {
		return err
	}
	if err := p.store.SetDocument(ctx, store.RetentionPath(customerID), doc); err != nil {
		return fmt.Errorf("save retention policy: %w", err)
	}
	return nil
}

// ComputeExpiry returns when a completed job's record becomes eligible for
// deletion. Jobs that have not completed have no expiry.
func ComputeExpiry(job *models.Job, policy models.RetentionPolicy) (time.Time, bool) {
	if job.CompletedAt == nil {
		return time.Time{}, false
	}
	days := policy.RetentionDays
	if days <= 0 {
		days = models.DefaultJobRetentionDays
	}
	return job.CompletedAt.AddDate(0, 0, days), true
}
