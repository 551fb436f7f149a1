// Package lifecycle holds the job state machine policy: which status
// transitions are legal. It validates edges only; persisting the resulting
// state is the orchestrator's job.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/priyamshenoy/dataforge/pkg/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyCompleted  = errors.New("job already completed")
	ErrUnknownStatus     = errors.New("unknown job status")
)

// transitions is the directed edge set. A status absent from a set is not a
// legal target. completed has no outgoing edges.
var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusQueued:    {models.JobStatusRunning, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusRunning:   {models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled, models.JobStatusPaused},
	models.JobStatusCompleted: {},
	models.JobStatusFailed:    {models.JobStatusQueued},
	models.JobStatusCancelled: {models.JobStatusQueued},
	models.JobStatusPaused:    {models.JobStatusRunning, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusPending:   {models.JobStatusQueued, models.JobStatusCancelled},
	models.JobStatusAccepted:  {models.JobStatusQueued, models.JobStatusCancelled},
	models.JobStatusRejected:  {models.JobStatusQueued},
}

// IsValid reports whether current -> next is an edge in the table.
func IsValid(current, next models.JobStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Validate returns nil when current -> next is legal. Requests out of
// completed fail with ErrAlreadyCompleted so callers can special-case
// idempotent completion; every other missing edge is ErrInvalidTransition.
func Validate(current, next models.JobStatus) error {
	if !models.IsValidJobStatus(current) || !models.IsValidJobStatus(next) {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownStatus, current, next)
	}
	if current == models.JobStatusCompleted {
		return fmt.Errorf("%w: transition to %s requested", ErrAlreadyCompleted, next)
	}
	if !IsValid(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// IsTerminal reports whether no outgoing edges exist for s.
func IsTerminal(s models.JobStatus) bool {
	return len(transitions[s]) == 0 && models.IsValidJobStatus(s)
}

// Targets returns the allowed next statuses for current, in table order.
func Targets(current models.JobStatus) []models.JobStatus {
	out := make([]models.JobStatus, len(transitions[current]))
	copy(out, transitions[current])
	return out
}
