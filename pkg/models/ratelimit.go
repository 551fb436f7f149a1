package models

import (
	"time"

	"github.com/google/uuid"
)

// CooldownEntry blocks a specific job id from resubmission until
// CooldownUntil has passed.
type CooldownEntry struct {
	JobID         uuid.UUID `json:"jobId"`
	CooldownUntil time.Time `json:"cooldownUntil"`
}

// RateLimitStatus is a point-in-time snapshot of a customer's concurrency
// occupancy. CurrentJobs never exceeds MaxJobs and counts jobs whose status
// is queued, running, or paused.
type RateLimitStatus struct {
	CustomerID            uuid.UUID       `json:"customerId"`
	CurrentJobs           int             `json:"currentJobs"`
	MaxJobs               int             `json:"maxJobs"`
	CooldownPeriodSeconds int             `json:"cooldownPeriodSeconds"`
	CooldownJobs          []CooldownEntry `json:"cooldownJobs"`
}
