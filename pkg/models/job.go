package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job. Transitions between statuses
// are governed by the lifecycle transition table.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusPaused    JobStatus = "paused"
	JobStatusPending   JobStatus = "pending"
	JobStatusAccepted  JobStatus = "accepted"
	JobStatusRejected  JobStatus = "rejected"
)

// AllJobStatuses lists every recognized status, in a stable order.
var AllJobStatuses = []JobStatus{
	JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed,
	JobStatusCancelled, JobStatusPaused, JobStatusPending, JobStatusAccepted,
	JobStatusRejected,
}

// IsValidJobStatus reports whether s is a recognized status value.
func IsValidJobStatus(s JobStatus) bool {
	for _, v := range AllJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// StageStatus is the state of a single pipeline stage within a job.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusCancelled StageStatus = "cancelled"
)

// Stage is one sequential phase of a job's generation pipeline.
// StartTime is stamped exactly once on first entry to running; EndTime
// exactly once on first entry to completed or failed.
type Stage struct {
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	Progress  int         `json:"progress"`
	Weight    int         `json:"weight"`
	StartTime *time.Time  `json:"startTime,omitempty"`
	EndTime   *time.Time  `json:"endTime,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// JobConfiguration is the customer-supplied generation request.
type JobConfiguration struct {
	DataType    string         `json:"dataType"`
	RecordCount int            `json:"recordCount,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Job is a single data-generation run. The ID is immutable once assigned;
// a job that reaches completed never changes again.
type Job struct {
	ID            uuid.UUID        `json:"id"`
	CustomerID    uuid.UUID        `json:"customerId"`
	ProjectID     string           `json:"projectId"`
	Status        JobStatus        `json:"status"`
	Stages        []Stage          `json:"stages"`
	Progress      int              `json:"progress"`
	Configuration JobConfiguration `json:"configuration"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// IsActive reports whether the job currently occupies a concurrency slot.
func (j *Job) IsActive() bool {
	switch j.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		return true
	default:
		return false
	}
}
