package models

import (
	"time"

	"github.com/google/uuid"
)

// Default retention windows, in days.
const (
	DefaultJobRetentionDays     = 180
	DefaultProjectRetentionDays = 30
)

// RetentionPolicy records how long a customer's job history is kept before
// it becomes eligible for deletion by an external reaper.
type RetentionPolicy struct {
	CustomerID           uuid.UUID `json:"customerId"`
	RetentionDays        int       `json:"retentionDays"`
	ProjectRetentionDays int       `json:"projectRetentionDays"`
	LastUpdated          time.Time `json:"lastUpdated"`
}
