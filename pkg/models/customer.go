package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a tenant organization. Every job, webhook, and policy
// belongs to a customer.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	MaxJobs   int       `json:"maxJobs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
