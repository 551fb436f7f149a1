// Package ratelimit enforces per-customer job concurrency limits and the
// post-cancellation cooldown window. State lives in process; all methods are
// safe for concurrent use.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/pkg/models"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrCooldownActive    = errors.New("job is in cooldown period")
)

const (
	DefaultMaxJobs         = 5
	DefaultCooldownSeconds = 30
	MaxCooldownSeconds     = 60
)

// Clock returns the current time. Injected so tests can control cooldown
// expiry.
type Clock func() time.Time

type customerState struct {
	currentJobs int
	maxJobs     int
	cooldowns   map[uuid.UUID]time.Time
}

// Limiter tracks occupancy and cooldowns per customer.
type Limiter struct {
	mu              sync.Mutex
	customers       map[uuid.UUID]*customerState
	defaultMaxJobs  int
	cooldownSeconds int
	now             Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.now = c }
}

// WithDefaultMaxJobs overrides the default per-customer concurrency cap.
func WithDefaultMaxJobs(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.defaultMaxJobs = n
		}
	}
}

// WithCooldownSeconds overrides the cancellation cooldown window. Values
// outside [1, MaxCooldownSeconds] fall back to the default or the cap.
func WithCooldownSeconds(secs int) Option {
	return func(l *Limiter) {
		if secs < 1 {
			secs = DefaultCooldownSeconds
		}
		if secs > MaxCooldownSeconds {
			secs = MaxCooldownSeconds
		}
		l.cooldownSeconds = secs
	}
}

// New creates a Limiter with the default limits.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		customers:       make(map[uuid.UUID]*customerState),
		defaultMaxJobs:  DefaultMaxJobs,
		cooldownSeconds: DefaultCooldownSeconds,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// state returns the tracked record for customerID, creating it on first
// use. Callers must hold l.mu.
func (l *Limiter) state(customerID uuid.UUID) *customerState {
	cs, ok := l.customers[customerID]
	if !ok {
		cs = &customerState{
			maxJobs:   l.defaultMaxJobs,
			cooldowns: make(map[uuid.UUID]time.Time),
		}
		l.customers[customerID] = cs
	}
	return cs
}

// prune drops expired cooldown entries. Callers must hold l.mu.
func (l *Limiter) prune(cs *customerState) {
	now := l.now()
	for jobID, until := range cs.cooldowns {
		if !until.After(now) {
			delete(cs.cooldowns, jobID)
		}
	}
}

// Check reports whether a job may be admitted for the customer. jobID may
// be uuid.Nil for brand-new jobs; for resubmissions it is checked against
// the cooldown registry.
func (l *Limiter) Check(customerID, jobID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.state(customerID)
	l.prune(cs)

	if jobID != uuid.Nil {
		if until, ok := cs.cooldowns[jobID]; ok {
			return fmt.Errorf("%w: job %s until %s", ErrCooldownActive, jobID, until.UTC().Format(time.RFC3339))
		}
	}
	if cs.currentJobs >= cs.maxJobs {
		return fmt.Errorf("%w: customer %s at %d/%d jobs", ErrRateLimitExceeded, customerID, cs.currentJobs, cs.maxJobs)
	}
	return nil
}

// Admit takes a concurrency slot. It re-checks the limit under the same
// lock so concurrent admissions cannot overshoot maxJobs.
func (l *Limiter) Admit(customerID, jobID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.state(customerID)
	l.prune(cs)

	if jobID != uuid.Nil {
		if until, ok := cs.cooldowns[jobID]; ok {
			return fmt.Errorf("%w: job %s until %s", ErrCooldownActive, jobID, until.UTC().Format(time.RFC3339))
		}
	}
	if cs.currentJobs >= cs.maxJobs {
		return fmt.Errorf("%w: customer %s at %d/%d jobs", ErrRateLimitExceeded, customerID, cs.currentJobs, cs.maxJobs)
	}
	cs.currentJobs++
	return nil
}

// Release frees the slot a job held. Safe to call when occupancy is
// already zero.
func (l *Limiter) Release(customerID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.state(customerID)
	if cs.currentJobs > 0 {
		cs.currentJobs--
	}
}

// EnterCooldown registers a cooldown entry for jobID. A non-positive
// duration uses the configured default.
func (l *Limiter) EnterCooldown(customerID, jobID uuid.UUID, d time.Duration) {
	if d <= 0 {
		d = time.Duration(l.cooldownSeconds) * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.state(customerID)
	cs.cooldowns[jobID] = l.now().Add(d)
}

// SetMaxJobs overrides the concurrency cap for one customer.
func (l *Limiter) SetMaxJobs(customerID uuid.UUID, maxJobs int) {
	if maxJobs <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state(customerID).maxJobs = maxJobs
}

// Status returns a snapshot of the customer's occupancy and live cooldowns.
func (l *Limiter) Status(customerID uuid.UUID) models.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := l.state(customerID)
	l.prune(cs)

	entries := make([]models.CooldownEntry, 0, len(cs.cooldowns))
	for jobID, until := range cs.cooldowns {
		entries = append(entries, models.CooldownEntry{JobID: jobID, CooldownUntil: until})
	}

	return models.RateLimitStatus{
		CustomerID:            customerID,
		CurrentJobs:           cs.currentJobs,
		MaxJobs:               cs.maxJobs,
		CooldownPeriodSeconds: l.cooldownSeconds,
		CooldownJobs:          entries,
	}
}

// CooldownPeriod returns the configured cooldown window.
func (l *Limiter) CooldownPeriod() time.Duration {
	return time.Duration(l.cooldownSeconds) * time.Second
}
