// Package breaker implements the circuit breaker pattern guarding a single
// downstream target. One Breaker instance protects one logical target; the
// caller owns instance scoping.
//
// States:
//   - Closed: calls pass through, failures are counted.
//   - Open: calls fail fast until the recovery timeout elapses.
//   - HalfOpen: exactly one trial call is admitted; success closes the
//     circuit, failure reopens it.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// OpenError is returned when a call is rejected by an open breaker.
type OpenError struct {
	FailureCount    int
	LastFailureTime time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is OPEN (failures: %d, last failure: %s)",
		e.FailureCount, e.LastFailureTime.UTC().Format(time.RFC3339))
}

// Config holds breaker parameters.
type Config struct {
	// FailureThreshold is the number of counted failures before the
	// breaker opens. Defaults to 5.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before admitting
	// a trial call. Defaults to 60s.
	RecoveryTimeout time.Duration

	// IsFailure classifies which errors count against the breaker. Errors
	// it rejects propagate to the caller without touching breaker state.
	// Nil counts every error.
	IsFailure func(error) bool
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
}

// Breaker is a mutex-guarded three-state circuit breaker.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool

	// injectable clock for tests
	now func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// State returns the current state without admitting a call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current counted failures.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Guard runs op under the breaker. When the breaker is open and the
// recovery timeout has not elapsed, op is not invoked and an *OpenError is
// returned. Errors not matched by cfg.IsFailure propagate without
// affecting breaker state.
func (b *Breaker) Guard(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}

	if b.cfg.IsFailure == nil || b.cfg.IsFailure(err) {
		b.onFailure()
	} else {
		b.onNeutral()
	}
	return err
}

// allow decides whether a call may proceed, transitioning OPEN->HALF_OPEN
// when the recovery timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return nil
		}
		return &OpenError{FailureCount: b.failureCount, LastFailureTime: b.lastFailureTime}
	case StateHalfOpen:
		// Only one trial call at a time.
		if b.trialInFlight {
			return &OpenError{FailureCount: b.failureCount, LastFailureTime: b.lastFailureTime}
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.lastFailureTime = time.Time{}
	b.trialInFlight = false
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()
	b.trialInFlight = false

	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}
	if b.failureCount >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}

// onNeutral clears the half-open trial slot for errors that do not count
// against the breaker.
func (b *Breaker) onNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}
