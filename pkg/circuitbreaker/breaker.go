package circuitbreaker

import (
	"sync"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

// CircuitBreaker stops transaction submission on a chain after repeated failures
type CircuitBreaker struct {
	chainID       int
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker for a chain
func NewCircuitBreaker(
	chainID int,
	enabled bool,
	threshold int,
	window time.Duration,
	resetTimeout time.Duration,
	logger logger.Logger,
) *CircuitBreaker {
	return &CircuitBreaker{
		chainID:       chainID,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		now:           time.Now,
		logger:        logger,
	}
}

// RecordFailure records a failure and trips the circuit if threshold is exceeded
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.logger.NoticeWithChain(cb.chainID, "Circuit breaker: attempting to reset after timeout")
		cb.tripped = false
		cb.failureCount = 0
	}

	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.ErrorWithChain(cb.chainID, "Circuit breaker tripped: %d failures in %v", cb.failureCount, cb.failureWindow)
		return true
	}

	return false
}

// RecordSuccess clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.tripped {
		cb.failureCount = 0
	}
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// half-open after the reset timeout: allow the next attempt through
	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}

	return cb.tripped
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	cb.logger.NoticeWithChain(cb.chainID, "Circuit breaker manually reset")
}

// State is a snapshot of the breaker for status endpoints
type State struct {
	Enabled       bool      `json:"enabled"`
	Open          bool      `json:"open"`
	FailureCount  int       `json:"failureCount"`
	FailThreshold int       `json:"failThreshold"`
	LastFailure   time.Time `json:"lastFailure"`
	TripTime      time.Time `json:"tripTime"`
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Enabled:       cb.enabled,
		Open:          open,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.failThreshold,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
}

// IsEnabled returns true if the circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.enabled
}
