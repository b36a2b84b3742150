package brain

import (
	"sync"
	"time"
)

const (
	DefaultFailureThreshold = 4
	DefaultCooldown         = 600 * time.Second
)

// BreakerState is a snapshot of the circuit breaker, used for persistence
// and inspection.
type BreakerState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FallbackActive      bool      `json:"fallback_active"`
	FallbackUntil       time.Time `json:"fallback_until"`
}

// CircuitBreaker routes calls to the fallback model after repeated
// rate-limit failures against the primary. One instance is shared by every
// invoker that talks to the same backend.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	active    bool
	until     time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments select
// the defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Acquire reports whether the next attempt must use the fallback model.
// An open breaker whose cooldown has elapsed is reset first; reset reports
// that this happened.
func (b *CircuitBreaker) Acquire() (forced, reset bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return false, false
	}
	if b.now().Before(b.until) {
		return true, false
	}
	b.active = false
	b.failures = 0
	b.until = time.Time{}
	return false, true
}

// RecordFailure counts a retryable primary-model failure. It reports true
// when this failure opened the breaker. Failures while open are ignored.
func (b *CircuitBreaker) RecordFailure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return false
	}
	b.failures++
	if b.failures >= b.threshold {
		b.active = true
		b.until = b.now().Add(b.cooldown)
		return true
	}
	return false
}

// RecordSuccess clears the failure count after a primary-model success.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		b.failures = 0
	}
}

// State returns a snapshot.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		ConsecutiveFailures: b.failures,
		FallbackActive:      b.active,
		FallbackUntil:       b.until,
	}
}

// Restore replaces the breaker state, e.g. from a previous process.
func (b *CircuitBreaker) Restore(s BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = s.ConsecutiveFailures
	b.active = s.FallbackActive
	b.until = s.FallbackUntil
}
