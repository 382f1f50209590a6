package agent

import (
	"sync"
	"time"
)

// DefaultBreakerThreshold is the failure count that opens a breaker.
const DefaultBreakerThreshold = 5

// BreakerState is a copy of a breaker's fields.
type BreakerState struct {
	FailureCount  int       `json:"failureCount"`
	LastFailureAt time.Time `json:"lastFailureAt,omitempty"`
	IsOpen        bool      `json:"isOpen"`
	Threshold     int       `json:"threshold"`
}

// CircuitBreaker isolates a persistently failing worker. It opens only once
// failureCount reaches the threshold and closes on the next success.
type CircuitBreaker struct {
	mu            sync.Mutex
	threshold     int
	failureCount  int
	lastFailureAt time.Time
	isOpen        bool
}

func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordFailure counts a failure. opened is true only on the closed to open
// transition; failures past the threshold keep counting without reopening.
func (b *CircuitBreaker) RecordFailure(at time.Time) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureAt = at
	if !b.isOpen && b.failureCount >= b.threshold {
		b.isOpen = true
		return true
	}
	return false
}

// RecordSuccess resets the count. closed is true when an open breaker closes.
func (b *CircuitBreaker) RecordSuccess() (closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	if b.isOpen {
		b.isOpen = false
		return true
	}
	return false
}

func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		FailureCount:  b.failureCount,
		LastFailureAt: b.lastFailureAt,
		IsOpen:        b.isOpen,
		Threshold:     b.threshold,
	}
}
