package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultMaxConcurrent = 10

// maxSlots is the fixed weight of the semaphore. Weight above the current
// capacity stays reserved by the limiter itself.
const maxSlots = 1 << 30

// limiter bounds concurrent dispatches in parallel mode. Resizing moves the
// reservation on a single semaphore, so slots held across a resize keep
// counting against the new capacity.
type limiter struct {
	resize   sync.Mutex
	mu       sync.RWMutex
	parallel bool
	capacity int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

func newLimiter(parallel bool, capacity int64) *limiter {
	capacity = clampCapacity(capacity)
	sem := semaphore.NewWeighted(maxSlots)
	sem.TryAcquire(maxSlots - capacity)
	return &limiter{parallel: parallel, capacity: capacity, sem: sem}
}

func clampCapacity(n int64) int64 {
	if n <= 0 {
		return DefaultMaxConcurrent
	}
	if n > maxSlots {
		return maxSlots
	}
	return n
}

// acquire blocks for a slot in parallel mode. The returned release is safe
// to call more than once.
func (l *limiter) acquire(ctx context.Context) (func(), error) {
	l.mu.RLock()
	parallel := l.parallel
	l.mu.RUnlock()

	if parallel {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	l.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			if parallel {
				l.sem.Release(1)
			}
		})
	}, nil
}

// enable switches to parallel mode with capacity n. Shrinking blocks until
// enough held slots are released; new acquires queue behind it.
func (l *limiter) enable(n int64) {
	n = clampCapacity(n)
	l.resize.Lock()
	defer l.resize.Unlock()

	l.mu.RLock()
	cur := l.capacity
	l.mu.RUnlock()
	switch {
	case n > cur:
		l.sem.Release(n - cur)
	case n < cur:
		_ = l.sem.Acquire(context.Background(), cur-n)
	}

	l.mu.Lock()
	l.parallel = true
	l.capacity = n
	l.mu.Unlock()
}

// disable admits dispatches without a slot. Dispatches admitted this way do
// not count against a later enable.
func (l *limiter) disable() {
	l.mu.Lock()
	l.parallel = false
	l.mu.Unlock()
}

func (l *limiter) state() (parallel bool, capacity int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.parallel, l.capacity
}
