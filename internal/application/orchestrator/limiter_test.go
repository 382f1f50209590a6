package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acquireWithin(l *limiter, d time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.acquire(ctx)
}

func TestLimiter_ReenableKeepsHeldSlots(t *testing.T) {
	l := newLimiter(true, 2)
	r1, err := l.acquire(context.Background())
	require.NoError(t, err)
	r2, err := l.acquire(context.Background())
	require.NoError(t, err)

	l.enable(2)
	_, err = acquireWithin(l, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), l.inFlight.Load())

	l.enable(3)
	r3, err := l.acquire(context.Background())
	require.NoError(t, err)
	_, err = acquireWithin(l, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(3), l.inFlight.Load())

	r1()
	r2()
	r3()
	assert.Zero(t, l.inFlight.Load())
}

func TestLimiter_ShrinkWaitsForHeldSlots(t *testing.T) {
	l := newLimiter(true, 3)
	var releases []func()
	for i := 0; i < 3; i++ {
		r, err := l.acquire(context.Background())
		require.NoError(t, err)
		releases = append(releases, r)
	}

	done := make(chan struct{})
	go func() {
		l.enable(1)
		close(done)
	}()

	releases[0]()
	select {
	case <-done:
		t.Fatal("capacity lowered while two slots were still held")
	case <-time.After(20 * time.Millisecond):
	}

	releases[1]()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resize did not finish after slots were released")
	}
	_, capacity := l.state()
	assert.Equal(t, int64(1), capacity)

	_, err := acquireWithin(l, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	releases[2]()
	releases[2]()
	r, err := l.acquire(context.Background())
	require.NoError(t, err)
	r()
	assert.Zero(t, l.inFlight.Load())
}

func TestLimiter_DisabledSkipsSlots(t *testing.T) {
	l := newLimiter(true, 1)
	held, err := l.acquire(context.Background())
	require.NoError(t, err)

	l.disable()
	r, err := acquireWithin(l, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.inFlight.Load())
	r()
	held()

	parallel, capacity := l.state()
	assert.False(t, parallel)
	assert.Equal(t, int64(1), capacity)
}
