package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	const max = 3
	const sessions = 10

	l := NewLimiter(max)

	var mu sync.Mutex
	var active, peak int

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			defer l.Release()

			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, max)
	assert.Equal(t, LimiterStatus{Active: 0, Queued: 0, Max: max}, l.Status())
}

func TestLimiterAdmitsWaitersInFIFOOrder(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	order := make(chan int, 2)

	// Enqueue two waiters one after another, confirming each is queued
	// before the next joins so the arrival order is known.
	for i := 1; i <= 2; i++ {
		i := i
		go func() {
			if err := l.Acquire(context.Background()); err == nil {
				order <- i
				l.Release()
			}
		}()
		waitForQueued(t, l, i)
	}

	l.Release()

	assert.Equal(t, 1, <-order)
	assert.Equal(t, 2, <-order)
}

func TestLimiterAcquireHonorsContextCancellation(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Acquire(ctx)
	}()
	waitForQueued(t, l, 1)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The abandoned waiter must not hold a phantom slot.
	l.Release()
	status := l.Status()
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, 0, status.Queued)
}

func TestLimiterStatus(t *testing.T) {
	l := NewLimiter(2)
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	go func() {
		if err := l.Acquire(context.Background()); err == nil {
			l.Release()
		}
	}()
	waitForQueued(t, l, 1)

	status := l.Status()
	assert.Equal(t, 2, status.Active)
	assert.Equal(t, 1, status.Queued)
	assert.Equal(t, 2, status.Max)

	l.Release()
	l.Release()
}

func TestNewLimiterFloorsMaxAtOne(t *testing.T) {
	l := NewLimiter(0)
	assert.Equal(t, 1, l.Status().Max)
}

func waitForQueued(t *testing.T, l *Limiter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Status().Queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("limiter never reached %d queued waiters", n)
}
