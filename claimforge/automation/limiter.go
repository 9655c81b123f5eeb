package automation

import (
	"context"
	"sync"
)

// Limiter bounds the number of concurrently running automation sessions.
// Waiters are admitted strictly in the order they called Acquire.
//
// The limiter has no timeout of its own: a caller that never releases its
// slot leaks it permanently. Callers must pair every successful Acquire with
// a deferred Release.
type Limiter struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters []chan struct{}
}

// LimiterStatus is an observability snapshot, nothing decides on it.
type LimiterStatus struct {
	Active int
	Queued int
	Max    int
}

func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// Acquire blocks until a session slot is free or ctx is done. It returns nil
// exactly when a slot was taken.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.active < l.max {
		l.active++
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Release already promoted us; hand the slot straight back.
		l.Release()
		return ctx.Err()
	}
}

// Release frees a slot and promotes the longest-waiting caller, if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 {
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(ready)
		return
	}
	if l.active > 0 {
		l.active--
	}
}

func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStatus{
		Active: l.active,
		Queued: len(l.waiters),
		Max:    l.max,
	}
}
