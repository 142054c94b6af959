package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultLimiterCapacity is the default cap on simultaneous network
// operations across the whole run. The limit is process-wide, not per host:
// two requests to the same host may run concurrently unless a variant
// paces them explicitly.
const DefaultLimiterCapacity = 100

// Limiter bounds the number of in-flight network operations process-wide.
// Acquisition blocks the calling goroutine until capacity is available.
//
// Design decision: We wrap semaphore.Weighted rather than using
// errgroup.SetLimit because retries inside the fetch client must also
// consume a slot, and errgroup only bounds task starts, not individual
// network calls within a task.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewLimiter creates a limiter with the given capacity.
// A capacity below one falls back to DefaultLimiterCapacity.
func NewLimiter(capacity int64) *Limiter {
	if capacity < 1 {
		capacity = DefaultLimiterCapacity
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot. It must be called exactly once per successful
// Acquire, on every exit path of the protected operation.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Capacity returns the configured slot count.
func (l *Limiter) Capacity() int64 {
	return l.capacity
}
