package web

// limiter.go bounds how many batch writes run at once.
//
// Every batch write holds one pooled connection for its whole staging
// transaction. The limiter keeps parallel writes below the pool size so
// reads still get connections. When all slots are taken, a request waits
// up to maxWait before failing with ErrTooManyBatches.

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyBatches is returned when all batch slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyBatches = errors.New("too many concurrent batch operations, please try again later")

// DefaultMaxConcurrentBatches is the default limit for parallel batch writes.
const DefaultMaxConcurrentBatches = 5

// DefaultBatchWaitTime is how long to wait for a slot before rejecting.
const DefaultBatchWaitTime = 30 * time.Second

// batchLimiter is a weighted semaphore with one unit per batch write.
type batchLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// BatchLimiterStatus is a snapshot of the limiter's state.
type BatchLimiterStatus struct {
	Active        int64 `json:"active"`
	Available     int64 `json:"available"`
	MaxConcurrent int64 `json:"max_concurrent"`
}

func newBatchLimiter(maxConcurrent int, maxWait time.Duration) *batchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultBatchWaitTime
	}
	return &batchLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait.
// The caller must call Release when the batch completes.
func (l *batchLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		// Caller gave up vs. we timed out
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBatches
	}
	l.active.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (l *batchLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// WaitForDrain blocks until no batch is running or ctx is done.
// New batches are held off while it waits.
func (l *batchLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}

// Status returns the current limiter state for monitoring.
func (l *batchLimiter) Status() BatchLimiterStatus {
	active := l.active.Load()
	return BatchLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}

// middleware wraps batch write routes.
func (s *Server) limitBatches(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.limiter.Acquire(r.Context()); err != nil {
			if errors.Is(err, ErrTooManyBatches) {
				w.Header().Set("Retry-After", "5")
			}
			s.respondError(w, r, err)
			return
		}
		defer s.limiter.Release()

		next.ServeHTTP(w, r)
	})
}
