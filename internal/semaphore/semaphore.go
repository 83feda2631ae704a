// Package semaphore provides bounded concurrency control, used by
// cmd/qindb-server to cap how many requests execute against the
// engine at once. Adapted from
// cmd/mindb-server/internal/semaphore's channel-based Semaphore.
package semaphore

import (
	"context"
	"fmt"
)

// Semaphore bounds concurrent access to a shared capacity.
type Semaphore struct {
	sem chan struct{}
}

// New creates a Semaphore with the given capacity.
func New(capacity int) *Semaphore {
	return &Semaphore{sem: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is available or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("semaphore: acquire cancelled: %w", ctx.Err())
	}
}

// Release frees a slot.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// Available returns the number of free slots.
func (s *Semaphore) Available() int { return cap(s.sem) - len(s.sem) }

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int { return len(s.sem) }
