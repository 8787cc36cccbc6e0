package server

import "context"

// Semaphore bounds concurrent access to a shared resource via a buffered
// channel. AuditPublisher uses one to cap concurrent Kafka sends
// independently of its worker count.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a Semaphore allowing up to n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired by Acquire. Releasing when no slot is held
// is a no-op.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
	default:
	}
}
