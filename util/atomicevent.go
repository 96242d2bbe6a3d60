// Package util holds small helpers shared by the gospi packages.
package util

import "sync"

// AtomicEvent hands the most recent value from a producer goroutine to a
// consumer without ever blocking the producer. Values sent while the
// consumer is busy overwrite each other; only the latest is delivered.
type AtomicEvent[T any] struct {
	mu     sync.Mutex
	latest T
	ready  chan struct{} // capacity 1, holds at most one pending wake-up
}

func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{ready: make(chan struct{}, 1)}
}

// Send stores v and wakes the consumer if no wake-up is pending yet.
func (ae *AtomicEvent[T]) Send(v T) {
	ae.mu.Lock()
	ae.latest = v
	ae.mu.Unlock()

	select {
	case ae.ready <- struct{}{}:
	default:
	}
}

// Channel is readable once per burst of Send calls.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.ready
}

// Value returns the latest value without consuming the wake-up.
func (ae *AtomicEvent[T]) Value() T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.latest
}
