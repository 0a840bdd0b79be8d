// Package mailbox provides a single-slot channel with latest-value semantics.
//
// A Mailbox holds at most one value. Writers never block: Overwrite replaces
// any value that has not been read yet. Readers either block until a value is
// available (Receive), look without consuming (Peek), or opt into a bound on
// how long they wait (ReceiveContext, ReceiveTimeout).
package mailbox

import (
	"context"
	"time"
)

// Mailbox is a capacity-one channel where the most recent write wins.
// It is safe for concurrent use by any number of producers and consumers.
type Mailbox[T any] struct {
	// lock serialises writers and Peek; a token in it means "held".
	lock chan struct{}
	slot chan T
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		lock: make(chan struct{}, 1),
		slot: make(chan T, 1),
	}
}

func (m *Mailbox[T]) acquire() { m.lock <- struct{}{} }
func (m *Mailbox[T]) release() { <-m.lock }

// Overwrite stores v, discarding any unread value. It never blocks on readers.
func (m *Mailbox[T]) Overwrite(v T) {
	m.acquire()
	defer m.release()
	select {
	case <-m.slot:
	default:
	}
	m.slot <- v
}

// Receive blocks until a value is available and consumes it.
// There is no timeout: a silent producer stalls the caller indefinitely.
func (m *Mailbox[T]) Receive() T {
	return <-m.slot
}

// ReceiveContext is Receive bounded by ctx. It returns ctx.Err() when ctx is
// done before a value arrives.
func (m *Mailbox[T]) ReceiveContext(ctx context.Context) (T, error) {
	select {
	case v := <-m.slot:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ReceiveTimeout waits at most d for a value. ok is false on timeout.
func (m *Mailbox[T]) ReceiveTimeout(d time.Duration) (v T, ok bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v = <-m.slot:
		return v, true
	case <-timer.C:
		return v, false
	}
}

// Peek returns the pending value without consuming it. ok is false when the
// mailbox is empty. Peek never blocks.
func (m *Mailbox[T]) Peek() (v T, ok bool) {
	m.acquire()
	defer m.release()
	select {
	case v = <-m.slot:
		m.slot <- v
		return v, true
	default:
		return v, false
	}
}
