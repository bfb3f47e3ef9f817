// Package waitqueue implements the queue of callers waiting for a pooled value.
package waitqueue

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Queue is a FIFO queue of waiters.
//
// Queue is not safe for concurrent use. Its owner must serialise Push, Grant,
// Remove and Abandon with the same lock that guards the values being handed
// out, so that no value or waiter is ever in flight unobserved. Waiter.Wait is
// called without that lock.
type Queue[T any] struct {
	waiters []*Waiter[T]
}

// Waiter is a single caller registered in a Queue.
type Waiter[T any] struct {
	id string
	ch chan T
}

type WaitOptions struct {
	// id is the unique identifier for the waiter.
	id string
}

type WaitOption func(*WaitOptions)

// WithID allows setting a unique identifier for the waiter.
func WithID(id string) WaitOption {
	return func(opts *WaitOptions) {
		opts.id = id
	}
}

// Push registers a new waiter at the back of q.
func (q *Queue[T]) Push(opts ...WaitOption) *Waiter[T] {
	options := &WaitOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.id == "" {
		options.id = uuid.NewString()
	}

	w := &Waiter[T]{id: options.id, ch: make(chan T, 1)}
	q.waiters = append(q.waiters, w)
	return w
}

// PushFront registers a new waiter at the front of q, ahead of every waiter
// already queued.
func (q *Queue[T]) PushFront(opts ...WaitOption) *Waiter[T] {
	w := q.Push(opts...)
	copy(q.waiters[1:], q.waiters[:len(q.waiters)-1])
	q.waiters[0] = w
	return w
}

// Len returns the number of registered waiters.
func (q *Queue[T]) Len() int {
	return len(q.waiters)
}

// Grant hands v to the oldest waiter and reports whether there was one.
// The waiter is removed from q and receives v even if it stopped waiting;
// see Waiter.Wait for how such a value is recovered.
func (q *Queue[T]) Grant(v T) bool {
	if len(q.waiters) == 0 {
		return false
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	w.ch <- v
	return true
}

// Remove unregisters w and reports whether it was still waiting. False means w
// was already granted a value or abandoned.
func (q *Queue[T]) Remove(w *Waiter[T]) bool {
	i := slices.Index(q.waiters, w)
	if i < 0 {
		return false
	}
	q.waiters = slices.Delete(q.waiters, i, i+1)
	return true
}

// Abandon removes every waiter and wakes each one with ok == false.
func (q *Queue[T]) Abandon() int {
	n := len(q.waiters)
	for _, w := range q.waiters {
		close(w.ch)
	}
	q.waiters = nil
	return n
}

// ID returns the waiter's identifier.
func (w *Waiter[T]) ID() string {
	return w.id
}

// Wait blocks until w is granted a value, abandoned, or ctx is done.
// ok is false when the queue abandoned w. On ctx error the caller must take
// the queue lock, call Remove, and if Remove returns false call Take to
// recover the value that was granted in the meantime.
func (w *Waiter[T]) Wait(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v, ok = <-w.ch:
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Take returns a value granted to a waiter that is no longer registered.
// It must only be called after Remove returned false.
func (w *Waiter[T]) Take() (v T, ok bool) {
	v, ok = <-w.ch
	return v, ok
}
