package actor

import (
	"context"
	"errors"
)

// Handle is a reference to an actor's command queue. It is cheap to copy and
// every copy talks to the same actor. The zero Handle is not usable.
type Handle[R Resource] struct {
	a   *actor[R]
	ref *handleRef
}

// handleRef is shared by every copy of a Handle. The actor closes its
// resource once it becomes unreachable.
type handleRef struct {
	id string
}

// ID returns the actor identifier.
func (h Handle[R]) ID() string {
	return h.a.id
}

// Done returns a channel that is closed once the actor has terminated.
func (h Handle[R]) Done() <-chan struct{} {
	return h.a.done
}

// Pending returns the number of commands waiting in the queue.
func (h Handle[R]) Pending() int {
	return len(h.a.cmds)
}

// Submit queues fn and returns without waiting for it to run.
func (h Handle[R]) Submit(ctx context.Context, fn func(R) error) *Future[struct{}] {
	return Go(ctx, h, func(res R) (struct{}, error) {
		return struct{}{}, fn(res)
	})
}

// Exec runs fn on the actor's resource and waits for it to finish.
func (h Handle[R]) Exec(ctx context.Context, fn func(R) error) error {
	_, err := h.Submit(ctx, fn).Wait(ctx)
	return err
}

// Close asks the actor to close its resource and waits for the outcome.
//
// On success the actor terminates and every later submission fails with
// ErrClosed. On failure the actor keeps its resource and keeps serving, so
// Close may be retried. Closing a terminated actor returns nil.
func (h Handle[R]) Close(ctx context.Context) error {
	reply := make(chan error, 1)
	err := h.a.send(ctx, command[R]{shutdown: &shutdownRequest{ctx: ctx, reply: reply}})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-h.a.done:
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues fn on the actor behind h and returns a Future for its result.
// ctx bounds only the enqueue; the operation itself always runs to completion.
func Go[R Resource, T any](ctx context.Context, h Handle[R], fn func(R) (T, error)) *Future[T] {
	f := &Future[T]{
		reply: make(chan result[T], 1),
		done:  h.a.done,
	}
	err := h.a.send(ctx, command[R]{invoke: func(res R) {
		val, err := invoke(h.a, res, fn)
		f.reply <- result[T]{val: val, err: err}
	}})
	if err != nil {
		f.reply <- result[T]{err: err}
	}
	return f
}

// Call runs fn on the actor behind h and waits for its result.
func Call[R Resource, T any](ctx context.Context, h Handle[R], fn func(R) (T, error)) (T, error) {
	return Go(ctx, h, fn).Wait(ctx)
}

// Failed returns a Future that resolves to err without running anything.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{reply: make(chan result[T], 1)}
	f.reply <- result[T]{err: err}
	return f
}

// Future is the pending result of an operation queued with Go or Submit.
type Future[T any] struct {
	reply chan result[T]
	done  <-chan struct{}
}

type result[T any] struct {
	val T
	err error
}

// Wait blocks until the operation finished, the actor terminated without
// running it, or ctx is done. Wait must be called at most once.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case r := <-f.reply:
		return r.val, r.err
	case <-f.done:
		// An operation that ran before termination has already replied.
		select {
		case r := <-f.reply:
			return r.val, r.err
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
