package sqlactor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yuku/sqlactor/actor"
)

// Conn is exclusive use of one pooled actor, obtained from Pool.Acquire.
type Conn[R actor.Resource] struct {
	pool        *Pool[R]
	handle      actor.Handle[R]
	releaseOnce sync.Once
	released    atomic.Bool
}

// Handle returns the handle of the underlying actor. It must not be used
// after c is released.
func (c *Conn[R]) Handle() actor.Handle[R] {
	return c.handle
}

// Exec runs fn on the resource and waits for it to finish.
func (c *Conn[R]) Exec(ctx context.Context, fn func(R) error) error {
	if c.released.Load() {
		return ErrReleased
	}
	return c.handle.Exec(ctx, fn)
}

// Submit queues fn on the resource without waiting for it.
func (c *Conn[R]) Submit(ctx context.Context, fn func(R) error) *actor.Future[struct{}] {
	if c.released.Load() {
		return actor.Failed[struct{}](ErrReleased)
	}
	return c.handle.Submit(ctx, fn)
}

// Release gives c back to the pool.
// It is safe to call Release multiple times; subsequent calls will be no-ops.
// This allows for both defer c.Release() and explicit release patterns.
func (c *Conn[R]) Release() {
	c.releaseOnce.Do(func() {
		c.released.Store(true)
		c.pool.release(c.handle)
	})
}

// Close releases c back to the pool. It does not close the resource.
// It is provided for use where an io.Closer is expected.
func (c *Conn[R]) Close() error {
	c.Release()
	return nil
}

// Call runs fn on the resource of c and returns its result.
func Call[R actor.Resource, T any](ctx context.Context, c *Conn[R], fn func(R) (T, error)) (T, error) {
	if c.released.Load() {
		var zero T
		return zero, ErrReleased
	}
	return actor.Call(ctx, c.handle, fn)
}
