package actor_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/sqlactor/actor"
)

var errCloseFailed = errors.New("close failed")

// counter records the order in which operations touched it and how many ran at
// once. It is only safe to use from its actor.
type counter struct {
	seen          []int
	active        int32
	maxActive     int32
	closeFailures int
	closed        atomic.Bool
}

func (c *counter) Close(context.Context) error {
	if c.closeFailures > 0 {
		c.closeFailures--
		return errCloseFailed
	}
	c.closed.Store(true)
	return nil
}

func (c *counter) record(n int) int {
	active := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	if active > c.maxActive {
		c.maxActive = active
	}
	c.seen = append(c.seen, n)
	return len(c.seen) - 1
}

func spawnCounter(t *testing.T, c *counter, opts ...actor.SpawnOption) actor.Handle[*counter] {
	t.Helper()
	h, err := actor.Spawn(context.Background(), func(context.Context) (*counter, error) {
		return c, nil
	}, opts...)
	require.NoError(t, err, "Spawn should not return an error")
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func TestSpawn(t *testing.T) {
	t.Parallel()

	t.Run("serves calls after open succeeds", func(t *testing.T) {
		t.Parallel()
		h := spawnCounter(t, &counter{}, actor.WithID("counter-1"))

		pos, err := actor.Call(context.Background(), h, func(c *counter) (int, error) {
			return c.record(7), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, pos)
		assert.Equal(t, "counter-1", h.ID())
	})

	t.Run("reports open failure once and exposes no handle", func(t *testing.T) {
		t.Parallel()
		openErr := errors.New("disk on fire")

		h, err := actor.Spawn(context.Background(), func(context.Context) (*counter, error) {
			return nil, openErr
		})
		require.ErrorIs(t, err, actor.ErrCreate)
		require.ErrorIs(t, err, openErr)
		var createErr *actor.CreateError
		require.ErrorAs(t, err, &createErr)
		assert.NotEmpty(t, createErr.ID)
		assert.Equal(t, actor.Handle[*counter]{}, h)
	})

	t.Run("gives up when ctx ends during open and closes the late resource", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		unblock := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())

		errs := make(chan error, 1)
		go func() {
			_, err := actor.Spawn(ctx, func(context.Context) (*counter, error) {
				<-unblock
				return c, nil
			})
			errs <- err
		}()

		cancel()
		select {
		case err := <-errs:
			require.ErrorIs(t, err, actor.ErrCreate)
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Spawn did not return after ctx was cancelled")
		}

		close(unblock)
		require.Eventually(t, c.closed.Load, time.Second, 5*time.Millisecond,
			"resource opened after Spawn gave up should be closed")
	})

	t.Run("closes a late resource even when its lifetime has already ended", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		unblock := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		lifetime, endLifetime := context.WithCancel(context.Background())

		errs := make(chan error, 1)
		go func() {
			_, err := actor.Spawn(ctx, func(context.Context) (*counter, error) {
				<-unblock
				return c, nil
			}, actor.WithLifetime(lifetime))
			errs <- err
		}()

		cancel()
		require.ErrorIs(t, <-errs, context.Canceled)
		endLifetime()

		close(unblock)
		require.Eventually(t, c.closed.Load, time.Second, 5*time.Millisecond,
			"an ended lifetime must not let a late resource escape its close")
	})

	t.Run("closes the resource once every handle is dropped", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		func() {
			h, err := actor.Spawn(context.Background(), func(context.Context) (*counter, error) {
				return c, nil
			})
			require.NoError(t, err)
			_, err = actor.Call(context.Background(), h, func(c *counter) (int, error) {
				return c.record(1), nil
			})
			require.NoError(t, err)
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			return c.closed.Load()
		}, 5*time.Second, 10*time.Millisecond, "unreachable actor should close its resource")
	})
}

func TestHandle_Order(t *testing.T) {
	t.Parallel()

	t.Run("runs queued operations in submission order", func(t *testing.T) {
		t.Parallel()
		const n = 100
		h := spawnCounter(t, &counter{})
		ctx := context.Background()

		futures := make([]*actor.Future[int], n)
		for i := range n {
			futures[i] = actor.Go(ctx, h, func(c *counter) (int, error) {
				return c.record(i), nil
			})
		}
		for i, f := range futures {
			pos, err := f.Wait(ctx)
			require.NoError(t, err)
			require.Equal(t, i, pos, "operation %d ran out of order", i)
		}

		seen, err := actor.Call(ctx, h, func(c *counter) ([]int, error) {
			return append([]int(nil), c.seen...), nil
		})
		require.NoError(t, err)
		for i, v := range seen {
			require.Equal(t, i, v)
		}
	})

	t.Run("never runs two operations at once", func(t *testing.T) {
		t.Parallel()
		const n = 50
		h := spawnCounter(t, &counter{})
		ctx := context.Background()

		var wg sync.WaitGroup
		positions := make([]int, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pos, err := actor.Call(ctx, h, func(c *counter) (int, error) {
					time.Sleep(100 * time.Microsecond)
					return c.record(i), nil
				})
				assert.NoError(t, err)
				positions[i] = pos
			}()
		}
		wg.Wait()

		var maxActive int32
		seen, err := actor.Call(ctx, h, func(c *counter) ([]int, error) {
			maxActive = c.maxActive
			return append([]int(nil), c.seen...), nil
		})
		require.NoError(t, err)
		require.EqualValues(t, 1, maxActive)
		require.Len(t, seen, n)
		// Each caller got back the slot its own operation wrote.
		for i, pos := range positions {
			assert.Equal(t, i, seen[pos])
		}
	})
}

func TestHandle_Failures(t *testing.T) {
	t.Parallel()

	t.Run("operation error reaches only its caller", func(t *testing.T) {
		t.Parallel()
		h := spawnCounter(t, &counter{})
		ctx := context.Background()
		opErr := errors.New("constraint violated")

		err := h.Exec(ctx, func(*counter) error { return opErr })
		require.ErrorIs(t, err, opErr)

		err = h.Exec(ctx, func(c *counter) error {
			c.record(1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("panic is returned as error and actor survives", func(t *testing.T) {
		t.Parallel()
		h := spawnCounter(t, &counter{})
		ctx := context.Background()

		_, err := actor.Call(ctx, h, func(*counter) (int, error) {
			panic("boom")
		})
		var panicErr *actor.PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "boom", panicErr.Value)

		pos, err := actor.Call(ctx, h, func(c *counter) (int, error) {
			return c.record(1), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, pos)
	})

	t.Run("abandoned caller does not stop the operation", func(t *testing.T) {
		t.Parallel()
		h := spawnCounter(t, &counter{})
		release := make(chan struct{})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := h.Exec(ctx, func(c *counter) error {
			<-release
			c.record(42)
			return nil
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		seen, err := actor.Call(context.Background(), h, func(c *counter) ([]int, error) {
			return append([]int(nil), c.seen...), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{42}, seen)
	})
}

func TestHandle_Close(t *testing.T) {
	t.Parallel()

	t.Run("failed close keeps the actor alive and can be retried", func(t *testing.T) {
		t.Parallel()
		c := &counter{closeFailures: 1}
		h := spawnCounter(t, c)
		ctx := context.Background()

		require.ErrorIs(t, h.Close(ctx), errCloseFailed)
		require.NoError(t, h.Exec(ctx, func(c *counter) error {
			c.record(1)
			return nil
		}), "actor should keep serving after a failed close")

		require.NoError(t, h.Close(ctx))
		assert.True(t, c.closed.Load())
		<-h.Done()

		err := h.Exec(ctx, func(*counter) error { return nil })
		require.ErrorIs(t, err, actor.ErrClosed)
		require.NoError(t, h.Close(ctx), "closing a terminated actor is a no-op")
	})

	t.Run("copies share the actor", func(t *testing.T) {
		t.Parallel()
		h := spawnCounter(t, &counter{})
		clone := h
		ctx := context.Background()

		require.NoError(t, clone.Close(ctx))
		require.ErrorIs(t, h.Exec(ctx, func(*counter) error { return nil }), actor.ErrClosed)
	})

	t.Run("ended lifetime abandons the resource without closing it", func(t *testing.T) {
		t.Parallel()
		c := &counter{}
		lifetime, cancel := context.WithCancel(context.Background())
		h := spawnCounter(t, c, actor.WithLifetime(lifetime))

		cancel()
		select {
		case <-h.Done():
		case <-time.After(time.Second):
			t.Fatal("actor did not stop after its lifetime ended")
		}

		err := h.Exec(context.Background(), func(*counter) error { return nil })
		require.ErrorIs(t, err, actor.ErrClosed)
		assert.False(t, c.closed.Load(), "abandoned resource must not be closed")
	})
}
