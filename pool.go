package sqlactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yuku/sqlactor/actor"
	"github.com/yuku/sqlactor/internal/waitqueue"
)

// Pool hands out exclusive access to a bounded set of resource actors.
//
// Actors are created on demand up to Config.MaxConns, or all at once when
// Config.Eager is set. When every actor is in use, Acquire waits in a FIFO
// queue until a Conn is released.
type Pool[R actor.Resource] struct {
	open    actor.Opener[R]
	conf    Config
	logger  *slog.Logger
	metrics Metrics

	// lifetime bounds every actor; it ends after Close has drained the pool so
	// actors whose close failed do not outlive it.
	lifetime context.Context
	cancel   context.CancelFunc

	// mu protects every field below. It is never held across a spawn, a close
	// or a channel wait.
	mu      sync.Mutex
	count   int
	inUse   int
	idle    []actor.Handle[R]
	waiters waitqueue.Queue[ticket[R]]
	closing bool

	// drain carries to the closer one event for every actor that was still
	// counted when Close began. Its capacity is MaxConns so sends never block.
	drain    chan drainEvent[R]
	done     chan struct{}
	closeErr error
}

// ticket is what a waiter receives: a handle, or a request to retry because
// capacity was freed by a failed creation.
type ticket[R actor.Resource] struct {
	handle actor.Handle[R]
	retry  bool
}

type drainEvent[R actor.Resource] struct {
	handle actor.Handle[R]
	ok     bool
}

// New creates a pool of actors whose resources are created by open.
func New[R actor.Resource](ctx context.Context, open actor.Opener[R], conf Config) (*Pool[R], error) {
	if open == nil {
		return nil, fmt.Errorf("invalid pool configuration: opener cannot be nil")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}
	conf = conf.withDefaults()

	lifetime, cancel := context.WithCancel(context.Background())
	p := &Pool[R]{
		open:     open,
		conf:     conf,
		logger:   conf.Logger.With("pool", conf.Name),
		metrics:  conf.Metrics,
		lifetime: lifetime,
		cancel:   cancel,
		drain:    make(chan drainEvent[R], conf.MaxConns),
		done:     make(chan struct{}),
	}

	if conf.Eager {
		if err := p.prewarm(ctx); err != nil {
			cancel()
			return nil, err
		}
	}
	p.logger.Debug("pool created", "max_conns", conf.MaxConns, "eager", conf.Eager)
	return p, nil
}

// prewarm opens MaxConns actors concurrently and parks them as idle.
func (p *Pool[R]) prewarm(ctx context.Context) error {
	var (
		mu      sync.Mutex
		handles []actor.Handle[R]
	)
	g, gctx := errgroup.WithContext(ctx)
	for range p.conf.MaxConns {
		g.Go(func() error {
			h, err := actor.Spawn(gctx, p.open, p.spawnOptions()...)
			p.metrics.ActorOpened(err)
			if err != nil {
				return err
			}
			mu.Lock()
			handles = append(handles, h)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, h := range handles {
			closeErr := h.Close(context.Background())
			p.metrics.ActorClosed(closeErr)
			err = multierr.Append(err, closeErr)
		}
		return fmt.Errorf("failed to open pool connections: %w", err)
	}

	p.mu.Lock()
	p.idle = handles
	p.count = len(handles)
	p.reportLocked()
	p.mu.Unlock()
	return nil
}

func (p *Pool[R]) spawnOptions() []actor.SpawnOption {
	return []actor.SpawnOption{
		actor.WithLifetime(p.lifetime),
		actor.WithLogger(p.logger),
		actor.WithQueueSize(p.conf.QueueSize),
	}
}

// Acquire returns exclusive use of one actor. The returned Conn must be
// released exactly once, typically with defer conn.Release().
//
// Acquire fails with ErrClosed once Close has been called, with a
// *actor.CreateError when a new actor could not open its resource, and with
// ctx.Err() when ctx ends while waiting. Waiters are served in arrival order;
// a waiter woken to retry after a failed creation stays first in line.
func (p *Pool[R]) Acquire(ctx context.Context) (*Conn[R], error) {
	start := time.Now()
	h, err := p.acquire(ctx)
	p.metrics.AcquireDuration(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &Conn[R]{pool: p, handle: h}, nil
}

func (p *Pool[R]) acquire(ctx context.Context) (actor.Handle[R], error) {
	var zero actor.Handle[R]
	retried := false
	for {
		p.mu.Lock()
		if p.closing {
			p.mu.Unlock()
			return zero, ErrClosed
		}
		if n := len(p.idle); n > 0 {
			h := p.idle[n-1]
			p.idle[n-1] = zero
			p.idle = p.idle[:n-1]
			p.inUse++
			p.reportLocked()
			p.mu.Unlock()
			return h, nil
		}
		if p.count < p.conf.MaxConns {
			p.count++
			p.reportLocked()
			p.mu.Unlock()
			return p.spawn(ctx)
		}
		// A waiter that was woken to retry and lost the freed slot keeps its
		// place at the head of the queue.
		var w *waitqueue.Waiter[ticket[R]]
		if retried {
			w = p.waiters.PushFront()
		} else {
			w = p.waiters.Push()
		}
		p.reportLocked()
		p.mu.Unlock()

		p.logger.Debug("waiting for connection", "waiter", w.ID())
		t, ok, err := w.Wait(ctx)
		if err != nil {
			p.abandonWait(w)
			return zero, err
		}
		if !ok {
			return zero, ErrClosed
		}
		if t.retry {
			retried = true
			continue
		}
		return t.handle, nil
	}
}

// abandonWait unregisters a waiter whose caller gave up, passing on anything
// it was granted in the meantime.
func (p *Pool[R]) abandonWait(w *waitqueue.Waiter[ticket[R]]) {
	p.mu.Lock()
	if p.waiters.Remove(w) {
		p.reportLocked()
		p.mu.Unlock()
		return
	}
	t, ok := w.Take()
	if !ok {
		p.mu.Unlock()
		return
	}
	if t.retry {
		p.wakeRetryLocked()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.release(t.handle)
}

// spawn creates a new actor for a slot already counted in p.count.
func (p *Pool[R]) spawn(ctx context.Context) (actor.Handle[R], error) {
	var zero actor.Handle[R]
	h, err := actor.Spawn(ctx, p.open, p.spawnOptions()...)
	p.metrics.ActorOpened(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.reportLocked()

	if err != nil {
		p.count--
		if p.closing {
			p.drain <- drainEvent[R]{}
		} else {
			p.wakeRetryLocked()
		}
		p.logger.Warn("failed to open connection", "error", err)
		return zero, err
	}
	if p.closing {
		p.count--
		p.drain <- drainEvent[R]{handle: h, ok: true}
		return zero, ErrClosed
	}
	p.inUse++
	return h, nil
}

// wakeRetryLocked lets the oldest waiter create an actor in a freed slot.
func (p *Pool[R]) wakeRetryLocked() {
	if p.closing || p.count >= p.conf.MaxConns {
		return
	}
	p.waiters.Grant(ticket[R]{retry: true})
}

// release takes back a handle that was checked out.
func (p *Pool[R]) release(h actor.Handle[R]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.reportLocked()

	if p.closing {
		p.count--
		p.inUse--
		p.drain <- drainEvent[R]{handle: h, ok: true}
		return
	}

	select {
	case <-h.Done():
		// The actor was closed through its handle; its slot is free again.
		p.count--
		p.inUse--
		p.metrics.ActorClosed(nil)
		p.wakeRetryLocked()
		return
	default:
	}

	if p.waiters.Grant(ticket[R]{handle: h}) {
		return
	}
	p.inUse--
	p.idle = append(p.idle, h)
}

// Close shuts the pool down and waits until every actor has terminated.
//
// Waiters wake with ErrClosed, idle actors are closed at once and checked out
// actors are closed as they are released. Close failures are collected and
// returned together; they never stop the other actors from closing.
//
// Close may be called only once; later calls return ErrClosed. If ctx ends
// first, Close returns ctx.Err() and draining continues in the background;
// Done reports when it has finished.
func (p *Pool[R]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closing = true
	idle := p.idle
	p.idle = nil
	p.count -= len(idle)
	pending := p.count
	abandoned := p.waiters.Abandon()
	p.reportLocked()
	p.mu.Unlock()

	p.logger.Debug("closing pool", "idle", len(idle), "in_use", pending, "waiters", abandoned)
	go p.shutdown(idle, pending)

	select {
	case <-p.done:
		return p.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown closes the captured idle actors and every actor forwarded through
// drain until none of the actors counted at Close time remains.
func (p *Pool[R]) shutdown(idle []actor.Handle[R], pending int) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	closeActor := func(h actor.Handle[R]) {
		defer wg.Done()
		err := h.Close(context.Background())
		p.metrics.ActorClosed(err)
		if err != nil {
			p.logger.Warn("failed to close connection", "actor", h.ID(), "error", err)
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("failed to close actor %s: %w", h.ID(), err))
			mu.Unlock()
		}
	}

	for _, h := range idle {
		wg.Add(1)
		go closeActor(h)
	}
	for ; pending > 0; pending-- {
		ev := <-p.drain
		if ev.ok {
			wg.Add(1)
			go closeActor(ev.handle)
		}
	}
	wg.Wait()

	p.closeErr = errs
	p.cancel()
	close(p.done)
	p.logger.Debug("pool closed", "error", errs)
}

// Done returns a channel that is closed once Close has drained the pool.
func (p *Pool[R]) Done() <-chan struct{} {
	return p.done
}

// Exec acquires a connection, runs fn on its resource and releases it.
func (p *Pool[R]) Exec(ctx context.Context, fn func(R) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Exec(ctx, fn)
}

// Do acquires a connection from p, runs fn on its resource and releases it,
// returning fn's result.
func Do[R actor.Resource, T any](ctx context.Context, p *Pool[R], fn func(R) (T, error)) (T, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer conn.Release()
	return Call(ctx, conn, fn)
}
