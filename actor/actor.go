package actor

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"

	"github.com/google/uuid"
)

// Resource is a value that must only be used by one goroutine at a time.
//
// Close must leave the resource usable when it returns an error, so that the
// owning actor can keep serving commands and the close can be retried.
type Resource interface {
	Close(ctx context.Context) error
}

// Opener creates the resource owned by a new actor.
type Opener[R Resource] func(ctx context.Context) (R, error)

// command is either an invocation or a shutdown request.
type command[R Resource] struct {
	invoke   func(R)
	shutdown *shutdownRequest
}

type shutdownRequest struct {
	ctx   context.Context
	reply chan error
}

type actor[R Resource] struct {
	id       string
	cmds     chan command[R]
	done     chan struct{}
	lifetime context.Context
	logger   *slog.Logger

	// dropped is closed once no Handle refers to the actor any more.
	dropped chan struct{}
}

// SpawnOptions holds the settings applied by SpawnOption values.
type SpawnOptions struct {
	// id identifies the actor in logs and errors.
	id string

	// queueSize is the capacity of the command queue.
	queueSize int

	// lifetime ends the actor without closing its resource when done.
	lifetime context.Context

	logger *slog.Logger
}

type SpawnOption func(*SpawnOptions)

// DefaultQueueSize is the command queue capacity used unless WithQueueSize is
// given.
const DefaultQueueSize = 64

// WithID sets the identifier used in logs and errors.
func WithID(id string) SpawnOption {
	return func(opts *SpawnOptions) {
		opts.id = id
	}
}

// WithQueueSize sets how many commands can be queued before submitters block.
func WithQueueSize(n int) SpawnOption {
	return func(opts *SpawnOptions) {
		opts.queueSize = n
	}
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) SpawnOption {
	return func(opts *SpawnOptions) {
		opts.logger = logger
	}
}

// WithLifetime bounds the actor by ctx. When ctx is done the actor stops
// serving commands and abandons its resource without closing it; pending and
// later submissions fail with ErrClosed.
func WithLifetime(ctx context.Context) SpawnOption {
	return func(opts *SpawnOptions) {
		opts.lifetime = ctx
	}
}

// Spawn starts an actor that owns the resource returned by open.
//
// open runs on the actor's goroutine with ctx. If it fails, Spawn returns a
// *CreateError and no Handle exists for that actor. If ctx is done before open
// returns, Spawn gives up with a *CreateError wrapping ctx.Err(); a resource
// that is opened afterwards is closed by the actor, which then terminates.
//
// Call Close to release the resource. An actor whose Handles have all become
// unreachable closes its resource and terminates once the garbage collector
// notices; WithLifetime ends it earlier without closing.
func Spawn[R Resource](ctx context.Context, open Opener[R], opts ...SpawnOption) (Handle[R], error) {
	options := &SpawnOptions{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(options)
	}
	if options.id == "" {
		options.id = uuid.NewString()
	}
	if options.queueSize < 0 {
		options.queueSize = 0
	}
	if options.lifetime == nil {
		options.lifetime = context.Background()
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	a := &actor[R]{
		id:       options.id,
		cmds:     make(chan command[R], options.queueSize),
		done:     make(chan struct{}),
		lifetime: options.lifetime,
		logger:   options.logger,
		dropped:  make(chan struct{}),
	}

	// opened is unbuffered: the actor either hands its outcome to Spawn or
	// learns through gaveUp that nobody will take it.
	opened := make(chan error)
	gaveUp := make(chan struct{})
	go a.run(ctx, open, opened, gaveUp)

	select {
	case err := <-opened:
		if err != nil {
			return Handle[R]{}, err
		}
		ref := &handleRef{id: a.id}
		runtime.AddCleanup(ref, func(dropped chan struct{}) { close(dropped) }, a.dropped)
		return Handle[R]{a: a, ref: ref}, nil
	case <-ctx.Done():
		close(gaveUp)
		return Handle[R]{}, &CreateError{ID: a.id, Err: ctx.Err()}
	}
}

// run owns the resource for its whole life. Nothing else may touch it.
func (a *actor[R]) run(ctx context.Context, open Opener[R], opened chan<- error, gaveUp <-chan struct{}) {
	res, err := open(ctx)
	if err != nil {
		close(a.done)
		select {
		case opened <- &CreateError{ID: a.id, Err: err}:
		case <-gaveUp:
		}
		return
	}
	select {
	case opened <- nil:
	case <-gaveUp:
		a.closeAbandoned(res, "spawn gave up")
		return
	}
	a.logger.Debug("actor started", "actor", a.id)

	for {
		select {
		case cmd := <-a.cmds:
			if cmd.shutdown == nil {
				cmd.invoke(res)
				continue
			}
			err := res.Close(cmd.shutdown.ctx)
			// Reply before closing done so the closer always sees the outcome.
			cmd.shutdown.reply <- err
			if err == nil {
				close(a.done)
				a.logger.Debug("actor stopped", "actor", a.id)
				return
			}
			a.logger.Warn("failed to close resource", "actor", a.id, "error", err)
		case <-a.dropped:
			a.closeAbandoned(res, "all handles dropped")
			return
		case <-a.lifetime.Done():
			close(a.done)
			a.logger.Debug("actor abandoned its resource", "actor", a.id, "cause", a.lifetime.Err())
			return
		}
	}
}

// closeAbandoned closes a resource no caller can reach and terminates the
// actor. A close failure is only logged.
func (a *actor[R]) closeAbandoned(res R, reason string) {
	if err := res.Close(context.Background()); err != nil {
		a.logger.Warn("failed to close abandoned resource", "actor", a.id, "reason", reason, "error", err)
	} else {
		a.logger.Debug("actor closed abandoned resource", "actor", a.id, "reason", reason)
	}
	close(a.done)
}

// send enqueues cmd. It never enqueues into a terminated actor.
func (a *actor[R]) send(ctx context.Context, cmd command[R]) error {
	select {
	case <-a.done:
		return ErrClosed
	default:
	}
	select {
	case a.cmds <- cmd:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invoke[R Resource, T any](a *actor[R], res R, fn func(R) (T, error)) (val T, err error) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("panic in actor operation",
				"actor", a.id,
				"error", p,
				"stack", string(debug.Stack()))
			var zero T
			val, err = zero, &PanicError{Value: p}
		}
	}()
	return fn(res)
}
