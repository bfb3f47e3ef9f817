package sqlactor

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/yuku/sqlactor/actor"
)

const (
	// MaxConnsLimit is the largest MaxConns a pool accepts.
	MaxConnsLimit = 1024

	// DefaultName is the pool name used in logs and metrics when none is set.
	DefaultName = "sqlactor"
)

type Config struct {
	// Name identifies the pool in logs and metrics. Defaults to DefaultName.
	Name string

	// MaxConns is the maximum number of actors the pool keeps open.
	// Zero means runtime.GOMAXPROCS(0), capped at MaxConnsLimit.
	MaxConns int

	// Eager opens MaxConns actors when the pool is created instead of on
	// first demand. New fails if any of them cannot be opened.
	Eager bool

	// QueueSize is the command queue capacity of each actor.
	// Zero means actor.DefaultQueueSize.
	QueueSize int

	// Logger receives pool and actor logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives pool measurements. Defaults to a no-op implementation.
	Metrics Metrics
}

func (c Config) Validate() error {
	if c.MaxConns < 0 || MaxConnsLimit < c.MaxConns {
		return fmt.Errorf("max conns must be between 1 and %d, or 0 for the default: given %d",
			MaxConnsLimit, c.MaxConns,
		)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size cannot be negative: given %d", c.QueueSize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.MaxConns == 0 {
		c.MaxConns = min(runtime.GOMAXPROCS(0), MaxConnsLimit)
	}
	if c.QueueSize == 0 {
		c.QueueSize = actor.DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	return c
}
