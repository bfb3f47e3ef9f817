package sqlactor

import (
	"errors"

	"github.com/yuku/sqlactor/actor"
)

var (
	// ErrClosed is returned by Acquire after Close, by a second Close, and by
	// operations on an actor that has terminated.
	ErrClosed = actor.ErrClosed

	// ErrCreate matches errors from actors that failed to open their resource.
	ErrCreate = actor.ErrCreate

	// ErrReleased is returned when a Conn is used after Release.
	ErrReleased = errors.New("connection already released to the pool")
)
