package actor

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when the actor has terminated, either because its
	// resource was closed or because its lifetime ended.
	ErrClosed = errors.New("resource actor is closed")

	// ErrCreate matches every *CreateError.
	ErrCreate = errors.New("failed to create resource")
)

// CreateError reports that an actor could not open its resource.
// The actor never started serving commands.
type CreateError struct {
	ID  string
	Err error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create resource for actor %s: %v", e.ID, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

func (e *CreateError) Is(target error) bool { return target == ErrCreate }

// PanicError is returned to the caller whose operation panicked.
// The actor keeps running.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}
