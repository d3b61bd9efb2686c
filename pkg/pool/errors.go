package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolShuttingDown is returned by Acquire once shutdown has begun.
	// Callers must not retry against this pool instance.
	ErrPoolShuttingDown = errors.New("pool is shutting down")

	// ErrAcquireTimeout is returned when a queued Acquire is not satisfied
	// within the creation timeout. Transient; callers may retry.
	ErrAcquireTimeout = errors.New("timed out waiting for a worker")
)

// CreationError wraps the underlying launch error when a worker could not
// be created. Callers should surface it as a service failure.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("worker creation failed: %v", e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}
