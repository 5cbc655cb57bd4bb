// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrQueueClosed indicates an insertion into a queue that has been closed
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrQueueFull indicates a bounded queue is at capacity
	ErrQueueFull = errors.New("work queue is full")

	// ErrQueueDrained indicates the queue is closed and empty; no unit will ever arrive
	ErrQueueDrained = errors.New("work queue is drained")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrAlreadyStarted indicates a worker or pool was started twice
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted indicates a join was attempted before start
	ErrNotStarted = errors.New("not started")

	// ErrNotJoined indicates worker state was requested before the worker was joined
	ErrNotJoined = errors.New("not joined")
)

// WorkError records the failure of a single work unit on a single worker.
// It never crosses the queue boundary: it is kept in the failing worker's
// private failure list and surfaces only through that worker's Result.
type WorkError struct {
	// WorkerID is the index of the worker that executed the unit
	WorkerID int

	// UnitID identifies the failing unit
	UnitID string

	// Cause is the underlying error
	Cause error

	// Panicked is true when the unit panicked instead of returning an error
	Panicked bool

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *WorkError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("work unit %s panicked on worker %d: %v", e.UnitID, e.WorkerID, e.Cause)
	}
	return fmt.Sprintf("work unit %s failed on worker %d: %v", e.UnitID, e.WorkerID, e.Cause)
}

// Unwrap returns the underlying error
func (e *WorkError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *WorkError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewWorkError creates a new work unit error
func NewWorkError(workerID int, unitID string, cause error) *WorkError {
	return &WorkError{
		WorkerID: workerID,
		UnitID:   unitID,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *WorkError) WithContext(key string, value interface{}) *WorkError {
	e.Context[key] = value
	return e
}

// AsWorkError extracts a *WorkError from err's chain
func AsWorkError(err error) (*WorkError, bool) {
	var workErr *WorkError
	if errors.As(err, &workErr) {
		return workErr, true
	}
	return nil, false
}
