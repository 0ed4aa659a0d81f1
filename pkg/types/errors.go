// Package types defines error types
package types

import (
	"context"
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrQueueClosed indicates an enqueue on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrEndOfStream indicates the queue is closed and fully drained
	ErrEndOfStream = errors.New("end of stream")

	// ErrAlreadyRunning indicates Start on a running pipeline
	ErrAlreadyRunning = errors.New("pipeline is already running")

	// ErrNotRunning indicates a control operation outside the running state
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrInvalidWorkerCount indicates a negative initial worker count
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrInvalidConfig indicates a configuration that failed validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PipelineError represents an unexpected failure inside a worker loop
type PipelineError struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// Worker is the generated name of the worker, e.g. "P3"
	Worker string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Worker == "" {
		return fmt.Sprintf("pipeline error in operation %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("pipeline error in operation %s (worker %s): %v", e.Operation, e.Worker, e.Cause)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(operation, worker string, cause error) *PipelineError {
	return &PipelineError{
		Operation: operation,
		Worker:    worker,
		Cause:     cause,
	}
}

// IsTermination reports whether err is a normal way for a worker loop to end:
// cancellation, a closed queue, or a drained queue.
func IsTermination(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrQueueClosed) ||
		errors.Is(err, ErrEndOfStream)
}
