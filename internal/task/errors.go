package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrUnknownKind is returned when no handler is registered for a task kind.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrDuplicateSubmission marks a launch that found an incomplete task of the
	// same kind for the owner. Launch logs it and returns the existing ID.
	ErrDuplicateSubmission = errors.New("task already in progress")

	// ErrQueueFull is returned when the in-memory queue buffer is exhausted.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned when enqueueing after Close.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrKindRegistered is returned when a kind is registered twice.
	ErrKindRegistered = errors.New("task kind already registered")

	// ErrInterrupted is returned when shutdown stops a task whose durable
	// delivery is left for another worker to run.
	ErrInterrupted = errors.New("task interrupted by shutdown")

	ErrNilHandler    = errors.New("handler cannot be nil")
	ErrNilDependency = errors.New("dependency cannot be nil")
	ErrInvalidArgs   = errors.New("invalid task arguments")
)

// ExecutionError describes a task run that ended in the failed state.
type ExecutionError struct {
	TaskID uuid.UUID
	Kind   string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
