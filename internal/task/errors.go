package task

import (
	"errors"
	"fmt"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/task/model"
)

// ErrorKind classifies execution failures.
type ErrorKind uint8

const (
	// KindSetup is a failure before launch, such as init script creation.
	KindSetup ErrorKind = iota
	// KindConnection is a failure acquiring the backend connection.
	KindConnection
	// KindLaunch is a backend failure or cancellation during launch.
	KindLaunch
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindConnection:
		return "connection"
	case KindLaunch:
		return "launch"
	default:
		return "unknown"
	}
}

// ExecutionError reports a failed execution.
type ExecutionError struct {
	Kind   ErrorKind
	TaskID model.ID
	Cause  error
}

// Error implements error.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s: %s: %v", e.TaskID, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Cancelled reports whether the backend ended the launch because of a
// cancellation request.
func (e *ExecutionError) Cancelled() bool {
	return errors.Is(e.Cause, backend.ErrCancelled)
}

// IsCancelled reports whether err is an execution that ended through
// cancellation.
func IsCancelled(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Cancelled()
}
