package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when execution times out.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNotFunction is returned when calling a global that is not a
	// function.
	ErrNotFunction = errors.New("lua global is not a function")

	// ErrNoEnhance is returned when a contributor script does not define
	// the enhance function.
	ErrNoEnhance = errors.New("contributor script does not define enhance")
)
