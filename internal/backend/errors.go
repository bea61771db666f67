package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors reported by backend implementations.
var (
	// ErrCancelled marks a build that stopped because its cancellation
	// token fired.
	ErrCancelled = errors.New("build cancelled")

	// ErrBuildFailed marks a build that ran and reported failure.
	ErrBuildFailed = errors.New("build failed")

	// ErrInvalidVersion is returned when a version string cannot be parsed.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrToolNotFound is returned when no build tool executable can be resolved.
	ErrToolNotFound = errors.New("build tool not found")
)

// LaunchError describes a failed launch. Err is ErrCancelled, ErrBuildFailed
// or a lower-level error. ExitCode is -1 when the process never exited on
// its own.
type LaunchError struct {
	Tasks    []string
	ExitCode int
	Err      error
}

func (e *LaunchError) Error() string {
	tasks := strings.Join(e.Tasks, ",")
	if e.ExitCode >= 0 {
		return fmt.Sprintf("launch %s: %v (exit %d)", tasks, e.Err, e.ExitCode)
	}
	return fmt.Sprintf("launch %s: %v", tasks, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
