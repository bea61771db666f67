// Package model holds the values shared by the task coordinator and its
// extension points: the execution id and the execution request.
package model

import (
	"slices"

	"github.com/dshills/buildlink/internal/backend"
)

// Request is one task execution request. A Request is owned by a single
// execution and must not be shared between concurrent calls.
type Request struct {
	// ID identifies the execution for cancellation.
	ID ID

	// TaskNames are the tasks to run, in order. Names may repeat.
	TaskNames []string

	// ProjectPath is the root of the build to run.
	ProjectPath string

	// Settings configures the backend. May be nil.
	Settings *backend.Settings

	// VMOptions are JVM options for the build.
	VMOptions []string

	// ScriptParameters are build tool arguments. The coordinator appends
	// to this slice (default test filter, init script option).
	ScriptParameters []string

	// DebuggerSetup is passed to init script contributors. May be empty.
	DebuggerSetup string
}

// HasTask reports whether name is among the requested tasks.
func (r *Request) HasTask(name string) bool {
	return slices.Contains(r.TaskNames, name)
}

// HasParameter reports whether param is among the script parameters.
func (r *Request) HasParameter(param string) bool {
	return slices.Contains(r.ScriptParameters, param)
}
