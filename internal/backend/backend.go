// Package backend defines the contract between the task coordinator and a
// build tool backend.
//
// A Provider hands out a live Connection for a project. Through the
// connection the coordinator asks for the backend version (which decides
// whether native cancellation is available) and launches a set of tasks,
// optionally bound to a CancellationToken.
//
//	err := provider.WithConnection(ctx, "/path/to/project", settings,
//	    func(conn backend.Connection) error {
//	        src := backend.NewCancellationTokenSource()
//	        return conn.Launch(ctx, backend.LaunchRequest{
//	            TaskNames: []string{"clean", "build"},
//	            Token:     src.Token(),
//	        })
//	    })
//
// Implementations report a cancelled build with an error wrapping
// ErrCancelled and a failed build with an error wrapping ErrBuildFailed.
package backend

import "context"

// Settings carries backend configuration for one execution. A nil *Settings
// means "use the provider defaults".
type Settings struct {
	// ToolPath is the build tool executable. Empty means resolve from the
	// project (wrapper script) or PATH.
	ToolPath string `mapstructure:"tool_path" toml:"tool_path"`

	// JavaHome overrides JAVA_HOME for the build.
	JavaHome string `mapstructure:"java_home" toml:"java_home"`

	// ServiceDir overrides the build tool's user home directory.
	ServiceDir string `mapstructure:"service_dir" toml:"service_dir"`

	// Offline runs the build without network access.
	Offline bool `mapstructure:"offline" toml:"offline"`

	// DaemonVMOptions are JVM options for the build daemon, applied before
	// the per-request VM options.
	DaemonVMOptions []string `mapstructure:"daemon_vm_options" toml:"daemon_vm_options"`

	// Arguments are extra command-line arguments added to every launch.
	Arguments []string `mapstructure:"arguments" toml:"arguments"`

	// Env holds extra environment variables for the build process.
	Env map[string]string `mapstructure:"env" toml:"env"`
}

// Clone returns a deep copy of s. Clone of nil is nil.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	c.DaemonVMOptions = append([]string(nil), s.DaemonVMOptions...)
	c.Arguments = append([]string(nil), s.Arguments...)
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	return &c
}

// OutputSink receives build output line by line. stdout is false for lines
// read from the error stream.
type OutputSink func(text string, stdout bool)

// LaunchRequest describes one task-set launch.
type LaunchRequest struct {
	// TaskNames are launched in order. Names may repeat.
	TaskNames []string

	// VMOptions are JVM options for the build.
	VMOptions []string

	// ScriptParameters are passed to the build tool verbatim, after the
	// settings arguments.
	ScriptParameters []string

	// DebuggerSetup is made available to the build (and its init scripts).
	DebuggerSetup string

	// Token, when non-nil, binds the launch to a cancellation source.
	Token CancellationToken

	// Output receives build output. May be nil.
	Output OutputSink
}

// Connection is a live connection to a build tool backend.
type Connection interface {
	// Version returns the backend version, or false when it cannot be
	// determined.
	Version(ctx context.Context) (Version, bool)

	// Launch runs the request synchronously. It returns when the build
	// finishes, fails or is cancelled through the request token.
	Launch(ctx context.Context, req LaunchRequest) error
}

// Provider acquires connections.
type Provider interface {
	// WithConnection runs fn against a connection for projectPath. The
	// connection is only valid for the duration of fn. Errors from fn are
	// returned unchanged.
	WithConnection(ctx context.Context, projectPath string, settings *Settings, fn func(Connection) error) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, projectPath string, settings *Settings, fn func(Connection) error) error

// WithConnection implements Provider.
func (f ProviderFunc) WithConnection(ctx context.Context, projectPath string, settings *Settings, fn func(Connection) error) error {
	return f(ctx, projectPath, settings, fn)
}
