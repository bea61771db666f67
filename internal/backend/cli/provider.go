// Package cli implements backend.Provider on top of a Gradle-compatible
// command-line build tool.
//
// Each connection resolves the tool executable for a project, reports the
// tool version by running it with --version, and launches task sets as
// supervised child processes. A fired cancellation token interrupts the
// build's process group and kills it if it has not stopped within the
// grace period.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/backend/process"
	"github.com/dshills/buildlink/internal/logging"
)

// Defaults for Provider timing.
const (
	DefaultCancelGrace    = 10 * time.Second
	DefaultVersionTimeout = 30 * time.Second
	DefaultWaitDelay      = 5 * time.Second
)

// DefaultTool is the executable looked up on PATH when a project has no
// wrapper script.
const DefaultTool = "gradle"

// Provider runs builds through a command-line build tool.
type Provider struct {
	supervisor     *process.Supervisor
	ownSupervisor  bool
	logger         *logging.Logger
	cancelGrace    time.Duration
	versionTimeout time.Duration
	waitDelay      time.Duration
	defaults       *backend.Settings
	lookPath       func(string) (string, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithSupervisor sets the process supervisor. The caller stays responsible
// for shutting it down.
func WithSupervisor(s *process.Supervisor) Option {
	return func(p *Provider) {
		if s != nil {
			p.supervisor = s
			p.ownSupervisor = false
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCancelGrace sets how long a cancelled build may take to stop after
// the interrupt before it is killed.
func WithCancelGrace(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.cancelGrace = d
		}
	}
}

// WithVersionTimeout bounds the --version probe.
func WithVersionTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.versionTimeout = d
		}
	}
}

// WithDefaults sets the settings used when a request carries none.
func WithDefaults(s *backend.Settings) Option {
	return func(p *Provider) {
		p.defaults = s.Clone()
	}
}

// NewProvider creates a Provider. Without WithSupervisor it owns a
// supervisor that Close shuts down.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		logger:         logging.Nop(),
		cancelGrace:    DefaultCancelGrace,
		versionTimeout: DefaultVersionTimeout,
		waitDelay:      DefaultWaitDelay,
		lookPath:       exec.LookPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.supervisor == nil {
		p.supervisor = process.NewSupervisor(process.WithLogger(p.logger.WithComponent("process")))
		p.ownSupervisor = true
	}
	return p
}

// WithConnection implements backend.Provider.
func (p *Provider) WithConnection(ctx context.Context, projectPath string, settings *backend.Settings, fn func(backend.Connection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if settings == nil {
		settings = p.defaults
	}
	settings = settings.Clone()
	if settings == nil {
		settings = &backend.Settings{}
	}

	tool, err := p.ResolveTool(projectPath, settings)
	if err != nil {
		return err
	}

	conn := &Connection{
		provider:    p,
		tool:        tool,
		projectPath: projectPath,
		settings:    settings,
		logger:      p.logger.WithFields(map[string]any{"tool": tool, "project": projectPath}),
	}
	return fn(conn)
}

// ResolveTool finds the build tool executable: settings.ToolPath, then the
// project's wrapper script, then DefaultTool on PATH.
func (p *Provider) ResolveTool(projectPath string, settings *backend.Settings) (string, error) {
	if settings != nil && settings.ToolPath != "" {
		if _, err := os.Stat(settings.ToolPath); err != nil {
			return "", fmt.Errorf("%w: %w", backend.ErrToolNotFound, err)
		}
		return settings.ToolPath, nil
	}

	if projectPath != "" {
		wrapper := filepath.Join(projectPath, wrapperName())
		if isExecutable(wrapper) {
			return wrapper, nil
		}
	}

	path, err := p.lookPath(DefaultTool)
	if err != nil {
		return "", fmt.Errorf("%w: %w", backend.ErrToolNotFound, err)
	}
	return path, nil
}

// Close shuts down the provider's own supervisor, stopping any build still
// running. It does nothing when the supervisor was supplied by the caller.
func (p *Provider) Close(timeout time.Duration) {
	if p.ownSupervisor {
		p.supervisor.Shutdown(timeout)
	}
}

func wrapperName() string {
	if runtime.GOOS == "windows" {
		return "gradlew.bat"
	}
	return "gradlew"
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// errNoVersion is returned by parseVersion when the output has no version
// line.
var errNoVersion = errors.New("no version line in output")
