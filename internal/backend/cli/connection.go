package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/logging"
)

// Environment variables set for every launch.
const (
	EnvJavaHome      = "JAVA_HOME"
	EnvUserHome      = "GRADLE_USER_HOME"
	EnvDebuggerSetup = "BUILDLINK_DEBUGGER_SETUP"
)

// JVMArgsProperty carries VM options to the build daemon.
const JVMArgsProperty = "-Dorg.gradle.jvmargs="

// maxLineSize bounds a single line of build output.
const maxLineSize = 1024 * 1024

var versionLine = regexp.MustCompile(`(?m)^Gradle\s+(\S+)\s*$`)

// Connection is a build tool bound to one project.
type Connection struct {
	provider    *Provider
	tool        string
	projectPath string
	settings    *backend.Settings
	logger      *logging.Logger

	versionOnce sync.Once
	version     backend.Version
	versionOK   bool
}

// Tool returns the resolved build tool executable.
func (c *Connection) Tool() string {
	return c.tool
}

// Version implements backend.Connection. The tool is probed once per
// connection; a failed probe reports an unknown version.
func (c *Connection) Version(ctx context.Context) (backend.Version, bool) {
	c.versionOnce.Do(func() {
		v, err := c.probeVersion(ctx)
		if err != nil {
			c.logger.Warn("could not determine build tool version", "error", err)
			return
		}
		c.version, c.versionOK = v, true
		c.logger.Debug("build tool version", "version", v.String())
	})
	return c.version, c.versionOK
}

func (c *Connection) probeVersion(ctx context.Context) (backend.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, c.provider.versionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.tool, "--version")
	cmd.Dir = c.projectPath
	cmd.Env = c.environ("")
	out, err := cmd.Output()
	if err != nil {
		return backend.Version{}, fmt.Errorf("run %s --version: %w", c.tool, err)
	}
	return parseVersion(string(out))
}

// parseVersion extracts the version from --version output.
func parseVersion(out string) (backend.Version, error) {
	m := versionLine.FindStringSubmatch(strings.ReplaceAll(out, "\r\n", "\n"))
	if m == nil {
		return backend.Version{}, errNoVersion
	}
	return backend.ParseVersion(m[1])
}

// Args returns the command-line arguments for req.
func (c *Connection) Args(req backend.LaunchRequest) []string {
	args := append([]string(nil), c.settings.Arguments...)
	if c.settings.Offline {
		args = append(args, "--offline")
	}
	if c.projectPath != "" {
		args = append(args, "--project-dir", c.projectPath)
	}
	jvmArgs := append(append([]string(nil), c.settings.DaemonVMOptions...), req.VMOptions...)
	if len(jvmArgs) > 0 {
		args = append(args, JVMArgsProperty+strings.Join(jvmArgs, " "))
	}
	args = append(args, req.ScriptParameters...)
	return append(args, req.TaskNames...)
}

// environ returns the process environment: the current environment, the
// settings overrides, then the variables this package owns.
func (c *Connection) environ(debuggerSetup string) []string {
	env := os.Environ()
	for k, v := range c.settings.Env {
		env = append(env, k+"="+v)
	}
	if c.settings.JavaHome != "" {
		env = append(env, EnvJavaHome+"="+c.settings.JavaHome)
	}
	if c.settings.ServiceDir != "" {
		env = append(env, EnvUserHome+"="+c.settings.ServiceDir)
	}
	if debuggerSetup != "" {
		env = append(env, EnvDebuggerSetup+"="+debuggerSetup)
	}
	return env
}

// Launch implements backend.Connection. It blocks until the build exits.
//
// When req.Token fires, or ctx is done, the build's process group is
// interrupted and killed after the provider's cancel grace period. Such a
// run returns a *backend.LaunchError wrapping backend.ErrCancelled. A
// non-zero exit returns one wrapping backend.ErrBuildFailed.
func (c *Connection) Launch(ctx context.Context, req backend.LaunchRequest) error {
	if err := ctx.Err(); err != nil {
		return &backend.LaunchError{Tasks: req.TaskNames, ExitCode: -1, Err: fmt.Errorf("%w: %w", backend.ErrCancelled, err)}
	}
	if req.Token != nil && req.Token.IsCancellationRequested() {
		return &backend.LaunchError{Tasks: req.TaskNames, ExitCode: -1, Err: backend.ErrCancelled}
	}

	args := c.Args(req)
	cmd := exec.Command(c.tool, args...)
	cmd.Dir = c.projectPath
	cmd.Env = c.environ(req.DebuggerSetup)
	cmd.WaitDelay = c.provider.waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var pumps conc.WaitGroup
	pumps.Go(func() { pump(stdoutR, true, req.Output) })
	pumps.Go(func() { pump(stderrR, false, req.Output) })

	c.logger.Info("launching build", "tasks", req.TaskNames)
	c.logger.Debug("build command", "args", args)

	proc, err := c.provider.supervisor.Start(strings.Join(req.TaskNames, " "), cmd)
	if err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		pumps.Wait()
		return &backend.LaunchError{Tasks: req.TaskNames, ExitCode: -1, Err: err}
	}

	cancelled := c.watchCancellation(ctx, req.Token, proc)

	<-proc.Done()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	pumps.Wait()

	exit, _ := proc.Exit()
	select {
	case <-cancelled:
		c.logger.Info("build cancelled", "tasks", req.TaskNames, "runtime", exit.Runtime)
		cause := backend.ErrCancelled
		if ctx.Err() != nil {
			cause = fmt.Errorf("%w: %w", backend.ErrCancelled, ctx.Err())
		}
		return &backend.LaunchError{Tasks: req.TaskNames, ExitCode: exit.Code, Err: cause}
	default:
	}

	if !exit.Success() {
		cause := backend.ErrBuildFailed
		var exitErr *exec.ExitError
		if exit.Err != nil && !errors.As(exit.Err, &exitErr) {
			cause = fmt.Errorf("%w: %w", backend.ErrBuildFailed, exit.Err)
		}
		return &backend.LaunchError{Tasks: req.TaskNames, ExitCode: exit.Code, Err: cause}
	}
	c.logger.Info("build finished", "tasks", req.TaskNames, "runtime", exit.Runtime)
	return nil
}

// processHandle is the part of a supervised process cancellation needs.
type processHandle interface {
	Done() <-chan struct{}
	Interrupt() error
	Kill() error
}

// watchCancellation stops proc when token fires or ctx is done. The
// returned channel is closed once a stop was requested.
func (c *Connection) watchCancellation(ctx context.Context, token backend.CancellationToken, proc processHandle) <-chan struct{} {
	cancelled := make(chan struct{})

	var tokenDone <-chan struct{}
	if token != nil {
		tokenDone = token.Done()
	}

	exited := func() bool {
		select {
		case <-proc.Done():
			return true
		default:
			return false
		}
	}

	go func() {
		// A process that already exited is never reported as cancelled,
		// even when the token fired after it finished.
		if exited() {
			return
		}
		select {
		case <-proc.Done():
			return
		case <-tokenDone:
		case <-ctx.Done():
		}
		if exited() {
			return
		}
		close(cancelled)

		c.logger.Debug("interrupting build")
		if err := proc.Interrupt(); err != nil {
			c.logger.Debug("interrupt failed", "error", err)
		}

		timer := time.NewTimer(c.provider.cancelGrace)
		defer timer.Stop()
		select {
		case <-proc.Done():
		case <-timer.C:
			c.logger.Warn("build did not stop after interrupt, killing", "grace", c.provider.cancelGrace)
			_ = proc.Kill()
		}
	}()

	return cancelled
}

// pump forwards r to sink line by line and drains whatever is left, so the
// writer never blocks on an abandoned pipe.
func pump(r *io.PipeReader, stdout bool, sink backend.OutputSink) {
	defer func() {
		_, _ = io.Copy(io.Discard, r)
		_ = r.Close()
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if sink != nil {
			sink(scanner.Text(), stdout)
		}
	}
}
