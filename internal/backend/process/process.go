package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"
)

// Exit describes how a build process ended.
type Exit struct {
	// Code is the exit status, or -1 when the process was killed by a
	// signal or never reported one.
	Code int

	// Signaled is true when a signal ended the process.
	Signaled bool

	// Err is the error returned by waiting on the process. Non-zero exits
	// report an *exec.ExitError here.
	Err error

	// Runtime is the time from start to exit.
	Runtime time.Duration
}

// Success reports whether the process exited with status 0.
func (e Exit) Success() bool {
	return e.Err == nil && e.Code == 0
}

// Process is one supervised build tool invocation.
//
// On unix the process leads its own process group, so Interrupt, Terminate
// and Kill reach the build tool together with every worker and test JVM it
// forked.
type Process struct {
	// ID identifies the process within its supervisor.
	ID string

	// Label describes the invocation in logs (usually the task names).
	Label string

	// Cmd is the command. Its standard streams belong to the caller.
	Cmd *exec.Cmd

	started time.Time
	running atomic.Bool
	exit    atomic.Pointer[Exit]
	done    chan struct{}
}

func newProcess(id, label string, cmd *exec.Cmd) *Process {
	return &Process{
		ID:    id,
		Label: label,
		Cmd:   cmd,
		done:  make(chan struct{}),
	}
}

// Started returns when the process was started.
func (p *Process) Started() time.Time { return p.started }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Running reports whether the process has started and not yet exited.
func (p *Process) Running() bool { return p.running.Load() }

// Exit returns the exit record, or false while the process runs.
func (p *Process) Exit() (Exit, bool) {
	e := p.exit.Load()
	if e == nil {
		return Exit{Code: -1}, false
	}
	return *e, true
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-p.done:
		e, _ := p.Exit()
		return e, nil
	case <-ctx.Done():
		return Exit{Code: -1}, ctx.Err()
	}
}

// PID returns the process id, or -1 before the process started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Runtime returns how long the process has run, or ran if it exited.
func (p *Process) Runtime() time.Duration {
	if e, ok := p.Exit(); ok {
		return e.Runtime
	}
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Interrupt asks the build to stop, as Ctrl-C in a terminal would.
func (p *Process) Interrupt() error { return p.signal(sigInterrupt) }

// Terminate sends a termination request.
func (p *Process) Terminate() error { return p.signal(sigTerminate) }

// Kill stops the build immediately.
func (p *Process) Kill() error { return p.signal(sigKill) }

func (p *Process) signal(sig groupSignal) error {
	if !p.Running() {
		return ErrProcessNotRunning
	}
	return signalGroup(p.Cmd.Process, sig)
}

// start launches the command in a new process group.
func (p *Process) start() error {
	if p.Cmd.Process != nil || !p.started.IsZero() {
		return ErrProcessAlreadyStarted
	}

	setProcessGroup(p.Cmd)
	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Label, err)
	}
	p.started = time.Now()
	p.running.Store(true)

	go p.wait()
	return nil
}

// wait reaps the process and publishes its exit record.
func (p *Process) wait() {
	err := p.Cmd.Wait()

	e := Exit{Code: -1, Err: err, Runtime: time.Since(p.started)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		e.Code = 0
	case errors.As(err, &exitErr):
		e.Code = exitErr.ExitCode()
		e.Signaled = wasSignaled(exitErr.ProcessState)
	case p.Cmd.ProcessState != nil:
		// Wait failed copying output after the process itself exited.
		e.Code = p.Cmd.ProcessState.ExitCode()
		e.Signaled = wasSignaled(p.Cmd.ProcessState)
	}

	p.exit.Store(&e)
	p.running.Store(false)
	close(p.done)
}

var (
	// ErrProcessNotRunning is returned when signalling a process that has
	// not started or has already exited.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrProcessAlreadyStarted is returned when starting a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")
)
