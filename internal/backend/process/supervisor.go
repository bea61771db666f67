package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/buildlink/internal/logging"
)

// Supervisor starts build processes and guarantees none outlives
// Shutdown. It is safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	procs   map[string]*Process
	closing bool

	closed  chan struct{}
	reapers sync.WaitGroup

	limit  int
	onExit func(*Process)
	logger *logging.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLimit caps the number of builds running at once. Zero means no
// limit.
func WithLimit(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.limit = n
	}
}

// OnExit registers fn to run after each process exits. A panic in fn is
// logged and does not affect the supervisor.
func OnExit(fn func(*Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// WithLogger sets the supervisor logger.
func WithLogger(l *logging.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		procs:  make(map[string]*Process),
		closed: make(chan struct{}),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts cmd under a fresh id. The caller wires the command's
// standard streams first.
func (s *Supervisor) Start(label string, cmd *exec.Cmd) (*Process, error) {
	return s.StartWithID(uuid.NewString(), label, cmd)
}

// StartWithID starts cmd under id, which must not be in use.
func (s *Supervisor) StartWithID(id, label string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closing:
		return nil, ErrSupervisorShutdown
	case s.limit > 0 && len(s.procs) >= s.limit:
		return nil, fmt.Errorf("%w: %d", ErrProcessLimit, s.limit)
	}
	if _, dup := s.procs[id]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	proc := newProcess(id, label, cmd)
	if err := proc.start(); err != nil {
		return nil, err
	}
	s.procs[id] = proc
	s.logger.Debug("process started", "id", id, "label", label, "pid", proc.PID())

	s.reapers.Add(1)
	go s.reap(proc)

	return proc, nil
}

// reap forgets proc once it exits.
func (s *Supervisor) reap(proc *Process) {
	defer s.reapers.Done()
	<-proc.Done()

	e, _ := proc.Exit()
	s.logger.Debug("process exited",
		"id", proc.ID,
		"label", proc.Label,
		"code", e.Code,
		"signaled", e.Signaled,
		"runtime", e.Runtime)

	if s.onExit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("process exit callback panicked", "id", proc.ID, "panic", r)
				}
			}()
			s.onExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.procs, proc.ID)
	s.mu.Unlock()
}

// Lookup returns the running process with id.
func (s *Supervisor) Lookup(id string) (*Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[id]
	return p, ok
}

// Processes returns the tracked processes, oldest first.
func (s *Supervisor) Processes() []*Process {
	s.mu.Lock()
	procs := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	sort.Slice(procs, func(i, j int) bool {
		return procs[i].Started().Before(procs[j].Started())
	})
	return procs
}

// Len returns the number of tracked processes.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Interrupt interrupts the process with id.
func (s *Supervisor) Interrupt(id string) error {
	return s.signal(id, (*Process).Interrupt)
}

// Kill kills the process with id.
func (s *Supervisor) Kill(id string) error {
	return s.signal(id, (*Process).Kill)
}

func (s *Supervisor) signal(id string, send func(*Process) error) error {
	p, ok := s.Lookup(id)
	if !ok {
		return ErrProcessNotFound
	}
	if err := send(p); err != nil && !errors.Is(err, ErrProcessNotRunning) {
		return err
	}
	return nil
}

// Shutdown refuses new processes, asks every running build to terminate
// and kills the ones still running after grace. It returns once every
// process has exited and been forgotten. Later calls do nothing.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	close(s.closed)
	s.mu.Unlock()

	procs := s.Processes()
	for _, p := range procs {
		_ = p.Terminate()
	}

	exited := make(chan struct{})
	go func() {
		s.reapers.Wait()
		close(exited)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
	}

	for _, p := range procs {
		if p.Running() {
			s.logger.Warn("killing process after shutdown grace", "id", p.ID, "label", p.Label, "grace", grace)
			_ = p.Kill()
		}
	}
	<-exited
}

// Closed is closed when Shutdown begins.
func (s *Supervisor) Closed() <-chan struct{} {
	return s.closed
}

var (
	// ErrProcessNotFound is returned for an id the supervisor does not
	// track.
	ErrProcessNotFound = errors.New("process not found")

	// ErrSupervisorShutdown is returned by Start after Shutdown.
	ErrSupervisorShutdown = errors.New("supervisor is shut down")

	// ErrProcessLimit is returned when the running limit is reached.
	ErrProcessLimit = errors.New("process limit reached")

	// ErrDuplicateID is returned by StartWithID for an id in use.
	ErrDuplicateID = errors.New("process id already in use")
)
