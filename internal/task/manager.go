package task

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task/cancel"
	"github.com/dshills/buildlink/internal/task/hook"
	"github.com/dshills/buildlink/internal/task/initscript"
	"github.com/dshills/buildlink/internal/task/model"
)

// Test filter defaults.
const (
	TestTaskName     = "test"
	TestFilterOption = "--tests"
	TestFilterAll    = "*"
)

// Request validation errors.
var (
	ErrNilRequest = errors.New("nil task request")
	ErrNoTaskID   = errors.New("task request has no id")
	ErrNoTasks    = errors.New("task request has no task names")
)

// ChainSource supplies the contributor chain for one execution. The chain
// is read once per execution, so a source may change between executions.
type ChainSource interface {
	Chain() []initscript.Contributor
}

// StaticChain is a fixed contributor chain.
type StaticChain []initscript.Contributor

// Chain implements ChainSource.
func (c StaticChain) Chain() []initscript.Contributor { return c }

// JoinedChain concatenates the chains of several sources, in order.
type JoinedChain []ChainSource

// Chain implements ChainSource.
func (j JoinedChain) Chain() []initscript.Contributor {
	var out []initscript.Contributor
	for _, src := range j {
		if src != nil {
			out = append(out, src.Chain()...)
		}
	}
	return out
}

// Manager coordinates task executions. It is safe for concurrent use; each
// ExecuteTasks call is an independent execution.
type Manager struct {
	provider     backend.Provider
	registry     *cancel.Registry
	hooks        *hook.Chain
	contributors ChainSource
	threshold    backend.Version
	tempDir      string
	keepScripts  bool
	listener     Listener
	logger       *logging.Logger

	running atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the cancellation registry.
func WithRegistry(r *cancel.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithHooks sets the short-circuit hook chain.
func WithHooks(c *hook.Chain) Option {
	return func(m *Manager) {
		m.hooks = c
	}
}

// WithContributors sets the init script contributor source. The default
// is a chain holding only the debugger contributor.
func WithContributors(src ChainSource) Option {
	return func(m *Manager) {
		if src != nil {
			m.contributors = src
		}
	}
}

// WithThreshold sets the minimum backend version offered cancellation
// tokens.
func WithThreshold(v backend.Version) Option {
	return func(m *Manager) {
		m.threshold = v
	}
}

// WithTempDir sets the directory init scripts are written to.
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// WithKeepInitScripts leaves init scripts on disk after the launch.
func WithKeepInitScripts(keep bool) Option {
	return func(m *Manager) {
		m.keepScripts = keep
	}
}

// WithListener adds an event listener.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		if l == nil {
			return
		}
		if ls, ok := m.listener.(Listeners); ok {
			m.listener = append(ls, l)
			return
		}
		m.listener = Listeners{l}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager acquiring connections from provider.
func NewManager(provider backend.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:     provider,
		contributors: StaticChain{initscript.DebuggerContributor{}},
		threshold:    backend.MustParseVersion(cancel.DefaultThreshold),
		listener:     NopListener{},
		logger:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = cancel.NewRegistry(cancel.WithRegistryLogger(m.logger.WithComponent("cancel")))
	}
	return m
}

// Registry returns the cancellation registry.
func (m *Manager) Registry() *cancel.Registry {
	return m.registry
}

// Running returns the number of executions currently launched.
func (m *Manager) Running() int {
	return int(m.running.Load())
}

// NormalizeTestFilter returns params with a match-all test filter appended
// when taskNames includes the test task and params has no filter.
func NormalizeTestFilter(taskNames, params []string) []string {
	if !slices.Contains(taskNames, TestTaskName) || slices.Contains(params, TestFilterOption) {
		return params
	}
	return append(slices.Clip(params), TestFilterOption, TestFilterAll)
}

// ExecuteTasks runs req to completion. It blocks until the backend
// finishes, fails or acknowledges cancellation. Failures are returned as
// *ExecutionError.
//
// req.ScriptParameters receives the default test filter. The init script
// option is only added to the parameters of the launch itself.
func (m *Manager) ExecuteTasks(ctx context.Context, req *model.Request) error {
	if err := validate(req); err != nil {
		return err
	}
	req.ScriptParameters = NormalizeTestFilter(req.TaskNames, req.ScriptParameters)

	if handled, err := m.hooks.Execute(ctx, req); handled {
		m.logger.Debug("task execution handled by hook", "task_id", req.ID.String())
		if err != nil {
			return &ExecutionError{Kind: KindLaunch, TaskID: req.ID, Cause: err}
		}
		return nil
	}

	log := m.logger.WithField("task_id", req.ID.String())
	m.listener.OnStart(req.ID, req.ProjectPath)
	defer m.listener.OnEnd(req.ID)

	err := m.provider.WithConnection(ctx, req.ProjectPath, req.Settings, func(conn backend.Connection) error {
		return m.run(ctx, conn, req, log)
	})
	err = m.classify(req.ID, err)

	switch {
	case err == nil:
		log.Info("tasks completed", "tasks", req.TaskNames)
		m.listener.OnSuccess(req.ID)
	case IsCancelled(err):
		log.Info("tasks cancelled", "tasks", req.TaskNames)
		m.listener.OnCancel(req.ID)
	default:
		log.Warn("tasks failed", "tasks", req.TaskNames, "error", err)
		m.listener.OnFailure(req.ID, err)
	}
	return err
}

// run executes the steps that need a live connection.
func (m *Manager) run(ctx context.Context, conn backend.Connection, req *model.Request, log *logging.Logger) error {
	artifact, err := initscript.Build(req.TaskNames, req.DebuggerSetup, m.contributors.Chain(), m.tempDir, log)
	if err != nil {
		return &ExecutionError{Kind: KindSetup, TaskID: req.ID, Cause: err}
	}

	params := append([]string(nil), req.ScriptParameters...)
	if artifact != nil {
		log.Debug("init script written", "path", artifact.Path)
		params = initscript.AppendInitScript(params, artifact)
		if !m.keepScripts {
			defer func() {
				if err := artifact.Remove(); err != nil {
					log.Warn("failed to remove init script", "path", artifact.Path, "error", err)
				}
			}()
		}
	}

	handle := cancel.Negotiate(ctx, conn, m.threshold)
	if !handle.Supported() {
		log.Debug("backend does not support cancellation")
	}

	m.registry.Register(req.ID, handle)
	m.running.Add(1)
	defer func() {
		m.running.Add(-1)
		m.registry.Remove(req.ID)
	}()

	id := req.ID
	launch := backend.LaunchRequest{
		TaskNames:        append([]string(nil), req.TaskNames...),
		VMOptions:        append([]string(nil), req.VMOptions...),
		ScriptParameters: params,
		DebuggerSetup:    req.DebuggerSetup,
		Token:            handle.Token(),
		Output: func(text string, stdout bool) {
			m.listener.OnOutput(id, text, stdout)
		},
	}
	if err := conn.Launch(ctx, launch); err != nil {
		return &ExecutionError{Kind: KindLaunch, TaskID: req.ID, Cause: err}
	}
	return nil
}

// CancelTask requests cancellation of the execution id. Hooks are offered
// the id first. Otherwise the request is acknowledged whether or not id is
// currently running.
func (m *Manager) CancelTask(id model.ID) bool {
	if handled, ack := m.hooks.Cancel(id); handled {
		m.logger.Debug("task cancellation handled by hook", "task_id", id.String(), "acknowledged", ack)
		return ack
	}
	return m.registry.Cancel(id)
}

// CancelAll cancels every registered execution and returns the number of
// handles that accepted the request.
func (m *Manager) CancelAll() int {
	return m.registry.CancelAll()
}

func (m *Manager) classify(id model.ID, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Kind: KindConnection, TaskID: id, Cause: err}
}

func validate(req *model.Request) error {
	switch {
	case req == nil:
		return ErrNilRequest
	case req.ID.IsZero():
		return ErrNoTaskID
	case len(req.TaskNames) == 0:
		return ErrNoTasks
	}
	return nil
}
