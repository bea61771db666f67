package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	backendcli "github.com/dshills/buildlink/internal/backend/cli"
	"github.com/dshills/buildlink/internal/plugin/lua"
	"github.com/dshills/buildlink/internal/task"
	"github.com/dshills/buildlink/internal/task/hook"
	"github.com/dshills/buildlink/internal/task/initscript"
	"github.com/dshills/buildlink/internal/task/model"
)

// SkipHookPriority is the priority of the hooks.skip handler.
const SkipHookPriority = 50

type runOptions struct {
	project       string
	vmOptions     []string
	debuggerSetup string
	offline       bool
	keepScripts   bool
	noPlugins     bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] <task>... [-- <build arguments>...]",
		Short: "Run build tasks",
		Long: `Run build tasks in a project.

Arguments after "--" are passed to the build tool. Interrupt once to cancel
the build cooperatively; interrupt again to stop waiting for it.`,
		Example: `  buildlink run build
  buildlink run -p ./app test -- --tests 'com.example.*'
  buildlink run --debugger-setup '-agentlib:jdwp=transport=dt_socket,server=y,suspend=y,address=5005' :app:test`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, params := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				tasks, params = args[:dash], args[dash:]
			}
			if len(tasks) == 0 {
				return errors.New("no tasks given")
			}
			return a.runTasks(cmd.Context(), opts, tasks, params)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.project, "project", "p", ".", "project directory")
	flags.StringArrayVar(&opts.vmOptions, "vm-option", nil, "JVM option for the build (repeatable)")
	flags.StringVar(&opts.debuggerSetup, "debugger-setup", "", "debugger JVM arguments injected into forked test JVMs")
	flags.BoolVar(&opts.offline, "offline", false, "run the build offline")
	flags.BoolVar(&opts.keepScripts, "keep-init-scripts", false, "leave generated init scripts on disk")
	flags.BoolVar(&opts.noPlugins, "no-plugins", false, "do not load Lua contributors")

	return cmd
}

func (a *app) runTasks(ctx context.Context, opts runOptions, tasks, params []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.cfg

	project, err := filepath.Abs(opts.project)
	if err != nil {
		return err
	}

	settings := cfg.Backend.Clone()
	if opts.offline {
		settings.Offline = true
	}

	provider := backendcli.NewProvider(
		backendcli.WithLogger(a.logger.WithComponent("backend")),
		backendcli.WithCancelGrace(cfg.Cancellation.CancelGrace()),
		backendcli.WithVersionTimeout(cfg.Cancellation.VersionTimeout()),
		backendcli.WithDefaults(settings),
	)
	defer provider.Close(cfg.Cancellation.CancelGrace())

	hooks, err := a.hooks()
	if err != nil {
		return err
	}

	plugins, err := a.plugins(opts.noPlugins)
	if err != nil {
		return err
	}
	defer plugins.Close()

	threshold, err := cfg.Cancellation.ThresholdVersion()
	if err != nil {
		return err
	}

	mgr := task.NewManager(provider,
		task.WithLogger(a.logger),
		task.WithHooks(hooks),
		task.WithContributors(task.JoinedChain{a.builtins(), plugins}),
		task.WithThreshold(threshold),
		task.WithTempDir(cfg.InitScripts.TempDir),
		task.WithKeepInitScripts(cfg.InitScripts.Keep || opts.keepScripts),
		task.WithListener(newConsole(a.stdout, a.stderr)),
	)

	req := &model.Request{
		ID:               model.NewID(model.KindExecute, project),
		TaskNames:        tasks,
		ProjectPath:      project,
		Settings:         settings,
		VMOptions:        opts.vmOptions,
		ScriptParameters: params,
		DebuggerSetup:    opts.debuggerSetup,
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	defer cancelCtx()

	done := make(chan struct{})
	defer close(done)
	go a.handleSignals(mgr, req.ID, cancelCtx, done)

	err = mgr.ExecuteTasks(ctx, req)
	switch {
	case err == nil:
		return nil
	case task.IsCancelled(err):
		return &ExitError{Code: ExitCancelled, Err: err}
	default:
		return &ExitError{Code: ExitFailure, Err: err}
	}
}

// handleSignals cancels the execution on the first interrupt and abandons
// it on the second.
func (a *app) handleSignals(mgr *task.Manager, id model.ID, abandon context.CancelFunc, done <-chan struct{}) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		ack := mgr.CancelTask(id)
		a.logger.Info("cancellation requested", "signal", sig.String(), "task_id", id.String(), "acknowledged", ack)
		fmt.Fprintln(a.stderr, "buildlink: cancelling build (interrupt again to stop waiting)")
	case <-done:
		return
	}

	select {
	case <-sigs:
		abandon()
	case <-done:
	}
}

// hooks builds the hook chain from the configuration.
func (a *app) hooks() (*hook.Chain, error) {
	chain := hook.NewChain()
	if len(a.cfg.Hooks.Skip) == 0 {
		return chain, nil
	}

	skip := &hook.Funcs{
		HandlerName:     "buildlink.skip",
		HandlerPriority: SkipHookPriority,
		Execute: func(_ context.Context, req *model.Request) (bool, error) {
			fmt.Fprintf(a.stderr, "buildlink: skipped %v (hooks.skip)\n", req.TaskNames)
			return true, nil
		},
	}
	matched, err := hook.NewGlobHandler(skip, a.cfg.Hooks.Skip...)
	if err != nil {
		return nil, err
	}
	chain.Register(matched)
	return chain, nil
}

// builtins returns the built-in contributors enabled by the configuration.
func (a *app) builtins() task.StaticChain {
	chain := task.StaticChain{initscript.DebuggerContributor{}}
	if a.cfg.InitScripts.TestLogging {
		chain = append(chain, initscript.TestLoggingContributor{TestTask: task.TestTaskName})
	}
	return chain
}

// pluginSource is a contributor source that holds resources.
type pluginSource interface {
	task.ChainSource
	io.Closer
}

// plugins loads the Lua contributors from the configured directory.
func (a *app) plugins(disabled bool) (pluginSource, error) {
	dir := a.cfg.Plugins.Dir
	if disabled || dir == "" {
		return lua.Set(nil), nil
	}

	if a.cfg.Plugins.Watch {
		w, err := lua.NewWatcher(dir,
			lua.WithWatcherLogger(a.logger),
			lua.WithContributorOptions(lua.WithTimeout(a.cfg.Plugins.Timeout())),
		)
		if err != nil {
			return nil, fmt.Errorf("watch plugins: %w", err)
		}
		return w, nil
	}

	log := a.logger.WithComponent("plugins")
	loaded, err := lua.LoadDir(dir, lua.WithLogger(log), lua.WithTimeout(a.cfg.Plugins.Timeout()))
	if err != nil {
		log.Warn("plugin load failed", "dir", dir, "error", err)
	}
	return lua.Set(loaded), nil
}
