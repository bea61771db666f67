package lua

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task/initscript"
)

// EnhanceFunc is the global function a contributor script must define:
//
//	function enhance(task_names, debugger_setup, emit) ... end
//
// task_names is an array of strings, debugger_setup is a string or nil,
// and emit(script) contributes one init script body.
const EnhanceFunc = "enhance"

// NamePrefix prefixes the names of Lua contributors.
const NamePrefix = "lua:"

// ContributorOption configures a Contributor.
type ContributorOption func(*contributorConfig)

type contributorConfig struct {
	logger  *logging.Logger
	timeout time.Duration
}

// WithLogger sets the logger contributors report script errors to.
func WithLogger(l *logging.Logger) ContributorOption {
	return func(c *contributorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds each script execution.
func WithTimeout(d time.Duration) ContributorOption {
	return func(c *contributorConfig) {
		c.timeout = d
	}
}

// Contributor is an init script contributor implemented by a Lua file.
type Contributor struct {
	name   string
	path   string
	state  *State
	logger *logging.Logger
}

var _ initscript.Contributor = (*Contributor)(nil)

// NewContributor loads the script at path. The script runs once at load
// time and must define EnhanceFunc.
func NewContributor(path string, opts ...ContributorOption) (*Contributor, error) {
	cfg := contributorConfig{
		logger:  logging.Nop(),
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	c := &Contributor{
		name:  NamePrefix + base,
		path:  path,
		state: NewState(WithExecutionTimeout(cfg.timeout)),
	}
	c.logger = cfg.logger.WithField("contributor", c.name)
	c.state.Sandbox().Preload("buildlink", c.module)

	if err := c.state.DoFile(path); err != nil {
		_ = c.state.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if !c.state.HasFunction(EnhanceFunc) {
		_ = c.state.Close()
		return nil, fmt.Errorf("load %s: %w", path, ErrNoEnhance)
	}
	return c, nil
}

// Name implements initscript.Contributor.
func (c *Contributor) Name() string { return c.name }

// Path returns the script path.
func (c *Contributor) Path() string { return c.path }

// Enhance implements initscript.Contributor. Script errors are logged;
// scripts emitted before the error are kept.
func (c *Contributor) Enhance(taskNames []string, debuggerSetup string, emit func(string)) {
	err := c.state.Exec(func(L *lua.LState) error {
		names := L.CreateTable(len(taskNames), 0)
		for _, n := range taskNames {
			names.Append(lua.LString(n))
		}

		var setup lua.LValue = lua.LNil
		if debuggerSetup != "" {
			setup = lua.LString(debuggerSetup)
		}

		emitFn := L.NewFunction(func(L *lua.LState) int {
			emit(L.CheckString(1))
			return 0
		})

		_, err := callGlobal(L, EnhanceFunc, names, setup, emitFn)
		return err
	})
	if err != nil {
		c.logger.Warn("contributor script failed", "path", c.path, "error", err)
	}
}

// Close releases the script's Lua state.
func (c *Contributor) Close() error {
	return c.state.Close()
}

// module is the loader for require("buildlink").
func (c *Contributor) module(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"groovy_string": func(L *lua.LState) int {
			L.Push(lua.LString(initscript.GroovyString(L.CheckString(1))))
			return 1
		},
		"log": func(L *lua.LState) int {
			c.logger.Info(L.CheckString(1), "path", c.path)
			return 0
		},
		"contains": func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			want := L.CheckString(2)
			found := false
			tbl.ForEach(func(_, v lua.LValue) {
				if s, ok := v.(lua.LString); ok && string(s) == want {
					found = true
				}
			})
			L.Push(lua.LBool(found))
			return 1
		},
	})
	L.SetField(mod, "name", lua.LString(c.name))
	L.Push(mod)
	return 1
}
