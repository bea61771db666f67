package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Functions removed from the base library: they load code from disk or
// from strings and bypass the sandbox.
var dangerousFuncs = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
}

// Modules require may load.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	preloaded map[string]bool
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:         L,
		preloaded: make(map[string]bool),
	}
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	for _, name := range dangerousFuncs {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// Preload makes a Go module available to require under name.
func (s *Sandbox) Preload(name string, loader lua.LGFunction) {
	s.preloaded[name] = true
	s.L.PreloadModule(name, loader)
}

// installSafeRequire clears the module search paths and replaces require
// with a version that only loads whitelisted and preloaded modules.
func (s *Sandbox) installSafeRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	originalRequire := s.L.GetGlobal("require")

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)
		if !safeModules[modName] && !s.preloaded[modName] {
			L.RaiseError("module %q is not available", modName)
			return 0
		}
		L.Push(originalRequire)
		L.Push(lua.LString(modName))
		L.Call(1, 1)
		return 1
	}))
}
