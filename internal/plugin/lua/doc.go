// Package lua loads init script contributors written in Lua.
//
// A contributor script defines one global function:
//
//	local buildlink = require("buildlink")
//
//	function enhance(task_names, debugger_setup, emit)
//	  if buildlink.contains(task_names, "test") then
//	    emit("allprojects { tasks.withType(Test).configureEach { maxParallelForks = 2 } }")
//	  end
//	end
//
// enhance runs once per task execution. Every call to emit contributes one
// init script body, in call order. If the script raises an error, bodies
// emitted before the error are kept and the error is logged.
//
// # Sandbox
//
// Scripts run in a gopher-lua state with only the base, package, string,
// table and math libraries. dofile, loadfile, load and loadstring are
// removed, and require loads only the standard modules above plus the
// "buildlink" helper module:
//
//   - groovy_string(s) quotes s as a Groovy string literal
//   - contains(list, s) reports whether the array list holds s
//   - log(msg) writes msg to the buildlink log
//   - name is the contributor name ("lua:" + file base name)
//
// Each call is bounded by an execution timeout.
//
// # Loading
//
// LoadDir loads every *.lua file of a directory in lexical order. Watcher
// keeps a directory loaded and reloads it when a script is created,
// written, renamed or removed; its Chain method feeds the task manager.
package lua
