package initscript

import (
	"fmt"
	"strconv"
	"strings"
)

// Func adapts a function to the Contributor interface.
type Func struct {
	name string
	fn   func(taskNames []string, debuggerSetup string, emit func(string))
}

// NewFunc returns a named contributor backed by fn.
func NewFunc(name string, fn func(taskNames []string, debuggerSetup string, emit func(string))) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Contributor.
func (f *Func) Name() string { return f.name }

// Enhance implements Contributor.
func (f *Func) Enhance(taskNames []string, debuggerSetup string, emit func(string)) {
	if f.fn != nil {
		f.fn(taskNames, debuggerSetup, emit)
	}
}

// DebuggerContributor wires the debugger setup into every forked JVM task
// among the launched tasks.
type DebuggerContributor struct{}

// Name implements Contributor.
func (DebuggerContributor) Name() string { return "buildlink.debugger" }

// Enhance implements Contributor. It emits nothing when debuggerSetup is
// empty.
func (DebuggerContributor) Enhance(taskNames []string, debuggerSetup string, emit func(string)) {
	if strings.TrimSpace(debuggerSetup) == "" || len(taskNames) == 0 {
		return
	}

	quoted := make([]string, len(taskNames))
	for i, n := range taskNames {
		quoted[i] = GroovyString(n)
	}

	// Requested names may be short names ("test") or paths (":app:test").
	emit(fmt.Sprintf(`def buildlinkRequested = [%s]
gradle.taskGraph.beforeTask { Task task ->
  if (task instanceof JavaForkOptions &&
      (buildlinkRequested.contains(task.name) || buildlinkRequested.contains(task.path))) {
    task.jvmArgs %s
  }
}`, strings.Join(quoted, ", "), GroovyString(debuggerSetup)))
}

// TestLoggingContributor makes test tasks report events on the console so
// their results show up in the build output.
type TestLoggingContributor struct {
	// TestTask is the name of the test task. Empty means "test".
	TestTask string
}

// Name implements Contributor.
func (TestLoggingContributor) Name() string { return "buildlink.test-logging" }

// Enhance implements Contributor.
func (c TestLoggingContributor) Enhance(taskNames []string, _ string, emit func(string)) {
	testTask := c.TestTask
	if testTask == "" {
		testTask = "test"
	}
	for _, n := range taskNames {
		if IsTask(n, testTask) {
			emit(`allprojects {
  tasks.withType(Test).configureEach {
    testLogging { events "passed", "skipped", "failed" }
  }
}`)
			return
		}
	}
}

// IsTask reports whether requested names the task called name, either
// directly or as the last segment of a task path such as ":app:test".
func IsTask(requested, name string) bool {
	return requested == name || strings.HasSuffix(requested, ":"+name)
}

// GroovyString quotes s as a single-quoted Groovy string literal. Invalid
// UTF-8 is replaced with U+FFFD.
func GroovyString(s string) string {
	q := strconv.Quote(strings.ToValidUTF8(s, "\uFFFD"))
	q = strings.ReplaceAll(q[1:len(q)-1], `\"`, `"`)
	return "'" + strings.ReplaceAll(q, "'", `\'`) + "'"
}
