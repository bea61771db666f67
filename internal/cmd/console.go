package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/dshills/buildlink/internal/task"
	"github.com/dshills/buildlink/internal/task/model"
)

// console prints build output and execution status. Output lines go to
// out or errOut by stream; status lines go to errOut.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

var _ task.Listener = (*console)(nil)

func newConsole(out, errOut io.Writer) *console {
	return &console{out: out, errOut: errOut}
}

func (c *console) OnStart(id model.ID, projectPath string) {
	c.status("running in %s (%s)", projectPath, id)
}

func (c *console) OnOutput(_ model.ID, text string, stdout bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stdout {
		fmt.Fprintln(c.out, text)
	} else {
		fmt.Fprintln(c.errOut, text)
	}
}

func (c *console) OnSuccess(model.ID) { c.status("tasks completed") }

func (c *console) OnFailure(_ model.ID, err error) { c.status("tasks failed: %v", err) }

func (c *console) OnCancel(model.ID) { c.status("tasks cancelled") }

func (c *console) OnEnd(model.ID) {}

func (c *console) status(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, "buildlink: "+format+"\n", args...)
}
