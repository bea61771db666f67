package task

import "github.com/dshills/buildlink/internal/task/model"

// Listener receives execution events. Methods may be called from the
// backend's output goroutines and must not block.
type Listener interface {
	// OnStart is called before the connection is acquired.
	OnStart(id model.ID, projectPath string)

	// OnOutput is called for each line of build output.
	OnOutput(id model.ID, text string, stdout bool)

	// OnSuccess is called when the launch completes without error.
	OnSuccess(id model.ID)

	// OnFailure is called when the execution fails for any reason other
	// than cancellation.
	OnFailure(id model.ID, err error)

	// OnCancel is called when the backend reports the launch cancelled.
	OnCancel(id model.ID)

	// OnEnd is always called last.
	OnEnd(id model.ID)
}

// NopListener ignores all events. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnStart(model.ID, string)        {}
func (NopListener) OnOutput(model.ID, string, bool) {}
func (NopListener) OnSuccess(model.ID)              {}
func (NopListener) OnFailure(model.ID, error)       {}
func (NopListener) OnCancel(model.ID)               {}
func (NopListener) OnEnd(model.ID)                  {}

// Listeners fans events out to each listener in order.
type Listeners []Listener

func (ls Listeners) OnStart(id model.ID, projectPath string) {
	for _, l := range ls {
		l.OnStart(id, projectPath)
	}
}

func (ls Listeners) OnOutput(id model.ID, text string, stdout bool) {
	for _, l := range ls {
		l.OnOutput(id, text, stdout)
	}
}

func (ls Listeners) OnSuccess(id model.ID) {
	for _, l := range ls {
		l.OnSuccess(id)
	}
}

func (ls Listeners) OnFailure(id model.ID, err error) {
	for _, l := range ls {
		l.OnFailure(id, err)
	}
}

func (ls Listeners) OnCancel(id model.ID) {
	for _, l := range ls {
		l.OnCancel(id)
	}
}

func (ls Listeners) OnEnd(id model.ID) {
	for _, l := range ls {
		l.OnEnd(id)
	}
}
