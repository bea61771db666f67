// Package hook provides the short-circuit hook chain consulted before the
// coordinator runs or cancels a task.
//
// A Handler may take over a request entirely, for environments that run
// tasks through another mechanism. The first handler that reports the
// request as handled wins; the coordinator then does nothing else.
//
// Standard priorities:
//
//	1000+   = system hooks
//	500-999 = framework hooks
//	100-499 = plugin hooks
//	0-99    = user hooks
package hook

import (
	"context"

	"github.com/dshills/buildlink/internal/task/model"
)

// Handler can short-circuit task execution and cancellation.
type Handler interface {
	// Name returns a unique identifier for this handler.
	Name() string

	// Priority returns the handler priority. Higher values run first.
	Priority() int

	// TryExecute reports whether the handler fully handled req. A handled
	// request may still fail, in which case err is non-nil.
	TryExecute(ctx context.Context, req *model.Request) (handled bool, err error)

	// TryCancel reports whether the handler handled the cancellation of
	// id, and if so whether the cancellation was acknowledged.
	TryCancel(id model.ID) (handled bool, acknowledged bool)
}

// Funcs builds a Handler from functions. Nil functions never handle.
type Funcs struct {
	HandlerName     string
	HandlerPriority int
	Execute         func(ctx context.Context, req *model.Request) (bool, error)
	Cancel          func(id model.ID) (bool, bool)
}

// Name implements Handler.
func (f *Funcs) Name() string { return f.HandlerName }

// Priority implements Handler.
func (f *Funcs) Priority() int { return f.HandlerPriority }

// TryExecute implements Handler.
func (f *Funcs) TryExecute(ctx context.Context, req *model.Request) (bool, error) {
	if f.Execute == nil {
		return false, nil
	}
	return f.Execute(ctx, req)
}

// TryCancel implements Handler.
func (f *Funcs) TryCancel(id model.ID) (bool, bool) {
	if f.Cancel == nil {
		return false, false
	}
	return f.Cancel(id)
}
