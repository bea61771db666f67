package backend

import (
	"sync"
	"sync/atomic"
)

// CancellationToken is the read side of a CancellationTokenSource. A
// connection binds a running build to a token and stops the build once
// Done is closed.
type CancellationToken interface {
	// Done is closed when cancellation has been requested.
	Done() <-chan struct{}

	// IsCancellationRequested reports whether Done is closed.
	IsCancellationRequested() bool
}

// CancellationTokenSource requests cancellation of the builds bound to its
// token. A source is scoped to exactly one execution.
type CancellationTokenSource struct {
	done      chan struct{}
	once      sync.Once
	requested atomic.Bool
}

// NewCancellationTokenSource creates a source whose token is not yet cancelled.
func NewCancellationTokenSource() *CancellationTokenSource {
	return &CancellationTokenSource{done: make(chan struct{})}
}

// Cancel requests cancellation. Safe to call any number of times.
func (s *CancellationTokenSource) Cancel() {
	s.once.Do(func() {
		s.requested.Store(true)
		close(s.done)
	})
}

// Token returns the token bound to this source.
func (s *CancellationTokenSource) Token() CancellationToken {
	return sourceToken{s}
}

type sourceToken struct {
	s *CancellationTokenSource
}

func (t sourceToken) Done() <-chan struct{} {
	return t.s.done
}

func (t sourceToken) IsCancellationRequested() bool {
	return t.s.requested.Load()
}
