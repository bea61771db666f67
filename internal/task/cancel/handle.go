package cancel

import "github.com/dshills/buildlink/internal/backend"

// Handle is the registry value for one running execution.
type Handle interface {
	// Cancel requests cancellation. It reports whether the request was
	// forwarded to the backend. Safe to call more than once.
	Cancel() bool

	// Token returns the token to bind to the launch, or nil when the
	// backend cannot be cancelled.
	Token() backend.CancellationToken

	// Supported reports whether Cancel reaches the backend.
	Supported() bool
}

// Cancellable wraps a backend cancellation token source.
type Cancellable struct {
	src *backend.CancellationTokenSource
}

// NewCancellable returns a handle over src.
func NewCancellable(src *backend.CancellationTokenSource) *Cancellable {
	return &Cancellable{src: src}
}

// Cancel implements Handle.
func (c *Cancellable) Cancel() bool {
	c.src.Cancel()
	return true
}

// Token implements Handle.
func (c *Cancellable) Token() backend.CancellationToken {
	return c.src.Token()
}

// Supported implements Handle.
func (c *Cancellable) Supported() bool { return true }

// Unsupported is the handle used for backends that predate native
// cancellation. Cancel requests are dropped.
type Unsupported struct{}

// Cancel implements Handle. It always returns false.
func (Unsupported) Cancel() bool { return false }

// Token implements Handle. It always returns nil.
func (Unsupported) Token() backend.CancellationToken { return nil }

// Supported implements Handle.
func (Unsupported) Supported() bool { return false }
