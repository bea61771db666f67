package cancel

import (
	"context"

	"github.com/dshills/buildlink/internal/backend"
)

// DefaultThreshold is the first backend version that accepts native
// cancellation tokens.
const DefaultThreshold = "2.1"

var defaultThreshold = backend.MustParseVersion(DefaultThreshold)

// Supports reports whether a backend at version v accepts cancellation
// tokens. An unknown version is treated as unsupported. A zero threshold
// means DefaultThreshold.
func Supports(v backend.Version, known bool, threshold backend.Version) bool {
	if !known || v.IsZero() {
		return false
	}
	if threshold.IsZero() {
		threshold = defaultThreshold
	}
	return !v.Less(threshold)
}

// Negotiate returns the handle appropriate for conn: a Cancellable over a
// fresh token source when the backend supports cancellation, otherwise
// Unsupported.
func Negotiate(ctx context.Context, conn backend.Connection, threshold backend.Version) Handle {
	v, known := conn.Version(ctx)
	if !Supports(v, known, threshold) {
		return Unsupported{}
	}
	return NewCancellable(backend.NewCancellationTokenSource())
}
