// Package cancel tracks cancellation handles for running task executions.
//
// # Registry
//
// The Registry maps a task id to the Handle of the execution currently
// running under that id. The coordinator that registers an id is the only
// party that removes it; cancellers only look ids up:
//
//	reg := cancel.NewRegistry()
//
//	h := cancel.Negotiate(ctx, conn, threshold)
//	reg.Register(id, h)
//	defer reg.Remove(id)
//
//	// elsewhere, concurrently
//	reg.Cancel(id) // always true
//
// # Capability
//
// Backends older than DefaultThreshold have no native cancellation. For
// them Negotiate returns Unsupported, whose Cancel is a no-op, so the
// registry always holds the same value type. Supports is the pure
// version decision and can be tested on its own.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Ids are spread over independently
// locked shards.
package cancel
