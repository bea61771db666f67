package cancel

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task/model"
)

// DefaultShards is the number of lock shards used by NewRegistry.
const DefaultShards = 32

// Registry maps running task ids to their cancellation handles.
//
// Keys are spread over independently locked shards so unrelated executions
// do not contend on a single mutex. Operations on the same id are
// serialized by that id's shard.
type Registry struct {
	shards []shard
	misses atomic.Uint64
	logger *logging.Logger
}

type shard struct {
	mu      sync.Mutex
	handles map[model.ID]Handle
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithShards sets the shard count. Values below 1 are ignored.
func WithShards(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.shards = make([]shard, n)
		}
	}
}

// WithRegistryLogger sets the logger used for diagnostics.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		shards: make([]shard, DefaultShards),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].handles = make(map[model.ID]Handle)
	}
	return r
}

func (r *Registry) shardFor(id model.ID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return &r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Register binds id to h, replacing any previous handle for id.
func (r *Registry) Register(id model.ID, h Handle) {
	s := r.shardFor(id)
	s.mu.Lock()
	_, replaced := s.handles[id]
	s.handles[id] = h
	s.mu.Unlock()

	if replaced {
		r.logger.Warn("cancellation handle replaced", "task_id", id.String())
	}
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id model.ID) {
	s := r.shardFor(id)
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// Lookup returns the handle registered for id.
func (r *Registry) Lookup(id model.ID) (Handle, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// Cancel invokes Cancel on the handle registered for id.
//
// It returns true whether or not id is registered: a task that already
// finished, or has not registered yet, has nothing to cancel. Misses are
// counted (see Misses) and logged at debug level.
func (r *Registry) Cancel(id model.ID) bool {
	h, ok := r.Lookup(id)
	if !ok {
		r.misses.Add(1)
		r.logger.Debug("cancel for untracked task", "task_id", id.String())
		return true
	}

	// Called outside the shard lock; handles may signal another process.
	if !h.Cancel() {
		r.logger.Debug("backend does not support cancellation", "task_id", id.String())
	}
	return true
}

// CancelAll cancels every registered handle and returns how many were
// cancelled. Entries stay registered; their owners remove them.
func (r *Registry) CancelAll() int {
	var handles []Handle
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, h := range s.handles {
			handles = append(handles, h)
		}
		s.mu.Unlock()
	}

	n := 0
	for _, h := range handles {
		if h.Cancel() {
			n++
		}
	}
	return n
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.handles)
		s.mu.Unlock()
	}
	return n
}

// IDs returns the registered ids in no particular order.
func (r *Registry) IDs() []model.ID {
	var ids []model.ID
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id := range s.handles {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	return ids
}

// Misses returns how many Cancel calls found no registered handle.
func (r *Registry) Misses() uint64 {
	return r.misses.Load()
}
