package hook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/buildlink/internal/task/model"
)

// Chain holds handlers ordered by priority, highest first. Handlers with
// equal priority keep registration order. Chain is safe for concurrent use.
type Chain struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewChain creates a chain holding handlers.
func NewChain(handlers ...Handler) *Chain {
	c := &Chain{}
	for _, h := range handlers {
		c.Register(h)
	}
	return c
}

// Register adds h. A handler with the same name is replaced in place.
func (c *Chain) Register(h Handler) {
	if c == nil || h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.handlers {
		if existing.Name() == h.Name() {
			c.handlers[i] = h
			c.sortLocked()
			return
		}
	}

	c.handlers = append(c.handlers, h)
	c.sortLocked()
}

// Unregister removes the handler called name.
func (c *Chain) Unregister(name string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, h := range c.handlers {
		if h.Name() == name {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns handler names in run order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		names[i] = h.Name()
	}
	return names
}

// Len returns the number of registered handlers.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Execute offers req to each handler in order and stops at the first one
// that handles it. The returned error belongs to that handler.
func (c *Chain) Execute(ctx context.Context, req *model.Request) (bool, error) {
	for _, h := range c.snapshot() {
		handled, err := h.TryExecute(ctx, req)
		if handled {
			if err != nil {
				return true, fmt.Errorf("hook %s: %w", h.Name(), err)
			}
			return true, nil
		}
	}
	return false, nil
}

// Cancel offers id to each handler in order and stops at the first one
// that handles it.
func (c *Chain) Cancel(id model.ID) (handled bool, acknowledged bool) {
	for _, h := range c.snapshot() {
		if handled, ack := h.TryCancel(id); handled {
			return true, ack
		}
	}
	return false, false
}

func (c *Chain) snapshot() []Handler {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	hs := make([]Handler, len(c.handlers))
	copy(hs, c.handlers)
	return hs
}

func (c *Chain) sortLocked() {
	sort.SliceStable(c.handlers, func(i, j int) bool {
		return c.handlers[i].Priority() > c.handlers[j].Priority()
	})
}
