package hook

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/dshills/buildlink/internal/task/model"
)

// GlobHandler restricts a Handler to requests whose task names match one
// of a set of glob patterns (for example ":app:*" or "*Test"). Task paths
// use ':' as the separator.
type GlobHandler struct {
	inner    Handler
	patterns []string
	globs    []glob.Glob
}

// NewGlobHandler wraps inner so it only sees matching requests.
func NewGlobHandler(inner Handler, patterns ...string) (*GlobHandler, error) {
	g := &GlobHandler{inner: inner, patterns: patterns}
	for _, p := range patterns {
		compiled, err := glob.Compile(p, ':')
		if err != nil {
			return nil, fmt.Errorf("compile task pattern %q: %w", p, err)
		}
		g.globs = append(g.globs, compiled)
	}
	return g, nil
}

// Name implements Handler.
func (g *GlobHandler) Name() string { return g.inner.Name() }

// Priority implements Handler.
func (g *GlobHandler) Priority() int { return g.inner.Priority() }

// Patterns returns the patterns g was built with.
func (g *GlobHandler) Patterns() []string { return g.patterns }

// Matches reports whether any of taskNames matches a pattern.
func (g *GlobHandler) Matches(taskNames []string) bool {
	for _, name := range taskNames {
		for _, gl := range g.globs {
			if gl.Match(name) {
				return true
			}
		}
	}
	return false
}

// TryExecute implements Handler. Requests without a matching task are
// declined.
func (g *GlobHandler) TryExecute(ctx context.Context, req *model.Request) (bool, error) {
	if !g.Matches(req.TaskNames) {
		return false, nil
	}
	return g.inner.TryExecute(ctx, req)
}

// TryCancel implements Handler. Cancellation carries no task names, so it
// is always forwarded.
func (g *GlobHandler) TryCancel(id model.ID) (bool, bool) {
	return g.inner.TryCancel(id)
}
