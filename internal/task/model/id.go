package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies what an execution does.
type Kind string

const (
	// KindExecute identifies a task execution.
	KindExecute Kind = "execute"
	// KindResolve identifies a project model resolution.
	KindResolve Kind = "resolve"
	// KindRefresh identifies a task list refresh.
	KindRefresh Kind = "refresh"
)

// ID identifies one execution request. IDs are comparable values and can be
// used directly as map keys; two IDs are equal when all fields are equal.
type ID struct {
	Kind    Kind
	Project string
	Seq     uuid.UUID
}

// NewID returns a fresh ID for project.
func NewID(kind Kind, project string) ID {
	return ID{Kind: kind, Project: project, Seq: uuid.New()}
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String formats the id as "<kind>:<uuid>@<project>".
func (id ID) String() string {
	return fmt.Sprintf("%s:%s@%s", id.Kind, id.Seq, id.Project)
}

// ParseID parses the format produced by String.
func ParseID(s string) (ID, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || kind == "" {
		return ID{}, fmt.Errorf("parse task id %q: missing kind", s)
	}
	seq, project, ok := strings.Cut(rest, "@")
	if !ok {
		return ID{}, fmt.Errorf("parse task id %q: missing project", s)
	}
	u, err := uuid.Parse(seq)
	if err != nil {
		return ID{}, fmt.Errorf("parse task id %q: %w", s, err)
	}
	return ID{Kind: Kind(kind), Project: project, Seq: u}, nil
}
