package graph

import (
	"strings"

	"github.com/rendis/flowgen/pkg/schema"
)

// Registry is the ordered list of shared variable names visible to every
// diagram of a project. Diagrams hold it by reference, so a change is seen
// by all of them before their next validation or emission.
type Registry struct {
	names []string
	max   int
}

// NewRegistry creates an empty registry bounded to limit names (<= 0 means
// DefaultMaxVariables).
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultMaxVariables
	}
	return &Registry{max: limit}
}

// List returns a copy of the names in insertion order.
func (r *Registry) List() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of names.
func (r *Registry) Len() int { return len(r.names) }

// Contains reports whether name is registered (case-sensitive).
func (r *Registry) Contains(name string) bool {
	return r.index(name) >= 0
}

// Add appends a name.
func (r *Registry) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.NewError(schema.ErrCodeInvalidName, "variable name cannot be empty")
	}
	if r.index(name) >= 0 {
		return schema.NewErrorf(schema.ErrCodeDuplicateName, "variable %q already exists", name)
	}
	if len(r.names) >= r.max {
		return schema.NewErrorf(schema.ErrCodeLimitExceeded, "maximum number of variables reached (%d)", r.max).
			WithDetails(map[string]any{"max": r.max})
	}
	r.names = append(r.names, name)
	return nil
}

// Remove deletes a name. Payload text that mentions it is left untouched.
func (r *Registry) Remove(name string) error {
	i := r.index(name)
	if i < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "variable %q not found", name)
	}
	r.names = append(r.names[:i], r.names[i+1:]...)
	return nil
}

// Rename replaces from with to in place, keeping its position.
func (r *Registry) Rename(from, to string) error {
	i := r.index(from)
	if i < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "variable %q not found", from)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return schema.NewError(schema.ErrCodeInvalidName, "variable name cannot be empty")
	}
	if to == r.names[i] {
		return nil
	}
	if r.index(to) >= 0 {
		return schema.NewErrorf(schema.ErrCodeDuplicateName, "variable %q already exists", to)
	}
	r.names[i] = to
	return nil
}

// index looks name up after trimming it, the same way Add stores it.
func (r *Registry) index(name string) int {
	name = strings.TrimSpace(name)
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}
