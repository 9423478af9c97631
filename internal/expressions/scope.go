package expressions

import (
	"sync"
)

// Scope holds the values of a project's shared variables while programs
// run. Every diagram of the project reads and writes the same Scope.
// Thread-safe.
type Scope struct {
	mu     sync.Mutex
	names  []string
	values map[string]any
}

// NewScope creates a Scope with every name set to 0, the initial value the
// generated code gives shared variables.
func NewScope(names []string) *Scope {
	s := &Scope{
		names:  append([]string(nil), names...),
		values: make(map[string]any, len(names)),
	}
	for _, n := range names {
		s.values[n] = 0
	}
	return s
}

// Names returns the variable names in declaration order.
func (s *Scope) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the current value of name.
func (s *Scope) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Update runs fn with exclusive access to the variable map. fn may read and
// assign any variable; assignments to undeclared names create them.
func (s *Scope) Update(fn func(vars map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.values)
}

// Snapshot returns a copy of the current values.
func (s *Scope) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
