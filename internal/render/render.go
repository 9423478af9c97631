// Package render turns structured programs into target-language source.
package render

import (
	"bytes"
	"sort"
	"strings"

	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

// Unit is everything rendered into one source file: the project's shared
// variables and one program per diagram, in thread order.
type Unit struct {
	Name      string
	Variables []string
	Programs  []*program.Program
}

// Renderer produces source code for a Unit.
type Renderer interface {
	Name() string
	Extension() string
	Render(u Unit) ([]byte, error)
}

var renderers = map[string]Renderer{
	"python": Python{},
	"go":     Go{},
}

// Get returns the renderer for a target language.
func Get(name string) (Renderer, error) {
	r, ok := renderers[strings.ToLower(name)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown target %q (known: %s)",
			name, strings.Join(Names(), ", "))
	}
	return r, nil
}

// Names lists the known targets in sorted order.
func Names() []string {
	out := make([]string, 0, len(renderers))
	for n := range renderers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// writer accumulates indented lines.
type writer struct {
	buf    bytes.Buffer
	indent string
	depth  int
}

func (w *writer) line(parts ...string) {
	if len(parts) == 0 {
		w.buf.WriteByte('\n')
		return
	}
	w.buf.WriteString(strings.Repeat(w.indent, w.depth))
	for _, p := range parts {
		w.buf.WriteString(p)
	}
	w.buf.WriteByte('\n')
}

func (w *writer) in()  { w.depth++ }
func (w *writer) out() { w.depth-- }

func (w *writer) bytes() []byte { return w.buf.Bytes() }
