// Package project holds an editing session: several diagrams ("threads")
// that share one variable registry.
package project

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/pkg/schema"
)

var defaultName = regexp.MustCompile(`^Thread \d+$`)

// Project is a set of diagrams sharing a variable registry. The embedded
// mutex is not taken by Project's own methods; servers lock it around each
// request that touches the project.
type Project struct {
	sync.Mutex

	ID   string
	Name string

	limits   graph.Limits
	vars     *graph.Registry
	diagrams []*graph.Diagram
}

// New creates an empty project. Zero limits fall back to the defaults.
func New(name string, limits graph.Limits) *Project {
	def := graph.DefaultLimits()
	if limits.MaxNodes <= 0 {
		limits.MaxNodes = def.MaxNodes
	}
	if limits.MaxVariables <= 0 {
		limits.MaxVariables = def.MaxVariables
	}
	if limits.MaxDiagrams <= 0 {
		limits.MaxDiagrams = def.MaxDiagrams
	}
	return &Project{
		ID:     uuid.NewString(),
		Name:   name,
		limits: limits,
		vars:   graph.NewRegistry(limits.MaxVariables),
	}
}

// Limits returns the bounds the project was created with.
func (p *Project) Limits() graph.Limits { return p.limits }

// Variables returns the registry shared by every diagram.
func (p *Project) Variables() *graph.Registry { return p.vars }

// Diagrams returns the diagrams in thread order. The slice is a copy; the
// diagrams are not.
func (p *Project) Diagrams() []*graph.Diagram {
	return slices.Clone(p.diagrams)
}

// Len returns the number of diagrams.
func (p *Project) Len() int { return len(p.diagrams) }

// Diagram looks a diagram up by ID.
func (p *Project) Diagram(id string) (*graph.Diagram, error) {
	for _, d := range p.diagrams {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "diagram %s not found", id)
}

// AddDiagram appends an empty diagram. An empty name becomes "Thread N".
func (p *Project) AddDiagram(name string) (*graph.Diagram, error) {
	if err := p.checkCapacity(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = threadName(len(p.diagrams))
	}
	d := graph.NewDiagram(name, p.vars, p.limits)
	p.diagrams = append(p.diagrams, d)
	return d, nil
}

// Attach adds an existing diagram (load path) and points it at the
// project's registry.
func (p *Project) Attach(d *graph.Diagram) error {
	if err := p.checkCapacity(); err != nil {
		return err
	}
	if _, err := p.Diagram(d.ID); err == nil {
		return schema.NewErrorf(schema.ErrCodeInvariant, "diagram %s already in project", d.ID)
	}
	d.SetVariables(p.vars)
	p.diagrams = append(p.diagrams, d)
	return nil
}

// RemoveDiagram deletes a diagram. Diagrams still carrying a default
// "Thread N" name are renumbered to match their new position.
func (p *Project) RemoveDiagram(id string) error {
	idx := slices.IndexFunc(p.diagrams, func(d *graph.Diagram) bool { return d.ID == id })
	if idx < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "diagram %s not found", id)
	}
	p.diagrams = slices.Delete(p.diagrams, idx, idx+1)
	for i, d := range p.diagrams {
		if defaultName.MatchString(d.Name) {
			d.Name = threadName(i)
		}
	}
	return nil
}

func (p *Project) checkCapacity() error {
	if len(p.diagrams) >= p.limits.MaxDiagrams {
		return schema.NewErrorf(schema.ErrCodeLimitExceeded,
			"project already has the maximum of %d diagrams", p.limits.MaxDiagrams).
			WithDetails(map[string]any{"max_diagrams": p.limits.MaxDiagrams})
	}
	return nil
}

func threadName(i int) string { return fmt.Sprintf("Thread %d", i+1) }
