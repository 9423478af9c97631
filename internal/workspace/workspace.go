// Package workspace keeps the projects a server has open and writes every
// change through to the project store. The REST API and the MCP server share
// one Workspace so both see the same editing sessions.
package workspace

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/expressions"
	"github.com/rendis/flowgen/internal/generator"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/internal/store"
	"github.com/rendis/flowgen/internal/streaming"
	"github.com/rendis/flowgen/pkg/schema"
)

// Options configures a Workspace.
type Options struct {
	// Store persists projects and generated sources. Nil keeps projects in
	// memory only.
	Store    store.Store
	Codec    *document.Codec
	Limits   graph.Limits
	Dialect  string
	MaxSteps int
	Logger   *slog.Logger
	// Events receives a change event for every mutation. Nil means a
	// private in-memory hub.
	Events streaming.Hub
}

// Workspace is the set of open projects. It is safe for concurrent use.
type Workspace struct {
	store    store.Store
	codec    *document.Codec
	limits   graph.Limits
	dialect  string
	maxSteps int
	gen      *generator.Generator
	events   streaming.Hub
	logger   *slog.Logger

	mu   sync.Mutex
	open map[string]*project.Project
}

// New creates a Workspace.
func New(opts Options) (*Workspace, error) {
	if opts.Codec == nil {
		codec, err := document.NewCodec()
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Dialect == "" {
		opts.Dialect = expressions.DialectExpr
	}
	if opts.Events == nil {
		opts.Events = streaming.NewMemoryHub()
	}
	return &Workspace{
		store:    opts.Store,
		codec:    opts.Codec,
		limits:   opts.Limits,
		dialect:  opts.Dialect,
		maxSteps: opts.MaxSteps,
		gen:      generator.New(opts.Logger),
		events:   opts.Events,
		logger:   opts.Logger,
		open:     make(map[string]*project.Project),
	}, nil
}

// Codec returns the document codec used for imports.
func (w *Workspace) Codec() *document.Codec { return w.codec }

// Generator returns the shared generator.
func (w *Workspace) Generator() *generator.Generator { return w.gen }

// Events returns the hub change events are published on.
func (w *Workspace) Events() streaming.Hub { return w.events }

// Summary describes a project in change events. Callers hold the project
// lock.
func Summary(p *project.Project) map[string]any {
	return map[string]any{
		"name":      p.Name,
		"diagrams":  p.Len(),
		"variables": p.Variables().List(),
	}
}

// Create opens a new empty project.
func (w *Workspace) Create(ctx context.Context, name string) (*project.Project, error) {
	p := project.New(strings.TrimSpace(name), w.limits)
	if err := w.persist(ctx, p); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.open[p.ID] = p
	w.mu.Unlock()
	w.log(ctx, p.ID).Info("project created", "name", p.Name)
	w.publish(ctx, p.ID, streaming.EventProjectCreated, Summary(p))
	return p, nil
}

// Import decodes a project document and opens it. A project already open
// under the same ID is replaced.
func (w *Workspace) Import(ctx context.Context, data []byte, format document.Format) (*project.Project, error) {
	p, err := w.codec.Load(data, format, w.limits)
	if err != nil {
		return nil, err
	}
	if err := w.persist(ctx, p); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.open[p.ID] = p
	w.mu.Unlock()
	w.log(ctx, p.ID).Info("project imported", "name", p.Name, "diagrams", p.Len())
	w.publish(ctx, p.ID, streaming.EventProjectImported, Summary(p))
	return p, nil
}

// Get returns an open project, loading it from the store on a miss. The
// load runs without the workspace lock; when two callers load the same
// project the first one opened wins.
func (w *Workspace) Get(ctx context.Context, id string) (*project.Project, error) {
	w.mu.Lock()
	p, ok := w.open[id]
	w.mu.Unlock()
	if ok {
		return p, nil
	}
	if w.store == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "project %s not found", id)
	}

	loaded, err := store.LoadProject(ctx, w.store, w.codec, id, w.limits)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.open[loaded.ID]; ok {
		return p, nil
	}
	w.open[loaded.ID] = loaded
	return loaded, nil
}

// List returns project summaries without documents. With a store the store
// is authoritative; otherwise the open projects are listed by name.
func (w *Workspace) List(ctx context.Context, filter store.ProjectFilter) ([]*store.ProjectRecord, error) {
	if w.store != nil {
		return w.store.ListProjects(ctx, filter)
	}

	w.mu.Lock()
	recs := make([]*store.ProjectRecord, 0, len(w.open))
	for _, p := range w.open {
		if !strings.HasPrefix(p.Name, filter.NamePrefix) {
			continue
		}
		recs = append(recs, &store.ProjectRecord{ID: p.ID, Name: p.Name, Diagrams: p.Len()})
	}
	w.mu.Unlock()

	slices.SortFunc(recs, func(a, b *store.ProjectRecord) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Offset > 0 {
		recs = recs[min(filter.Offset, len(recs)):]
	}
	if filter.Limit > 0 && len(recs) > filter.Limit {
		recs = recs[:filter.Limit]
	}
	return recs, nil
}

// Delete closes a project and removes it from the store.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	_, wasOpen := w.open[id]
	delete(w.open, id)
	w.mu.Unlock()

	if w.store != nil {
		if err := w.store.DeleteProject(ctx, id); err != nil {
			return err
		}
	} else if !wasOpen {
		return schema.NewErrorf(schema.ErrCodeNotFound, "project %s not found", id)
	}
	w.log(ctx, id).Info("project deleted")
	w.publish(ctx, id, streaming.EventProjectDeleted, nil)
	return nil
}

// View runs fn with the project locked. Changes fn makes are not saved.
func (w *Workspace) View(ctx context.Context, id string, fn func(*project.Project) error) error {
	p, err := w.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Lock()
	defer p.Unlock()
	return fn(p)
}

// Update runs fn with the project locked and saves the project when fn
// succeeds. A failed save leaves the in-memory change in place and returns
// the store error.
func (w *Workspace) Update(ctx context.Context, id string, fn func(*project.Project) error) error {
	p, err := w.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Lock()
	defer p.Unlock()
	if err := fn(p); err != nil {
		return err
	}
	if err := w.persist(ctx, p); err != nil {
		return err
	}
	w.publish(ctx, id, streaming.EventProjectUpdated, Summary(p))
	return nil
}

// Generate compiles a project and records the source in the store.
func (w *Workspace) Generate(ctx context.Context, id, target string) (*generator.Output, error) {
	var out *generator.Output
	err := w.View(ctx, id, func(p *project.Project) error {
		var genErr error
		out, genErr = w.gen.Generate(ctx, p, target)
		return genErr
	})
	if err != nil {
		return out, err
	}
	if w.store != nil {
		gen := &store.Generation{ProjectID: id, Target: out.Target, Source: out.Source}
		if err := w.store.RecordGeneration(ctx, gen); err != nil {
			return out, err
		}
	}
	w.publish(ctx, id, streaming.EventSourceGenerated, map[string]any{"target": out.Target})
	return out, nil
}

// Generations lists the sources recorded for a project, newest first.
func (w *Workspace) Generations(ctx context.Context, id string, limit int) ([]*store.Generation, error) {
	if w.store == nil {
		return nil, nil
	}
	return w.store.ListGenerations(ctx, id, limit)
}

// Run emits every diagram and executes the programs against inputs.
func (w *Workspace) Run(ctx context.Context, id, inputs string) (*runner.Result, error) {
	var res *runner.Result
	err := w.View(ctx, id, func(p *project.Project) error {
		r, progs, err := w.prepare(ctx, p)
		if err != nil {
			return err
		}
		res, err = r.Run(ctx, progs, p.Variables().List(), inputs)
		return err
	})
	return res, err
}

// Trials runs each case k times.
func (w *Workspace) Trials(ctx context.Context, id string, cases []runner.Case, k int) (*runner.Report, error) {
	var rep *runner.Report
	err := w.View(ctx, id, func(p *project.Project) error {
		r, progs, err := w.prepare(ctx, p)
		if err != nil {
			return err
		}
		rep, err = r.Trials(ctx, progs, p.Variables().List(), cases, k)
		return err
	})
	return rep, err
}

func (w *Workspace) prepare(ctx context.Context, p *project.Project) (*runner.Runner, []*program.Program, error) {
	progs, _, err := w.gen.Programs(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	engine, err := expressions.New(w.dialect, p.Variables().List())
	if err != nil {
		return nil, nil, err
	}
	log := w.log(ctx, p.ID)
	return runner.New(engine, w.maxSteps, log), progs, nil
}

func (w *Workspace) persist(ctx context.Context, p *project.Project) error {
	if w.store == nil {
		return nil
	}
	return store.PutProject(ctx, w.store, p)
}

func (w *Workspace) publish(ctx context.Context, id, eventType string, payload any) {
	ev := streaming.Event{ProjectID: id, EventType: eventType, Payload: payload}
	if err := w.events.Publish(ctx, ev); err != nil {
		w.log(ctx, id).Debug("event dropped", "event_type", eventType, "error", err)
	}
}

func (w *Workspace) log(ctx context.Context, projectID string) *slog.Logger {
	return logging.LogWith(logging.WithProjectID(ctx, projectID), w.logger)
}
