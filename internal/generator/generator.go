// Package generator turns a whole project into source code: every diagram is
// validated, emitted as a structured program and handed to a renderer.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rendis/flowgen/internal/emitter"
	"github.com/rendis/flowgen/internal/expressions"
	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/render"
	"github.com/rendis/flowgen/internal/validation"
	"github.com/rendis/flowgen/pkg/schema"
)

// Report holds the validation outcome of one diagram.
type Report struct {
	DiagramID string                   `json:"diagram_id"`
	Name      string                   `json:"name"`
	Result    *schema.ValidationResult `json:"result"`
}

// Output is a generated project.
type Output struct {
	Target    string             `json:"target"`
	Extension string             `json:"extension"`
	Programs  []*program.Program `json:"programs"`
	Source    string             `json:"source"`
	Reports   []Report           `json:"reports"`
}

// Generator compiles projects. It holds no per-project state and is safe for
// concurrent use; callers serialise access to each Project.
type Generator struct {
	logger *slog.Logger
	jq     *expressions.GoJQEngine
}

// New creates a Generator. A nil logger discards output.
func New(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{logger: logger, jq: expressions.NewGoJQEngine()}
}

// Validate runs the diagram validator over every diagram of p.
func (g *Generator) Validate(ctx context.Context, p *project.Project) []Report {
	ctx = logging.WithProjectID(ctx, p.ID)
	reports := make([]Report, 0, p.Len())
	for _, d := range p.Diagrams() {
		res := validation.Validate(d)
		logging.LogWith(logging.WithDiagramID(ctx, d.ID), g.logger).Debug("diagram validated",
			"errors", len(res.Errors), "warnings", len(res.Warnings))
		reports = append(reports, Report{DiagramID: d.ID, Name: d.Name, Result: res})
	}
	return reports
}

// Programs validates and emits every diagram of p, in thread order. The first
// invalid or unstructured diagram aborts with its error; the returned error
// carries the diagram in Details["diagram_id"]. Reports are returned even on
// failure.
func (g *Generator) Programs(ctx context.Context, p *project.Project) ([]*program.Program, []Report, error) {
	ctx = logging.WithProjectID(ctx, p.ID)
	reports := g.Validate(ctx, p)

	progs := make([]*program.Program, 0, len(reports))
	for i, d := range p.Diagrams() {
		log := logging.LogWith(logging.WithDiagramID(ctx, d.ID), g.logger)
		if err := reports[i].Result.ToError(); err != nil {
			log.Info("diagram rejected", "code", schema.CodeOf(err))
			return nil, reports, tagDiagram(err, d.ID)
		}
		prog, err := emitter.Emit(d)
		if err != nil {
			log.Info("diagram not emitted", "code", schema.CodeOf(err))
			return nil, reports, tagDiagram(err, d.ID)
		}
		log.Debug("diagram emitted", "statements", program.Count(prog.Body))
		progs = append(progs, prog)
	}
	return progs, reports, nil
}

// Generate compiles p into target-language source.
func (g *Generator) Generate(ctx context.Context, p *project.Project, target string) (*Output, error) {
	r, err := render.Get(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	progs, reports, err := g.Programs(ctx, p)
	if err != nil {
		return &Output{Target: r.Name(), Extension: r.Extension(), Reports: reports}, err
	}

	src, err := r.Render(render.Unit{Name: p.Name, Variables: p.Variables().List(), Programs: progs})
	if err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithProjectID(ctx, p.ID), g.logger).Info("project generated",
		"target", r.Name(), "diagrams", len(progs), "bytes", len(src),
		"duration_ms", time.Since(start).Milliseconds())

	return &Output{
		Target:    r.Name(),
		Extension: r.Extension(),
		Programs:  progs,
		Source:    string(src),
		Reports:   reports,
	}, nil
}

// tagDiagram records which diagram an error came from.
func tagDiagram(err error, diagramID string) error {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		return err
	}
	details := make(map[string]any, len(fe.Details)+1)
	for k, v := range fe.Details {
		details[k] = v
	}
	details["diagram_id"] = diagramID
	fe.Details = details
	return fe
}

// Query emits p and runs a jq expression over
// {"name": ..., "variables": [...], "programs": [...]}, one program object per
// diagram in thread order.
func (g *Generator) Query(ctx context.Context, p *project.Project, expression string) ([]any, error) {
	progs, _, err := g.Programs(ctx, p)
	if err != nil {
		return nil, err
	}

	items := make([]any, 0, len(progs))
	for _, prog := range progs {
		obj, err := prog.JSON()
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	vars := make([]any, 0, p.Variables().Len())
	for _, v := range p.Variables().List() {
		vars = append(vars, v)
	}

	return g.jq.EvaluateAll(ctx, expression, map[string]any{
		"name":      p.Name,
		"variables": vars,
		"programs":  items,
	})
}
