package httpapi

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowgen/internal/diagram"
	"github.com/rendis/flowgen/internal/generator"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/runner"
)

func (s *Server) handleValidate(c fiber.Ctx) error {
	var reports []generator.Report
	err := s.deps.Workspace.View(c.Context(), c.Params("id"), func(p *project.Project) error {
		reports = s.deps.Workspace.Generator().Validate(c.Context(), p)
		return nil
	})
	if err != nil {
		return err
	}
	valid := true
	for _, r := range reports {
		valid = valid && r.Result.Valid()
	}
	return c.JSON(fiber.Map{"valid": valid, "reports": reports})
}

// handleGenerate compiles the project for ?target= (default python) and
// answers with the source, the programs and the per-diagram reports.
func (s *Server) handleGenerate(c fiber.Ctx) error {
	out, err := s.deps.Workspace.Generate(c.Context(), c.Params("id"), c.Query("target", "python"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(out)
}

func (s *Server) handleListGenerations(c fiber.Ctx) error {
	gens, err := s.deps.Workspace.Generations(c.Context(), c.Params("id"), queryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"generations": gens})
}

// handlePrograms returns the structured programs of every diagram, or the
// results of the jq query in ?jq= run over them.
func (s *Server) handlePrograms(c fiber.Ctx) error {
	query := c.Query("jq")
	gen := s.deps.Workspace.Generator()

	var (
		progs   []*program.Program
		results []any
	)
	err := s.deps.Workspace.View(c.Context(), c.Params("id"), func(p *project.Project) error {
		var err error
		if query != "" {
			results, err = gen.Query(c.Context(), p, query)
			return err
		}
		progs, _, err = gen.Programs(c.Context(), p)
		return err
	})
	if err != nil {
		return err
	}
	if query != "" {
		return c.JSON(fiber.Map{"results": results})
	}
	return c.JSON(fiber.Map{"programs": progs})
}

func (s *Server) handleRenderDiagram(c fiber.Ctx) error {
	var (
		data []byte
		mime string
	)
	err := s.deps.Workspace.View(c.Context(), c.Params("id"), func(p *project.Project) error {
		d, err := p.Diagram(c.Params("diagram"))
		if err != nil {
			return err
		}
		data, mime, err = diagram.Render(c.Context(), d, c.Query("format", "mermaid"))
		return err
	})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, mime)
	return c.Send(data)
}

func (s *Server) handleRun(c fiber.Ctx) error {
	var body struct {
		Inputs string `json:"inputs"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	res, err := s.deps.Workspace.Run(c.Context(), c.Params("id"), body.Inputs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleTrials(c fiber.Ctx) error {
	var body struct {
		Cases  []runner.Case `json:"cases"`
		Trials int           `json:"trials"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Trials == 0 {
		body.Trials = 1
	}
	rep, err := s.deps.Workspace.Trials(c.Context(), c.Params("id"), body.Cases, body.Trials)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": rep.OK(), "report": rep})
}
