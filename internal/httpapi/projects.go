package httpapi

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/store"
	"github.com/rendis/flowgen/pkg/schema"
)

func (s *Server) handleListProjects(c fiber.Ctx) error {
	recs, err := s.deps.Workspace.List(c.Context(), store.ProjectFilter{
		NamePrefix: c.Query("prefix"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"projects": recs})
}

func (s *Server) handleCreateProject(c fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	p, err := s.deps.Workspace.Create(c.Context(), body.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(document.FromProject(p))
}

// handleImportProject opens the project document in the request body. The
// format comes from ?format=, then from the content type.
func (s *Server) handleImportProject(c fiber.Ctx) error {
	format := document.Format(strings.ToLower(c.Query("format")))
	if format == "" {
		format = document.FormatJSON
		if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
			format = document.FormatYAML
		}
	}
	if format != document.FormatJSON && format != document.FormatYAML {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown document format %q", format)
	}

	p, err := s.deps.Workspace.Import(c.Context(), c.Body(), format)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(document.FromProject(p))
}

func (s *Server) handleGetProject(c fiber.Ctx) error {
	var doc *schema.ProjectDocument
	err := s.deps.Workspace.View(c.Context(), c.Params("id"), func(p *project.Project) error {
		doc = document.FromProject(p)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) handleExportProject(c fiber.Ctx) error {
	format := document.Format(strings.ToLower(c.Query("format", string(document.FormatJSON))))

	var data []byte
	err := s.deps.Workspace.View(c.Context(), c.Params("id"), func(p *project.Project) error {
		var saveErr error
		data, saveErr = document.Save(p, format)
		return saveErr
	})
	if err != nil {
		return err
	}

	if format == document.FormatYAML {
		c.Set(fiber.HeaderContentType, "application/yaml")
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	}
	return c.Send(data)
}

func (s *Server) handleDeleteProject(c fiber.Ctx) error {
	if err := s.deps.Workspace.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
