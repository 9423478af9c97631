package httpapi

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/pkg/schema"
)

// editDiagram runs fn against the diagram named in the path, saves the
// project and answers with the diagram's new document.
func (s *Server) editDiagram(c fiber.Ctx, status int, fn func(*graph.Diagram) error) error {
	var doc schema.DiagramDocument
	err := s.deps.Workspace.Update(c.Context(), c.Params("id"), func(p *project.Project) error {
		d, err := p.Diagram(c.Params("diagram"))
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		doc = document.FromDiagram(d)
		return nil
	})
	if err != nil {
		return err
	}
	return c.Status(status).JSON(doc)
}

// editVariables runs fn against the shared registry and answers with the
// resulting variable list.
func (s *Server) editVariables(c fiber.Ctx, status int, fn func(*graph.Registry) error) error {
	var vars []string
	err := s.deps.Workspace.Update(c.Context(), c.Params("id"), func(p *project.Project) error {
		if err := fn(p.Variables()); err != nil {
			return err
		}
		vars = p.Variables().List()
		return nil
	})
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"variables": vars})
}

type nameBody struct {
	Name string `json:"name"`
}

func (s *Server) handleAddVariable(c fiber.Ctx) error {
	var body nameBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	return s.editVariables(c, http.StatusCreated, func(r *graph.Registry) error {
		return r.Add(body.Name)
	})
}

func (s *Server) handleRenameVariable(c fiber.Ctx) error {
	var body nameBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	return s.editVariables(c, http.StatusOK, func(r *graph.Registry) error {
		return r.Rename(c.Params("name"), body.Name)
	})
}

func (s *Server) handleRemoveVariable(c fiber.Ctx) error {
	return s.editVariables(c, http.StatusOK, func(r *graph.Registry) error {
		return r.Remove(c.Params("name"))
	})
}

func (s *Server) handleAddDiagram(c fiber.Ctx) error {
	var body nameBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	var doc schema.DiagramDocument
	err := s.deps.Workspace.Update(c.Context(), c.Params("id"), func(p *project.Project) error {
		d, err := p.AddDiagram(body.Name)
		if err != nil {
			return err
		}
		doc = document.FromDiagram(d)
		return nil
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(doc)
}

func (s *Server) handleRenameDiagram(c fiber.Ctx) error {
	var body nameBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return schema.NewError(schema.ErrCodeInvalidName, "diagram name cannot be empty")
	}
	return s.editDiagram(c, http.StatusOK, func(d *graph.Diagram) error {
		d.Name = name
		return nil
	})
}

func (s *Server) handleRemoveDiagram(c fiber.Ctx) error {
	err := s.deps.Workspace.Update(c.Context(), c.Params("id"), func(p *project.Project) error {
		return p.RemoveDiagram(c.Params("diagram"))
	})
	if err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

type nodeBody struct {
	Kind    string  `json:"kind"`
	Payload *string `json:"payload"`
	X       *int    `json:"x"`
	Y       *int    `json:"y"`
}

func (s *Server) handleAddNode(c fiber.Ctx) error {
	var body nodeBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	kind, err := graph.ParseKind(body.Kind)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	var pos graph.Position
	if body.X != nil {
		pos.X = *body.X
	}
	if body.Y != nil {
		pos.Y = *body.Y
	}
	payload := ""
	if body.Payload != nil {
		payload = *body.Payload
	}

	var node graph.Node
	err = s.deps.Workspace.Update(c.Context(), c.Params("id"), func(p *project.Project) error {
		d, err := p.Diagram(c.Params("diagram"))
		if err != nil {
			return err
		}
		node, err = d.AddNode(kind, payload, pos)
		return err
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(schema.NodeDocument{
		ID:      string(node.ID),
		Kind:    string(node.Kind),
		Payload: node.Payload,
		X:       node.Position.X,
		Y:       node.Position.Y,
	})
}

// handleUpdateNode changes the payload and/or the position of a node. The
// kind of a node is fixed once it is placed.
func (s *Server) handleUpdateNode(c fiber.Ctx) error {
	var body nodeBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Kind != "" {
		return schema.NewError(schema.ErrCodeValidation, "node kind cannot be changed")
	}
	id := graph.NodeID(c.Params("node"))
	return s.editDiagram(c, http.StatusOK, func(d *graph.Diagram) error {
		n, ok := d.Node(id)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
		}
		if body.Payload != nil {
			if err := d.SetPayload(id, *body.Payload); err != nil {
				return err
			}
		}
		if body.X != nil || body.Y != nil {
			pos := n.Position
			if body.X != nil {
				pos.X = *body.X
			}
			if body.Y != nil {
				pos.Y = *body.Y
			}
			return d.Move(id, pos)
		}
		return nil
	})
}

func (s *Server) handleRemoveNode(c fiber.Ctx) error {
	id := graph.NodeID(c.Params("node"))
	return s.editDiagram(c, http.StatusOK, func(d *graph.Diagram) error {
		return d.RemoveNode(id)
	})
}

type edgeBody struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch"`
}

func (b edgeBody) branch() (graph.Branch, error) {
	br, err := graph.ParseBranch(b.Branch)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	return br, nil
}

func (s *Server) handleConnect(c fiber.Ctx) error {
	var body edgeBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	br, err := body.branch()
	if err != nil {
		return err
	}
	return s.editDiagram(c, http.StatusCreated, func(d *graph.Diagram) error {
		return d.Connect(graph.NodeID(body.From), graph.NodeID(body.To), br)
	})
}

func (s *Server) handleRetarget(c fiber.Ctx) error {
	var body edgeBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	br, err := body.branch()
	if err != nil {
		return err
	}
	return s.editDiagram(c, http.StatusOK, func(d *graph.Diagram) error {
		return d.Retarget(graph.NodeID(body.From), br, graph.NodeID(body.To))
	})
}

// handleDisconnect removes the edge named by ?from= and ?branch=.
func (s *Server) handleDisconnect(c fiber.Ctx) error {
	body := edgeBody{From: c.Query("from"), Branch: c.Query("branch")}
	br, err := body.branch()
	if err != nil {
		return err
	}
	return s.editDiagram(c, http.StatusOK, func(d *graph.Diagram) error {
		return d.Disconnect(graph.NodeID(body.From), br)
	})
}
