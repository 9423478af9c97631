package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgen/internal/diagram"
	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/internal/store"
	"github.com/rendis/flowgen/pkg/schema"
)

// handleProject manages the project lifecycle. create, open and import make
// the project current for the calling session.
func (s *FlowgenServer) handleProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	format := document.Format(req.GetString("format", string(document.FormatJSON)))

	switch action {
	case "create":
		p, err := s.ws.Create(ctx, req.GetString("name", ""))
		if err != nil {
			return toolError(err), nil
		}
		s.captureSession(ctx, p.ID)
		return marshalResult(document.FromProject(p))

	case "import":
		doc, err := req.RequireString("document")
		if err != nil {
			return mcp.NewToolResultError("document is required"), nil
		}
		p, err := s.ws.Import(ctx, []byte(doc), format)
		if err != nil {
			return toolError(err), nil
		}
		s.captureSession(ctx, p.ID)
		return marshalResult(document.FromProject(p))

	case "list":
		recs, err := s.ws.List(ctx, store.ProjectFilter{NamePrefix: req.GetString("name", "")})
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(map[string]any{"projects": recs})
	}

	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}

	switch action {
	case "open":
		var doc *schema.ProjectDocument
		err := s.ws.View(ctx, id, func(p *project.Project) error {
			doc = document.FromProject(p)
			return nil
		})
		if err != nil {
			return toolError(err), nil
		}
		s.captureSession(ctx, id)
		return marshalResult(doc)

	case "export":
		var data []byte
		err := s.ws.View(ctx, id, func(p *project.Project) error {
			var saveErr error
			data, saveErr = document.Save(p, format)
			return saveErr
		})
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(string(data)), nil

	case "delete":
		if err := s.ws.Delete(ctx, id); err != nil {
			return toolError(err), nil
		}
		s.sessions.Forget(id)
		return marshalResult(map[string]any{"deleted": id})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

// handleEdit applies one editing action and returns the changed part of the
// project: the variable list, or the diagram's document.
func (s *FlowgenServer) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}

	var result any
	err = s.ws.Update(ctx, id, func(p *project.Project) error {
		if strings.HasSuffix(action, "_variable") {
			if err := editVariable(p.Variables(), action, req); err != nil {
				return err
			}
			result = map[string]any{"variables": p.Variables().List()}
			return nil
		}

		switch action {
		case "add_diagram":
			d, err := p.AddDiagram(req.GetString("name", ""))
			if err != nil {
				return err
			}
			result = document.FromDiagram(d)
			return nil
		case "remove_diagram":
			did := req.GetString("diagram_id", "")
			if err := p.RemoveDiagram(did); err != nil {
				return err
			}
			result = map[string]any{"removed": did}
			return nil
		}

		d, err := p.Diagram(req.GetString("diagram_id", ""))
		if err != nil {
			return err
		}
		node, err := editDiagram(d, action, req)
		if err != nil {
			return err
		}
		if node != nil {
			result = node
		} else {
			result = document.FromDiagram(d)
		}
		return nil
	})
	if err != nil {
		return toolError(err), nil
	}

	logging.LogWith(logging.WithProjectID(ctx, id), s.logger).Debug("project edited", "action", action)
	return marshalResult(result)
}

func editVariable(r *graph.Registry, action string, req mcp.CallToolRequest) error {
	name := req.GetString("name", "")
	switch action {
	case "add_variable":
		return r.Add(name)
	case "rename_variable":
		return r.Rename(name, req.GetString("new_name", ""))
	case "remove_variable":
		return r.Remove(name)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown action %q", action)
	}
}

// editDiagram applies a diagram-level action. add_node returns the new node;
// every other action returns nil and the caller reports the whole diagram.
func editDiagram(d *graph.Diagram, action string, req mcp.CallToolRequest) (*schema.NodeDocument, error) {
	args := req.GetArguments()
	_, hasX := args["x"]
	_, hasY := args["y"]
	_, hasPayload := args["payload"]

	switch action {
	case "rename_diagram":
		name := strings.TrimSpace(req.GetString("name", ""))
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeInvalidName, "diagram name cannot be empty")
		}
		d.Name = name
		return nil, nil

	case "add_node":
		kind, err := graph.ParseKind(req.GetString("kind", ""))
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, err.Error())
		}
		pos := graph.Position{X: req.GetInt("x", 0), Y: req.GetInt("y", 0)}
		n, err := d.AddNode(kind, req.GetString("payload", ""), pos)
		if err != nil {
			return nil, err
		}
		return &schema.NodeDocument{
			ID: string(n.ID), Kind: string(n.Kind), Payload: n.Payload, X: n.Position.X, Y: n.Position.Y,
		}, nil

	case "update_node":
		id := graph.NodeID(req.GetString("node_id", ""))
		n, ok := d.Node(id)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
		}
		if hasPayload {
			if err := d.SetPayload(id, req.GetString("payload", "")); err != nil {
				return nil, err
			}
		}
		if hasX || hasY {
			return nil, d.Move(id, graph.Position{X: req.GetInt("x", n.Position.X), Y: req.GetInt("y", n.Position.Y)})
		}
		return nil, nil

	case "remove_node":
		return nil, d.RemoveNode(graph.NodeID(req.GetString("node_id", "")))
	}

	branch, err := graph.ParseBranch(req.GetString("branch", ""))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	from := graph.NodeID(req.GetString("from", ""))
	to := graph.NodeID(req.GetString("to", ""))

	switch action {
	case "connect":
		return nil, d.Connect(from, to, branch)
	case "retarget":
		return nil, d.Retarget(from, branch, to)
	case "disconnect":
		return nil, d.Disconnect(from, branch)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown action %q", action)
	}
}

// handleValidate runs the diagram validator over the project.
func (s *FlowgenServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}

	var result map[string]any
	err = s.ws.View(ctx, id, func(p *project.Project) error {
		reports := s.ws.Generator().Validate(ctx, p)
		valid := true
		for _, r := range reports {
			valid = valid && r.Result.Valid()
		}
		result = map[string]any{"valid": valid, "reports": reports}
		return nil
	})
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(result)
}

// handleGenerate produces source code and records it in the store.
func (s *FlowgenServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	out, err := s.ws.Generate(ctx, id, req.GetString("target", "python"))
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(out)
}

// handleDiagram draws one diagram. PNG comes back as image content; the text
// formats come back as text.
func (s *FlowgenServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diagramID, err := req.RequireString("diagram_id")
	if err != nil {
		return mcp.NewToolResultError("diagram_id is required"), nil
	}
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	format := req.GetString("format", "mermaid")

	var (
		data []byte
		mime string
	)
	err = s.ws.View(ctx, id, func(p *project.Project) error {
		d, err := p.Diagram(diagramID)
		if err != nil {
			return err
		}
		data, mime, err = diagram.Render(ctx, d, format)
		return err
	})
	if err != nil {
		return toolError(err), nil
	}

	if strings.HasPrefix(mime, "image/png") {
		return mcp.NewToolResultImage("diagram "+diagramID, base64.StdEncoding.EncodeToString(data), mime), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleRun executes the project once.
func (s *FlowgenServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.ws.Run(ctx, id, req.GetString("inputs", ""))
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(res)
}

// handleTrials runs test cases against the project.
func (s *FlowgenServer) handleTrials(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Cases  []runner.Case `json:"cases"`
		Trials int           `json:"trials"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Trials == 0 {
		args.Trials = 1
	}
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}

	rep, err := s.ws.Trials(ctx, id, args.Cases, args.Trials)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"ok": rep.OK(), "report": rep})
}

// handlePrograms returns the emitted programs or the results of a jq query
// over them.
func (s *FlowgenServer) handlePrograms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveProject(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	query := req.GetString("jq", "")
	gen := s.ws.Generator()

	var result map[string]any
	err = s.ws.View(ctx, id, func(p *project.Project) error {
		if query != "" {
			res, err := gen.Query(ctx, p, query)
			result = map[string]any{"results": res}
			return err
		}
		progs, _, err := gen.Programs(ctx, p)
		result = map[string]any{"programs": progs}
		return err
	})
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(result)
}

// --- Helpers ---

// resolveProject returns the project_id argument, or the session's current
// project when it is absent.
func (s *FlowgenServer) resolveProject(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("project_id", ""); id != "" {
		return id, nil
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		if id, ok := s.sessions.ProjectFor(session.SessionID()); ok {
			return id, nil
		}
	}
	return "", schema.NewError(schema.ErrCodeValidation, "project_id is required: the session has no current project")
}

// captureSession makes projectID the current project of the calling session.
func (s *FlowgenServer) captureSession(ctx context.Context, projectID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(session.SessionID(), projectID)
	}
}

// toolError reports err as a tool error. FlowErrors keep their code and
// details as JSON.
func toolError(err error) *mcp.CallToolResult {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		data, mErr := json.Marshal(map[string]any{"error": fe})
		if mErr == nil {
			return mcp.NewToolResultError(string(data))
		}
	}
	return mcp.NewToolResultError(err.Error())
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
