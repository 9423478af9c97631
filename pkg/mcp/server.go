package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgen/internal/diagram"
	"github.com/rendis/flowgen/internal/render"
	"github.com/rendis/flowgen/internal/workspace"
)

// FlowgenServerDeps holds the dependencies for creating a FlowgenServer.
type FlowgenServerDeps struct {
	Workspace *workspace.Workspace
	Logger    *slog.Logger
	Version   string
}

// FlowgenServer wraps an MCP server with flowgen-specific tool handlers.
type FlowgenServer struct {
	ws        *workspace.Workspace
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowgenServer creates a new FlowgenServer with all 8 tools registered.
func NewFlowgenServer(deps FlowgenServerDeps) *FlowgenServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowgenServer{
		ws:       deps.Workspace,
		sessions: NewSessionRegistry(),
		logger:   logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"flowgen",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Flowgen turns flowcharts into structured programs. Use flowgen.project to create or open a project, flowgen.edit to add variables, diagrams, nodes and edges, flowgen.validate to check the diagrams, flowgen.generate to produce source code, flowgen.diagram to draw a diagram, flowgen.run and flowgen.trials to execute the project, and flowgen.programs to inspect the emitted programs with jq. Tools act on the session's current project when project_id is omitted."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowgenServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowgenServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 8 registered MCP tools as ServerTool entries.
func (s *FlowgenServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: projectTool(), Handler: s.handleProject},
		{Tool: editTool(), Handler: s.handleEdit},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: trialsTool(), Handler: s.handleTrials},
		{Tool: programsTool(), Handler: s.handlePrograms},
	}
}

// --- Tool definitions ---

func projectIDParam() mcp.ToolOption {
	return mcp.WithString("project_id", mcp.Description("Project ID (default: the session's current project)"))
}

func projectTool() mcp.Tool {
	return mcp.NewTool("flowgen.project",
		mcp.WithDescription("Create, open, list, import, export or delete projects"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("create", "open", "list", "import", "export", "delete"),
			mcp.Description("What to do"),
		),
		projectIDParam(),
		mcp.WithString("name", mcp.Description("Project name (create) or name prefix (list)")),
		mcp.WithString("document", mcp.Description("Project document to import")),
		mcp.WithString("format", mcp.Enum("json", "yaml"), mcp.Description("Document format for import and export (default: json)")),
	)
}

func editTool() mcp.Tool {
	return mcp.NewTool("flowgen.edit",
		mcp.WithDescription("Edit the variables, diagrams, nodes and edges of a project"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum(
				"add_variable", "rename_variable", "remove_variable",
				"add_diagram", "rename_diagram", "remove_diagram",
				"add_node", "update_node", "remove_node",
				"connect", "retarget", "disconnect",
			),
			mcp.Description("Edit to apply"),
		),
		projectIDParam(),
		mcp.WithString("diagram_id", mcp.Description("Target diagram (node and edge actions, rename_diagram, remove_diagram)")),
		mcp.WithString("name", mcp.Description("Variable or diagram name")),
		mcp.WithString("new_name", mcp.Description("New variable name (rename_variable)")),
		mcp.WithString("node_id", mcp.Description("Target node (update_node, remove_node)")),
		mcp.WithString("kind", mcp.Enum("start", "end", "assign", "input", "output", "condition"), mcp.Description("Node kind (add_node)")),
		mcp.WithString("payload", mcp.Description("Node text: an assignment, a variable, an expression or a condition")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
		mcp.WithString("from", mcp.Description("Edge source node")),
		mcp.WithString("to", mcp.Description("Edge target node")),
		mcp.WithString("branch", mcp.Enum("", "true", "false"), mcp.Description("Edge label; required on condition edges")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowgen.validate",
		mcp.WithDescription("Validate every diagram of a project"),
		projectIDParam(),
	)
}

func generateTool() mcp.Tool {
	return mcp.NewTool("flowgen.generate",
		mcp.WithDescription("Generate source code for a project, one thread per diagram"),
		projectIDParam(),
		mcp.WithString("target", mcp.Enum(render.Names()...), mcp.Description("Target language (default: python)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowgen.diagram",
		mcp.WithDescription("Draw a diagram with validation findings overlaid. Returns Mermaid, ASCII art, DOT, SVG or a PNG image"),
		projectIDParam(),
		mcp.WithString("diagram_id", mcp.Required(), mcp.Description("Diagram to draw")),
		mcp.WithString("format", mcp.Enum(diagram.Formats...), mcp.Description("Output format (default: mermaid)")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("flowgen.run",
		mcp.WithDescription("Run a project with one goroutine per diagram and return its outputs"),
		projectIDParam(),
		mcp.WithString("inputs", mcp.Description("Whitespace-separated input tokens consumed by input nodes")),
	)
}

func trialsTool() mcp.Tool {
	return mcp.NewTool("flowgen.trials",
		mcp.WithDescription("Run test cases against a project, repeating each case to expose interleaving"),
		projectIDParam(),
		mcp.WithArray("cases", mcp.Required(),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input":    map[string]any{"type": "string"},
					"expected": map[string]any{"type": "string"},
				},
			}),
			mcp.Description("Test cases: input tokens and expected output tokens"),
		),
		mcp.WithNumber("trials", mcp.Min(1), mcp.Max(20), mcp.Description("Runs per case (default: 1)")),
	)
}

func programsTool() mcp.Tool {
	return mcp.NewTool("flowgen.programs",
		mcp.WithDescription("Return the structured programs of a project, optionally filtered with a jq expression"),
		projectIDParam(),
		mcp.WithString("jq", mcp.Description("jq expression over {name, variables, programs}")),
	)
}
