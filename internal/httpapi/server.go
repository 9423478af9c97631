// Package httpapi serves the flowgen REST API: project editing, validation,
// code generation, diagrams and test runs over one shared workspace.
package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/workspace"
)

// Deps holds the dependencies of the API server.
type Deps struct {
	Workspace *workspace.Workspace
	Logger    *slog.Logger
	Version   string
}

// Server is the REST API.
type Server struct {
	deps Deps
	app  *fiber.App

	// done is closed by Shutdown to end open event streams.
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Server with every route registered.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{deps: deps, done: make(chan struct{})}
	s.app = fiber.New(fiber.Config{
		AppName: "flowgen",
		// Path params become variable names and node IDs kept after the
		// handler returns.
		Immutable:    true,
		ErrorHandler: s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.correlate)

	s.routes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.deps.Logger.Info("http api listening", "addr", addr)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")

	api.Get("/projects", s.handleListProjects)
	api.Post("/projects", s.handleCreateProject)
	api.Post("/projects/import", s.handleImportProject)
	api.Get("/projects/:id", s.handleGetProject)
	api.Delete("/projects/:id", s.handleDeleteProject)
	api.Get("/projects/:id/export", s.handleExportProject)
	api.Get("/projects/:id/events", s.handleEvents)

	api.Post("/projects/:id/variables", s.handleAddVariable)
	api.Put("/projects/:id/variables/:name", s.handleRenameVariable)
	api.Delete("/projects/:id/variables/:name", s.handleRemoveVariable)

	api.Post("/projects/:id/diagrams", s.handleAddDiagram)
	api.Patch("/projects/:id/diagrams/:diagram", s.handleRenameDiagram)
	api.Delete("/projects/:id/diagrams/:diagram", s.handleRemoveDiagram)
	api.Get("/projects/:id/diagrams/:diagram/render", s.handleRenderDiagram)

	api.Post("/projects/:id/diagrams/:diagram/nodes", s.handleAddNode)
	api.Patch("/projects/:id/diagrams/:diagram/nodes/:node", s.handleUpdateNode)
	api.Delete("/projects/:id/diagrams/:diagram/nodes/:node", s.handleRemoveNode)

	api.Post("/projects/:id/diagrams/:diagram/edges", s.handleConnect)
	api.Put("/projects/:id/diagrams/:diagram/edges", s.handleRetarget)
	api.Delete("/projects/:id/diagrams/:diagram/edges", s.handleDisconnect)

	api.Get("/projects/:id/validate", s.handleValidate)
	api.Post("/projects/:id/generate", s.handleGenerate)
	api.Get("/projects/:id/generations", s.handleListGenerations)
	api.Get("/projects/:id/programs", s.handlePrograms)
	api.Post("/projects/:id/run", s.handleRun)
	api.Post("/projects/:id/trials", s.handleTrials)
}

// correlate puts the request ID into the request context and logs every
// request once it has been handled.
func (s *Server) correlate(c fiber.Ctx) error {
	ctx := logging.WithRequestID(c.Context(), requestid.FromContext(c))
	c.SetContext(ctx)

	start := time.Now()
	err := c.Next()
	if err != nil {
		// let the error handler set the status before logging it
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	logging.LogWith(ctx, s.deps.Logger).Info("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": s.deps.Version})
}
