// Package server exposes the workflow control surface over HTTP: start,
// status, cancel, list, plus health and metrics endpoints. Rendering (CLI,
// dashboard) lives with the consumers; this is a thin JSON API.
package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// Server wraps the orchestrator behind a fiber app.
type Server struct {
	orc *engine.Orchestrator
	app *fiber.App
}

// New builds the HTTP server and mounts all routes.
func New(orc *engine.Orchestrator) *Server {
	s := &Server{
		orc: orc,
		app: fiber.New(fiber.Config{DisableStartupMessage: true}),
	}

	api := s.app.Group("/api")
	api.Post("/workflows", s.startWorkflow)
	api.Get("/workflows", s.listWorkflows)
	api.Get("/workflows/:id", s.workflowStatus)
	api.Post("/workflows/:id/cancel", s.cancelWorkflow)

	s.app.Get("/health", s.health)
	s.app.Get("/metrics", s.metrics)
	return s
}

// App exposes the fiber app, used by tests via app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on the given address.
func (s *Server) Listen(addr string) error {
	slog.Info("http server listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) startWorkflow(c *fiber.Ctx) error {
	var body StartWorkflowBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := body.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	req := engine.StartRequest{Platforms: body.Platforms}
	for _, handle := range body.Accounts {
		req.Accounts = append(req.Accounts, engine.TargetAccount{
			Handle:   handle,
			MaxItems: body.MaxItems,
		})
	}

	id, err := s.orc.Start(c.Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"workflow_id": id})
}

func (s *Server) workflowStatus(c *fiber.Ctx) error {
	run, err := s.orc.Status(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(run)
}

func (s *Server) cancelWorkflow(c *fiber.Ctx) error {
	if err := s.orc.Cancel(c.Context(), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancelled"})
}

func (s *Server) listWorkflows(c *fiber.Ctx) error {
	runs, err := s.orc.List(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"workflows": runs, "total": len(runs)})
}

// health reports per-publisher credential validity. 503 when any platform
// is unhealthy.
func (s *Server) health(c *fiber.Ctx) error {
	report := s.orc.Health(c.Context())
	status := fiber.StatusOK
	for _, detail := range report {
		if detail != "" {
			status = fiber.StatusServiceUnavailable
			break
		}
	}
	return c.Status(status).JSON(fiber.Map{"platforms": report})
}

func (s *Server) metrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(engine.FormatMetrics())
}

// errorResponse maps classified engine errors to HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var ce *engine.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case engine.KindNotFound:
			status = fiber.StatusNotFound
		case engine.KindValidation:
			status = fiber.StatusBadRequest
		case engine.KindAuth:
			status = fiber.StatusUnauthorized
		case engine.KindRateLimited:
			status = fiber.StatusTooManyRequests
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
