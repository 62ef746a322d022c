// Package server provides the switchd HTTP surface.
//
// The server maps 1:1 onto the coordinator's operations: activate a
// project, read status, invalidate stale resources, signal memory
// pressure. Project registration is exposed alongside so operator
// tooling has a single endpoint to talk to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/config"
	"github.com/fyrsmithlabs/switchd/internal/coordinator"
	"github.com/fyrsmithlabs/switchd/internal/registry"
	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// Server is the switchd HTTP server.
type Server struct {
	cfg      config.ServerConfig
	echo     *echo.Echo
	coord    *coordinator.Coordinator
	registry *registry.Registry
	logger   *zap.Logger
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// RegisterRequest is the JSON body for POST /v1/projects.
type RegisterRequest struct {
	Name          string `json:"name"`
	WorkspacePath string `json:"workspace_path"`
}

// PressureRequest is the JSON body for POST /v1/memory-pressure.
type PressureRequest struct {
	Severity string `json:"severity"`
}

// PressureResponse reports memory-pressure eviction counts.
type PressureResponse struct {
	Evicted int `json:"evicted"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates the HTTP server.
func New(cfg config.ServerConfig, coord *coordinator.Coordinator, reg *registry.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:      cfg,
		echo:     e,
		coord:    coord,
		registry: reg,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/projects", s.handleListProjects)
	v1.POST("/projects", s.handleRegisterProject)
	v1.DELETE("/projects/:id", s.handleDeleteProject)
	v1.POST("/projects/:id/activate", s.handleActivate)
	v1.POST("/projects/:id/invalidate", s.handleInvalidate)
	v1.POST("/memory-pressure", s.handleMemoryPressure)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "switchd"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coord.Status())
}

func (s *Server) handleListProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) handleRegisterProject(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	project, err := s.registry.Register(req.Name, req.WorkspacePath)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidName) || errors.Is(err, registry.ErrPathTraversal) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	project, err := s.resolveProject(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	}

	if err := s.registry.Delete(project.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	// Deleted projects must not linger hot in any cache.
	if err := s.coord.Invalidate(project.ID, resource.KindUnknown); err != nil {
		s.logger.Warn("failed to invalidate deleted project",
			zap.String("project_id", project.ID), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleActivate(c echo.Context) error {
	project, err := s.resolveProject(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	}

	result, err := s.coord.Activate(c.Request().Context(), project.ID)
	if err != nil {
		// Degraded switch: the previous project stays active; report
		// which resource failed so the client can degrade gracefully.
		if result != nil && result.Degraded {
			return c.JSON(http.StatusServiceUnavailable, result)
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleInvalidate(c echo.Context) error {
	project, err := s.resolveProject(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	}

	kind := resource.Kind(c.QueryParam("kind"))
	if kind != resource.KindUnknown && !kind.Valid() {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid resource kind: %q", kind)})
	}

	if err := s.coord.Invalidate(project.ID, kind); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMemoryPressure(c echo.Context) error {
	var req PressureRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	evicted, err := s.coord.OnMemoryPressure(coordinator.Severity(req.Severity))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, PressureResponse{Evicted: evicted})
}

// resolveProject accepts either a project ID or a registered name.
func (s *Server) resolveProject(idOrName string) (*registry.Project, error) {
	if project, err := s.registry.Get(idOrName); err == nil {
		return project, nil
	}
	return s.registry.GetByName(idOrName)
}

// Start starts the HTTP server and blocks until ctx is cancelled.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes in tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
