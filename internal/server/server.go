// Package server exposes the decision core over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/khadira1937/xligo/internal/metrics"
	"github.com/khadira1937/xligo/internal/server/handler"
	"github.com/khadira1937/xligo/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Decisions *handler.DecisionHandler
	Incidents *handler.IncidentHandler
	Policies  *handler.PolicyHandler
}

// Server is the headless HTTP API server for the decision core.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and middleware (metrics, logging, auth) wired.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and metrics (no auth required; auth middleware wraps the
	// whole mux, so keep the key empty in dev or front these separately).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Pipeline stages.
	mux.HandleFunc("POST /api/assess", handlers.Decisions.Assess)
	mux.HandleFunc("POST /api/optimize", handlers.Decisions.Optimize)
	mux.HandleFunc("POST /api/validate", handlers.Decisions.Validate)
	mux.HandleFunc("POST /api/decide", handlers.Decisions.Decide)

	// Incident bookkeeping.
	mux.HandleFunc("GET /api/incidents", handlers.Incidents.ListRecent)
	mux.HandleFunc("GET /api/incidents/{id}", handlers.Incidents.Get)
	mux.HandleFunc("GET /api/incidents/{id}/plans", handlers.Incidents.ListPlans)

	// Policy management.
	mux.HandleFunc("GET /api/policies/{user_id}", handlers.Policies.Get)
	mux.HandleFunc("PUT /api/policies/{user_id}", handlers.Policies.Upsert)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = metrics.Middleware(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
