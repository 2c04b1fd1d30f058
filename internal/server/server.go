// Package server exposes the data sources over HTTP for callers that
// prefer a local API over the CLI.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fedseries/fedseries/internal/config"
	"github.com/fedseries/fedseries/internal/observability"
	"github.com/fedseries/fedseries/internal/source"
)

// Server represents the HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	sources map[string]source.DataSource
}

// New creates the server. sources maps source names to connected
// clients; a request naming a missing source gets a configuration error.
func New(cfg config.ServerConfig, logger *zap.Logger, metrics *observability.Metrics, sources map[string]source.DataSource) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		sources: sources,
	}

	// Middleware order: RealIP, then request ID for correlation, then
	// metrics and logging around everything, recovery outermost.
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestID)
	s.router.Use(s.requestMetrics)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recovery)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorStatus(w, r, http.StatusNotFound, "not_found", "the requested resource was not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorStatus(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "the requested method is not allowed for this resource")
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/version", s.handleVersion)

	if s.metrics != nil && s.cfg.MetricsEnabled {
		s.router.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.handleSources)
		r.Get("/series", s.handleSeries)
		r.Get("/metadata", s.handleMetadata)
	})
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
