package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CreativeUnicorns/elasticcache"
	"github.com/go-chi/chi/v5"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	backend    elasticcache.TaggableBackend
	logger     elasticcache.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// Config holds configuration for the API server.
type Config struct {
	ListenAddress string
	Backend       elasticcache.TaggableBackend
	Logger        elasticcache.Logger
	// DisableMetrics removes the /metrics endpoint.
	DisableMetrics bool
}

// NewServer creates and configures a new API server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", elasticcache.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = elasticcache.NewDefaultLogger()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	s := &Server{
		backend: cfg.Backend,
		logger:  cfg.Logger,
		router:  chi.NewRouter(),
	}

	s.setupRoutes(!cfg.DisableMetrics)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until it is shut down or fails to serve.
// A graceful shutdown via Stop makes Start return nil.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("API server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped gracefully")
	return nil
}
