package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes(withMetrics bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)

	if withMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/entries", func(r chi.Router) {
			r.Delete("/", s.handleFlush)              // DELETE /api/v1/entries
			r.Get("/{identifier}", s.handleGetEntry)  // GET /api/v1/entries/{identifier}
			r.Head("/{identifier}", s.handleHasEntry) // HEAD /api/v1/entries/{identifier}
			r.Put("/{identifier}", s.handleSetEntry)  // PUT /api/v1/entries/{identifier}
			r.Delete("/{identifier}", s.handleRemoveEntry)
		})

		r.Route("/tags/{tag}", func(r chi.Router) {
			r.Delete("/", s.handleFlushByTag)
			r.Get("/identifiers", s.handleFindIdentifiersByTag)
		})

		r.Post("/gc", s.handleCollectGarbage)
	})
}
