// Package router configures the HTTP routes for the API.
package router

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/keyfob-io/keyfob/internal/api/handler"
	"github.com/keyfob-io/keyfob/internal/api/middleware"
	"github.com/keyfob-io/keyfob/internal/metrics"
	"github.com/keyfob-io/keyfob/pkg/bind"
)

// Config holds router configuration.
type Config struct {
	// Version is reported by the health endpoint.
	Version string

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates the HTTP router with all routes configured. Every key
// operation is dispatched through the bind surface, so the REST API and
// the CLI share one implementation.
func New(cfg Config, surface *bind.Surface) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.CORS)
	r.Use(middleware.Metrics)

	healthHandler := handler.NewHealthHandler(cfg.Version, surface)
	keyHandler := handler.NewKeyHandler(surface)
	verifyHandler := handler.NewVerifyHandler(surface)

	// Health and metrics endpoints
	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/keys", func(r chi.Router) {
			r.Post("/", keyHandler.Parse)
			r.Get("/", keyHandler.List)
			r.Post("/generate", keyHandler.Generate)
			r.Get("/{id}", keyHandler.Get)
			r.Delete("/{id}", keyHandler.Release)
			r.Get("/{id}/public", keyHandler.Public)
			r.Get("/{id}/fingerprint", keyHandler.Fingerprint)
			r.Post("/{id}/sign", keyHandler.Sign)
		})

		r.Post("/verify", verifyHandler.Verify)
		r.Get("/stats", healthHandler.Stats)
	})

	return r
}
