// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/qp12/internal/api/handler"
	"github.com/remiblancher/qp12/internal/api/middleware"
	"github.com/remiblancher/qp12/internal/api/service"
	"github.com/remiblancher/qp12/pkg/p12"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version      string
	Codec        *p12.Codec
	Logger       *slog.Logger
	MaxBodyBytes int64

	// RateLimit caps /api/v1 requests per second; zero disables it.
	RateLimit float64
	RateBurst int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS)

	svc := service.NewPKCS12Service(cfg.Codec)

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version, svc)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	pkcs12Handler := handler.NewPKCS12Handler(svc)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
		r.Use(middleware.Actor)
		r.Use(middleware.MaxBody(cfg.MaxBodyBytes))

		r.Post("/pkcs12", pkcs12Handler.Build)
		r.Post("/pkcs12/repassphrase", pkcs12Handler.Repassphrase)
		r.Post("/pkcs12/inspect", pkcs12Handler.Inspect)

		r.Get("/providers", pkcs12Handler.Providers)
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
