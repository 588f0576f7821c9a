package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/remiblancher/qp12/internal/api/router"
	"github.com/remiblancher/qp12/pkg/p12"
)

// Server represents the HTTP server.
type Server struct {
	cfg     *Config
	version string
	codec   *p12.Codec
	logger  *slog.Logger
	srv     *http.Server
}

// New creates a new Server.
func New(cfg *Config, version string, codec *p12.Codec, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		version: version,
		codec:   codec,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr: cfg.Address(),
		Handler: router.New(&router.Config{
			Version:      version,
			Codec:        codec,
			Logger:       logger,
			MaxBodyBytes: cfg.MaxBodyBytes,
			RateLimit:    cfg.RateLimit,
			RateBurst:    cfg.RateBurst,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLS() {
			errChan <- s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.Serve(ln)
		}
	}()

	s.logger.Info("server started",
		"address", ln.Addr().String(),
		"tls", s.cfg.TLS(),
		"engine", s.codec.Engine(),
		"providers", s.codec.Providers(),
	)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// ListenAndRun listens on the configured address and calls Run.
func (s *Server) ListenAndRun(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Run(ctx, ln)
}

// PrintEndpoints writes the available endpoints to w.
func (s *Server) PrintEndpoints(w io.Writer) {
	scheme := "http"
	if s.cfg.TLS() {
		scheme = "https"
	}
	_, _ = fmt.Fprintf(w, "qp12 API server %s on %s://%s\n", s.version, scheme, s.cfg.Address())
	_, _ = fmt.Fprintln(w, "Endpoints:")
	_, _ = fmt.Fprintln(w, "  GET  /health                      - Health check")
	_, _ = fmt.Fprintln(w, "  GET  /ready                       - Provider readiness")
	_, _ = fmt.Fprintln(w, "  GET  /api/openapi.yaml            - OpenAPI specification")
	_, _ = fmt.Fprintln(w, "  POST /api/v1/pkcs12               - Build a container")
	_, _ = fmt.Fprintln(w, "  POST /api/v1/pkcs12/repassphrase  - Change a container passphrase")
	_, _ = fmt.Fprintln(w, "  POST /api/v1/pkcs12/inspect       - Inspect a container")
	_, _ = fmt.Fprintln(w, "  GET  /api/v1/providers            - Provider probe")
}
