// Package server provides the HTTP server hosting the REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyfob-io/keyfob/internal/api/router"
	"github.com/keyfob-io/keyfob/internal/audit"
	"github.com/keyfob-io/keyfob/pkg/bind"
)

// Server is the REST API server.
type Server struct {
	cfg     Config
	version string
	log     *slog.Logger
	handler http.Handler
}

// New creates a server serving the given bind surface.
func New(cfg Config, version string, surface *bind.Surface, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		version: version,
		log:     log,
		handler: router.New(router.Config{Version: version, Logger: log}, surface),
	}
}

// Handler returns the server's HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the server until the context is canceled or a SIGINT/SIGTERM
// arrives, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	// Audit: service startup, after the listener is bound.
	if err := audit.LogServiceStarted(ln.Addr().String(), s.version); err != nil {
		ln.Close()
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		var serveErr error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			s.log.Info("server listening", "addr", ln.Addr().String(), "tls", true)
			serveErr = srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			s.log.Info("server listening", "addr", ln.Addr().String(), "tls", false)
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.log.Info("shutting down", "reason", "context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
