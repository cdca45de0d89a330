// Package server runs the HTTP or HTTPS listener with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentinel/internal/certs"
	"sentinel/internal/config"
)

const defaultShutdownTimeout = 10 * time.Second

// Server is the HTTP server for the classifier API.
type Server struct {
	httpServer      *http.Server
	listener        net.Listener
	bundle          certs.Result
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// New creates a server for handler. TLS is enabled when bundle carries a
// certificate.
func New(cfg config.ServerConfig, handler http.Handler, bundle certs.Result, logger *zap.Logger) *Server {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    bundle.TLS,
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &Server{
		httpServer:      srv,
		bundle:          bundle,
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// Listen binds the configured address. Run calls it when needed.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Scheme is "https" when serving TLS.
func (s *Server) Scheme() string {
	if s.bundle.Secure() {
		return "https"
	}
	return "http"
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server starting",
			zap.String("address", s.listener.Addr().String()),
			zap.String("scheme", s.Scheme()),
			zap.String("tls_mode", string(s.bundle.Mode)))

		var err error
		if s.bundle.Secure() {
			err = s.httpServer.ServeTLS(s.listener, "", "")
		} else {
			err = s.httpServer.Serve(s.listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		s.logger.Info("Server exited")
		return nil
	})

	return g.Wait()
}
