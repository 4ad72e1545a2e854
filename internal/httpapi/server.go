package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cosmoz-server/internal/config"
)

// NewServer has no WriteTimeout: tabular downloads stream for as long as the
// client keeps reading.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// HTTPServer is the lifecycle surface of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// ServerService runs an HTTP server under a supervisor.
type ServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	logger          *slog.Logger
	addr            string
}

func NewServerService(server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) *ServerService {
	return newServerService(server, server.Addr, shutdownTimeout, logger)
}

func newServerService(server HTTPServer, addr string, shutdownTimeout time.Duration, logger *slog.Logger) *ServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerService{server: server, shutdownTimeout: shutdownTimeout, logger: logger, addr: addr}
}

// Serve blocks until ctx ends or the listener fails. http.ErrServerClosed is
// not an error.
func (s *ServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Info("http shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *ServerService) String() string { return "http-server" }
