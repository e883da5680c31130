// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/container"
	"github.com/AtRiskMedia/cartrecovery-go/internal/presentation/http/routes"
	"github.com/AtRiskMedia/cartrecovery-go/pkg/config"
)

// Server wraps the HTTP server with configuration and dependency injection
type Server struct {
	httpServer *http.Server
	container  *container.Container
	cancel     context.CancelFunc
}

// New creates a new HTTP server instance with dependency injection
func New(port string, container *container.Container) *Server {
	router := routes.SetupRoutes(container)
	baseCtx, cancel := context.WithCancel(context.Background())

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	return &Server{
		httpServer: httpServer,
		container:  container,
		cancel:     cancel,
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server. Request contexts are cancelled
// first so open SSE streams return instead of holding Shutdown open.
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.Shutdown().Info("Shutting down HTTP server...", "sseClients", s.container.Broadcaster.ClientCount())
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}
