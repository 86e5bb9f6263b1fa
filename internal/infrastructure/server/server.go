package server

import (
	"context"
	"net/http"

	"go.uber.org/multierr"

	"github.com/FreePeak/ta-mcp-server/internal/config"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/ta-mcp-server/internal/usecases"
)

// Server assembles the protocol gate, the session registry, and the direct
// API on one HTTP listener and owns their lifecycle.
type Server struct {
	httpServer *http.Server
	registry   *SessionRegistry
	logger     *logging.Logger
}

// NewServer wires the server from configuration and the tool layer.
func NewServer(cfg config.Config, info shared.ServerInfo, tools *usecases.ToolRegistry, logger *logging.Logger) *Server {
	registry := NewSessionRegistry(RegistryConfig{
		InactivityTimeout: cfg.SessionTimeout,
		SweepInterval:     cfg.SweepInterval,
		AutoRecreate:      cfg.AutoRecreate,
	}, logger)

	gate := NewProtocolGate(info, registry, tools, logger)
	rest := NewRESTHandler(tools, logger)

	mux := http.NewServeMux()
	mux.Handle("/mcp", gate)
	rest.Register(mux)

	return &Server{
		httpServer: &http.Server{Addr: cfg.ServerAddr, Handler: mux},
		registry:   registry,
		logger:     logger,
	}
}

// Registry exposes the session registry, mainly for tests and diagnostics.
func (s *Server) Registry() *SessionRegistry {
	return s.registry
}

// Start launches the eviction sweep and serves until the listener closes.
func (s *Server) Start() error {
	s.registry.Start()
	s.logger.Info("server listening", logging.Fields{"addr": s.httpServer.Addr})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting traffic, then tears down every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return multierr.Append(err, s.registry.Shutdown())
}
