package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FreePeak/ta-mcp-server/internal/config"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/engine"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/server"
	"github.com/FreePeak/ta-mcp-server/internal/usecases"
)

const (
	serverName    = "ta-mcp-server"
	serverVersion = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serverName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gateway := usecases.NewGateway(engine.NewTalibEngine(), cfg.ComputeTimeout, logger)
	orchestrator := usecases.NewOrchestrator(gateway, cfg.BatchTimeout, logger)
	service := usecases.NewAnalysisService(gateway, orchestrator)
	tools := usecases.NewToolRegistry(service, cfg.ToolTimeout, logger)

	info := shared.ServerInfo{Name: serverName, Version: serverVersion}
	srv := server.NewServer(cfg, info, tools, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
