// Package main serves the backtest engine over HTTP: synchronous backtest and
// parameter search endpoints, a websocket progress stream and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"backtest-lab/internal/config"
	"backtest-lab/internal/logx"
	"backtest-lab/internal/orchestrator"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (empty uses config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage even if DSNs are configured")
	persist := flag.Bool("persist", true, "Persist runs and parameters")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	logger := logx.New(cfg.LogLevel, cfg.LogJSON, os.Stderr).With().Str("component", "server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := orchestrator.MemoryStores()
	if !*useMemory {
		var cleanup func()
		stores, cleanup, err = orchestrator.OpenStores(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open stores")
		}
		defer cleanup()
	}

	orch, err := orchestrator.New(ctx, orchestrator.Options{
		Config:  cfg,
		Stores:  stores,
		Persist: *persist,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	srv := NewServer(orch.Service(), orch.Verifier(), cfg.Simulation, cfg.LookbackMonths, logger)
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
