// Package main warms the candle cache: it pages candles from the configured
// remote source and writes the ones not yet stored.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"backtest-lab/internal/config"
	"backtest-lab/internal/logx"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	markets := flag.String("market", "", "Comma-separated market symbols (required)")
	startStr := flag.String("start", "", "Range start (RFC3339 or YYYY-MM-DD, required)")
	endStr := flag.String("end", "", "Range end (RFC3339 or YYYY-MM-DD, defaults to now)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logx.New(cfg.LogLevel, cfg.LogJSON, os.Stderr).With().Str("component", "ingest").Logger()

	marketList := splitMarkets(*markets)
	if len(marketList) == 0 {
		logger.Fatal().Msg("--market is required")
	}
	start, err := parseTime(*startStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --start")
	}
	end := time.Now().UTC()
	if *endStr != "" {
		if end, err = parseTime(*endStr); err != nil {
			logger.Fatal().Err(err).Msg("invalid --end")
		}
	}
	if cfg.Source == config.SourceStore {
		logger.Fatal().Msg("ingest needs a remote source; set source.kind to binance or http")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Info().Str("addr", *metricsAddr).Msg("starting metrics server")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; a second signal exits immediately
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		sig = <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("forcing exit")
		os.Exit(1)
	}()

	stores, cleanup, err := orchestrator.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()
	if cfg.ClickHouseDSN == "" {
		logger.Warn().Msg("no clickhouse dsn configured; candles are kept in memory and lost on exit")
	}

	orch, err := orchestrator.New(ctx, orchestrator.Options{
		Config: cfg,
		Stores: stores,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	failed := 0
	for _, m := range marketList {
		if ctx.Err() != nil {
			break
		}
		n, err := orch.Ingest(ctx, m, start, end)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("market", m).Msg("ingest failed")
			continue
		}
		logger.Info().Str("market", m).Int("inserted", n).Msg("market ingested")
	}

	if failed > 0 {
		logger.Error().Int("failed", failed).Int("markets", len(marketList)).Msg("ingest finished with errors")
		os.Exit(1)
	}
	logger.Info().Msg("ingest complete")
}

func splitMarkets(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// parseTime accepts RFC3339 timestamps or plain dates (UTC midnight).
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
