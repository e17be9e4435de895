package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"backtest-lab/internal/config"
	"backtest-lab/internal/logx"
	"backtest-lab/internal/optimize"
	"backtest-lab/internal/orchestrator"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	market := flag.String("market", "", "Market symbol, e.g. BTCUSDT (required)")
	lookbackMonths := flag.Int("lookback-months", 0, "Months of history to search over (0 uses config)")
	sampleSize := flag.Int("sample-size", 0, "Number of grid candidates to evaluate (0 uses config)")
	parallelism := flag.Int("parallelism", 0, "Concurrent candidate evaluations (0 uses config)")
	seed := flag.Int64("seed", 0, "Random seed for candidate sampling (0 for time-based)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage even if DSNs are configured")
	persist := flag.Bool("persist", false, "Persist the selected parameters")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logx.New(cfg.LogLevel, cfg.LogJSON, os.Stderr).With().Str("component", "optimize").Logger()

	if *market == "" {
		logger.Fatal().Msg("--market is required")
	}
	if *lookbackMonths > 0 {
		cfg.LookbackMonths = *lookbackMonths
	}
	if *sampleSize > 0 {
		cfg.SampleSize = *sampleSize
	}
	if *parallelism > 0 {
		cfg.Parallelism = *parallelism
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

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
		Config:   cfg,
		Stores:   stores,
		Shuffler: rand.New(rand.NewSource(*seed)),
		Persist:  *persist,
		Progress: func(market string, p optimize.Progress) {
			ev := logger.Debug().Int("index", p.Index).Int("total", p.Total).Float64("score", p.Score)
			if p.Error != "" {
				ev = ev.Str("error", p.Error)
			}
			ev.Msg("candidate evaluated")
		},
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	logger.Info().
		Str("market", *market).
		Int("lookback_months", cfg.LookbackMonths).
		Int64("seed", *seed).
		Msg("searching parameters")

	params := orch.Service().FindOptimalParameters(ctx, strings.ToUpper(*market), cfg.Simulation, cfg.LookbackMonths)

	if *outputJSON {
		output, _ := json.MarshalIndent(params, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Println()
	fmt.Println("=== Optimal Parameters ===")
	if params.Default {
		fmt.Println("No candidate could be evaluated; showing defaults.")
	}
	fmt.Printf("RSI Oversold:       %.0f\n", params.RSIOversold)
	fmt.Printf("RSI Overbought:     %.0f\n", params.RSIOverbought)
	fmt.Printf("Min Confidence:     %.0f\n", params.MinConfidenceForTrade)
	fmt.Printf("Buy Ratio:          %.2f\n", params.BuyRatio)
	fmt.Printf("Sell Ratio:         %.2f\n", params.SellRatio)
	fmt.Printf("Score:              %.4f\n", params.Score)
	fmt.Printf("Evaluated/Failed:   %d/%d\n", params.Evaluated, params.Failed)
}
