package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"backtest-lab/internal/config"
	"backtest-lab/internal/decision"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/logx"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/reporting"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	market := flag.String("market", "", "Market symbol, e.g. BTCUSDT (required)")
	startStr := flag.String("start", "", "Range start (RFC3339 or YYYY-MM-DD, required)")
	endStr := flag.String("end", "", "Range end (RFC3339 or YYYY-MM-DD, required)")

	// Parameter overrides (zero keeps the configured value)
	oversold := flag.Float64("rsi-oversold", 0, "RSI oversold threshold")
	overbought := flag.Float64("rsi-overbought", 0, "RSI overbought threshold")
	minConfidence := flag.Float64("min-confidence", 0, "Minimum confidence for trades")
	buyRatio := flag.Float64("buy-ratio", 0, "Fraction of capital per BUY")
	sellRatio := flag.Float64("sell-ratio", 0, "Fraction of position per SELL")
	dynamic := flag.Bool("dynamic-confidence", false, "Raise min confidence after losing streaks")

	// Storage
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage even if DSNs are configured")
	persist := flag.Bool("persist", false, "Persist the run to storage")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	reportDir := flag.String("report-dir", "", "Write report.md, trades.csv and result.json to this directory")
	gate := flag.Bool("gate", false, "Evaluate the GO/NO-GO deployment gate")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logx.New(cfg.LogLevel, cfg.LogJSON, os.Stderr).With().Str("component", "backtest").Logger()

	// Validate required flags
	if *market == "" {
		logger.Fatal().Msg("--market is required")
	}
	start, err := parseTime(*startStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --start")
	}
	end, err := parseTime(*endStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --end")
	}

	simCfg := cfg.Simulation
	applyOverride(&simCfg.RSIOversold, *oversold)
	applyOverride(&simCfg.RSIOverbought, *overbought)
	applyOverride(&simCfg.MinConfidenceForTrade, *minConfidence)
	applyOverride(&simCfg.BuyRatio, *buyRatio)
	applyOverride(&simCfg.SellRatio, *sellRatio)
	if *dynamic {
		simCfg.DynamicConfidence = true
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
		Config:  cfg,
		Stores:  stores,
		Persist: *persist,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	logger.Info().
		Str("market", *market).
		Time("start", start).
		Time("end", end).
		Msg("running backtest")

	result, err := orch.Service().RunBacktest(ctx, strings.ToUpper(*market), start, end, simCfg)
	if err != nil {
		exitOnError(logger, err)
	}

	if *reportDir != "" {
		if _, err := reporting.NewGenerator().WriteFiles(*reportDir, result); err != nil {
			logger.Fatal().Err(err).Msg("write report")
		}
		logger.Info().Str("dir", *reportDir).Msg("report written")
	}

	var gateResult *decision.DecisionResult
	if *gate {
		input, err := decision.BuildInput(result)
		if err != nil {
			logger.Fatal().Err(err).Msg("build gate input")
		}
		gateResult, err = decision.NewEvaluator(cfg.Gate).Evaluate(*input)
		if err != nil {
			logger.Fatal().Err(err).Msg("evaluate gate")
		}
	}

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(result)
	}
	if gateResult != nil {
		fmt.Println()
		fmt.Print(decision.RenderMarkdown(gateResult))
	}
}

// exitOnError logs err with a hint for the known error kinds and exits.
func exitOnError(logger zerolog.Logger, err error) {
	var cve *domain.ConfigValidationError
	var die *domain.DataInsufficientError
	switch {
	case errors.As(err, &cve):
		logger.Error().Err(err).Str("field", cve.Field).Msg("invalid configuration")
		os.Exit(2)
	case errors.As(err, &die):
		logger.Error().Err(err).Int("candles", die.Count).Msg("not enough history for this range")
		os.Exit(3)
	default:
		logger.Error().Err(err).Msg("backtest failed")
		os.Exit(1)
	}
}

func applyOverride(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
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

// printResult outputs a human-readable summary.
func printResult(r *domain.BacktestResult) {
	p := r.Performance
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Println(reporting.FeeBanner)
	fmt.Println()
	if r.RunID != "" {
		fmt.Printf("Run ID:             %s\n", r.RunID)
	}
	fmt.Printf("Market:             %s\n", r.Market)
	fmt.Printf("Period:             %s to %s (%d days)\n",
		time.UnixMilli(r.Period.Start).UTC().Format(time.RFC3339),
		time.UnixMilli(r.Period.End).UTC().Format(time.RFC3339),
		r.Period.Days)
	fmt.Println()

	fmt.Println("Capital:")
	fmt.Printf("  Initial:          %.2f\n", p.InitialCapital)
	fmt.Printf("  Final:            %.2f\n", p.FinalCapital)
	fmt.Printf("  Total Return:     %.2f%%\n", p.TotalReturn)
	fmt.Printf("  Max Drawdown:     %.2f%%\n", p.MaxDrawdown)
	fmt.Println()

	fmt.Println("Trades:")
	fmt.Printf("  Total:            %d\n", p.TotalTrades)
	fmt.Printf("  Sells:            %d (%d wins, %d losses)\n", p.SellTrades, p.WinTrades, p.LossTrades)
	fmt.Printf("  Win Rate:         %.2f%%\n", p.WinRate)
	fmt.Printf("  Average Return:   %.4f%%\n", p.AverageReturn)
	fmt.Printf("  Max Profit:       %.4f%%\n", p.MaxProfit)
	fmt.Printf("  Max Loss:         %.4f%%\n", p.MaxLoss)
	fmt.Printf("  Sharpe Ratio:     %.4f\n", p.SharpeRatio)
	fmt.Println()

	fmt.Println("Market Conditions:")
	for _, row := range []struct {
		name  string
		stats domain.RegimeStats
	}{
		{"Bull", r.MarketConditions.BullMarket},
		{"Bear", r.MarketConditions.BearMarket},
		{"Sideways", r.MarketConditions.SidewaysMarket},
	} {
		fmt.Printf("  %-9s periods=%d sells=%d win_rate=%.2f%% avg=%.4f%%\n",
			row.name+":", row.stats.Periods, row.stats.SellTrades, row.stats.WinRate, row.stats.AverageReturn)
	}
}
