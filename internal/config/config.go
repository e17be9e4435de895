// Package config loads runtime settings from defaults, an optional config
// file and BACKTEST_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"backtest-lab/internal/decision"
	"backtest-lab/internal/domain"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "BACKTEST"

// Candle source kinds.
const (
	SourceBinance = "binance"
	SourceHTTP    = "http"
	SourceStore   = "store"
)

// Config holds all runtime settings.
type Config struct {
	LogLevel string
	LogJSON  bool

	Source         string
	BaseURL        string
	APIKey         string
	SecretKey      string
	Interval       string
	PageSize       int
	RequestTimeout time.Duration

	PostgresDSN   string
	ClickHouseDSN string
	MarketsFile   string

	MaxWindow      int
	SampleSize     int
	Parallelism    int
	LookbackMonths int
	Simulation     domain.SimulationConfig
	Gate           decision.Thresholds

	ServerAddr string
}

// Load reads settings. path optionally names a YAML config file; environment
// variables (BACKTEST_SOURCE_KIND, BACKTEST_SIMULATION_BUY_RATIO, ...) take
// precedence over it.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	sim := domain.SimulationConfig{
		RSIOverbought:         v.GetFloat64("simulation.rsi_overbought"),
		RSIOversold:           v.GetFloat64("simulation.rsi_oversold"),
		MinConfidenceForTrade: v.GetFloat64("simulation.min_confidence"),
		BuyRatio:              v.GetFloat64("simulation.buy_ratio"),
		SellRatio:             v.GetFloat64("simulation.sell_ratio"),
		DynamicConfidence:     v.GetBool("simulation.dynamic_confidence"),
		InitialCapital:        v.GetFloat64("simulation.initial_capital"),
		MinOrderValue:         v.GetFloat64("simulation.min_order_value"),
	}

	cfg := Config{
		LogLevel: v.GetString("log.level"),
		LogJSON:  v.GetBool("log.json"),

		Source:         strings.ToLower(v.GetString("source.kind")),
		BaseURL:        v.GetString("source.base_url"),
		APIKey:         v.GetString("source.api_key"),
		SecretKey:      v.GetString("source.secret_key"),
		Interval:       v.GetString("source.interval"),
		PageSize:       v.GetInt("source.page_size"),
		RequestTimeout: v.GetDuration("source.timeout"),

		PostgresDSN:   v.GetString("postgres.dsn"),
		ClickHouseDSN: v.GetString("clickhouse.dsn"),
		MarketsFile:   v.GetString("markets_file"),

		MaxWindow:      v.GetInt("engine.max_window"),
		SampleSize:     v.GetInt("optimize.sample_size"),
		Parallelism:    v.GetInt("optimize.parallelism"),
		LookbackMonths: v.GetInt("optimize.lookback_months"),
		Simulation:     sim,
		Gate: decision.Thresholds{
			MinSellTrades:  v.GetInt("gate.min_sell_trades"),
			MinWinRate:     v.GetFloat64("gate.min_win_rate"),
			MinTotalReturn: v.GetFloat64("gate.min_total_return"),
			MaxDrawdown:    v.GetFloat64("gate.max_drawdown"),
			MinSharpe:      v.GetFloat64("gate.min_sharpe"),
			MaxLossStreak:  v.GetInt("gate.max_loss_streak"),
		},

		ServerAddr: v.GetString("server.addr"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded settings.
func (c Config) Validate() error {
	switch c.Source {
	case SourceBinance, SourceHTTP, SourceStore:
	default:
		return &domain.ConfigValidationError{Field: "source.kind", Reason: fmt.Sprintf("unknown source %q", c.Source)}
	}
	if c.Source == SourceHTTP && c.BaseURL == "" {
		return &domain.ConfigValidationError{Field: "source.base_url", Reason: "required for http source"}
	}
	if c.PageSize <= 0 {
		return &domain.ConfigValidationError{Field: "source.page_size", Reason: "must be positive"}
	}
	if c.LookbackMonths <= 0 {
		return &domain.ConfigValidationError{Field: "optimize.lookback_months", Reason: "must be positive"}
	}
	return c.Simulation.Validate()
}

func setDefaults(v *viper.Viper) {
	sim := domain.DefaultSimulationConfig()
	gate := decision.DefaultThresholds()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("source.kind", SourceBinance)
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.secret_key", "")
	v.SetDefault("source.interval", "1h")
	v.SetDefault("source.page_size", 200)
	v.SetDefault("source.timeout", 30*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("markets_file", "")

	v.SetDefault("engine.max_window", 200)
	v.SetDefault("optimize.sample_size", 20)
	v.SetDefault("optimize.parallelism", 1)
	v.SetDefault("optimize.lookback_months", 6)

	v.SetDefault("simulation.rsi_overbought", sim.RSIOverbought)
	v.SetDefault("simulation.rsi_oversold", sim.RSIOversold)
	v.SetDefault("simulation.min_confidence", sim.MinConfidenceForTrade)
	v.SetDefault("simulation.buy_ratio", sim.BuyRatio)
	v.SetDefault("simulation.sell_ratio", sim.SellRatio)
	v.SetDefault("simulation.dynamic_confidence", sim.DynamicConfidence)
	v.SetDefault("simulation.initial_capital", domain.DefaultInitialCapital)
	v.SetDefault("simulation.min_order_value", domain.DefaultMinOrderValue)

	v.SetDefault("gate.min_sell_trades", gate.MinSellTrades)
	v.SetDefault("gate.min_win_rate", gate.MinWinRate)
	v.SetDefault("gate.min_total_return", gate.MinTotalReturn)
	v.SetDefault("gate.max_drawdown", gate.MaxDrawdown)
	v.SetDefault("gate.min_sharpe", gate.MinSharpe)
	v.SetDefault("gate.max_loss_streak", gate.MaxLossStreak)

	v.SetDefault("server.addr", ":8080")
}
