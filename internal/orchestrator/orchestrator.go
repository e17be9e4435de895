// Package orchestrator wires stores, the candle source and the backtest
// service from runtime configuration.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/marketconfig"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/optimize"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
	"backtest-lab/internal/verification"
)

// IngestBatchSize is the number of candles written per InsertBulk call.
const IngestBatchSize = 1000

// ErrIngestFromStore is returned when ingest would read and write the same store.
var ErrIngestFromStore = errors.New("ingest requires a remote candle source")

// Stores groups the storage backends used by the commands.
type Stores struct {
	Candles       storage.CandleStore
	Runs          storage.BacktestRunStore
	Parameters    storage.ParameterStore
	MarketConfigs storage.MarketConfigStore
}

// MemoryStores returns in-memory implementations of every store.
func MemoryStores() *Stores {
	return &Stores{
		Candles:       memory.NewCandleStore(),
		Runs:          memory.NewBacktestRunStore(),
		Parameters:    memory.NewParameterStore(),
		MarketConfigs: memory.NewMarketConfigStore(),
	}
}

// OpenStores connects the configured databases and applies migrations.
// PostgreSQL backs runs, parameters and market configs; ClickHouse backs
// candles. Any store without a DSN stays in memory. The returned cleanup
// closes every opened connection.
func OpenStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Stores, func(), error) {
	stores := MemoryStores()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Runs = pgstore.NewBacktestRunStore(pool)
		stores.Parameters = pgstore.NewParameterStore(pool)
		stores.MarketConfigs = pgstore.NewMarketConfigStore(pool)
		logger.Info().Msg("postgres stores ready")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.Candles = chstore.NewCandleStore(conn)
		logger.Info().Msg("clickhouse candle store ready")
	}

	return stores, cleanup, nil
}

// NewSource builds the candle source named by cfg.Source.
func NewSource(cfg config.Config, candles storage.CandleStore, logger zerolog.Logger) (marketdata.CandleSource, error) {
	switch cfg.Source {
	case config.SourceBinance:
		return marketdata.NewBinanceSource(marketdata.BinanceOptions{
			APIKey:    cfg.APIKey,
			SecretKey: cfg.SecretKey,
			BaseURL:   cfg.BaseURL,
			Interval:  cfg.Interval,
			Logger:    &logger,
		}), nil
	case config.SourceHTTP:
		return marketdata.NewHTTPSource(cfg.BaseURL,
			marketdata.WithTimeout(cfg.RequestTimeout),
			marketdata.WithInterval(cfg.Interval),
			marketdata.WithLogger(logger),
		), nil
	case config.SourceStore:
		if candles == nil {
			return nil, errors.New("store source requires a candle store")
		}
		return marketdata.NewStoreSource(candles), nil
	default:
		return nil, fmt.Errorf("unknown candle source %q", cfg.Source)
	}
}

// Options contains configuration for creating an Orchestrator.
type Options struct {
	Config config.Config
	Stores *Stores

	// Source overrides the configured candle source.
	Source marketdata.CandleSource
	// Generator defaults to signal.RSIGenerator.
	Generator signal.Generator
	Shuffler  optimize.Shuffler
	Progress  func(market string, p optimize.Progress)
	Sleep     marketdata.SleepFunc

	// Persist enables run and parameter persistence.
	Persist bool
	Logger  *zerolog.Logger
}

// Orchestrator holds the wired components for one process.
type Orchestrator struct {
	cfg      config.Config
	stores   *Stores
	source   marketdata.CandleSource
	loader   *marketdata.Loader
	service  *backtest.Service
	verifier *verification.ReplayVerifier
	logger   zerolog.Logger
}

// New wires an Orchestrator. Market overrides from cfg.MarketsFile are seeded
// into the market config store before the service starts.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	stores := opts.Stores
	if stores == nil {
		stores = MemoryStores()
	}
	cfg := opts.Config

	source := opts.Source
	if source == nil {
		var err error
		source, err = NewSource(cfg, stores.Candles, logger)
		if err != nil {
			return nil, err
		}
	}

	span, ok := marketdata.ParseInterval(cfg.Interval)
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", cfg.Interval)
	}
	loader := marketdata.NewLoader(marketdata.LoaderOptions{
		Source:     source,
		PageSize:   cfg.PageSize,
		CandleSpan: span,
		Sleep:      opts.Sleep,
		Logger:     &logger,
	})

	resolver := marketconfig.NewStoreResolver(stores.MarketConfigs)
	if cfg.MarketsFile != "" {
		configs, err := marketconfig.ReadFile(cfg.MarketsFile)
		if err != nil {
			return nil, err
		}
		if err := resolver.Seed(ctx, configs); err != nil {
			return nil, fmt.Errorf("seed market configs: %w", err)
		}
		logger.Info().Int("markets", len(configs)).Str("file", cfg.MarketsFile).Msg("market overrides loaded")
	}

	generator := opts.Generator
	if generator == nil {
		generator = signal.NewRSIGenerator(signal.RSIGeneratorOptions{Logger: &logger})
	}

	svcOpts := backtest.ServiceOptions{
		Loader:      loader,
		Resolver:    resolver,
		Generator:   generator,
		MaxWindow:   cfg.MaxWindow,
		Shuffler:    opts.Shuffler,
		SampleSize:  cfg.SampleSize,
		Parallelism: cfg.Parallelism,
		Progress:    opts.Progress,
		Logger:      &logger,
	}
	// Replays must not store new runs.
	replayer := backtest.NewService(svcOpts)
	if opts.Persist {
		svcOpts.RunStore = stores.Runs
		svcOpts.ParameterStore = stores.Parameters
	}

	return &Orchestrator{
		cfg:      cfg,
		stores:   stores,
		source:   source,
		loader:   loader,
		service:  backtest.NewService(svcOpts),
		verifier: verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			RunStore: stores.Runs,
			Replay:   replayer.RunBacktest,
		}),
		logger: logger,
	}, nil
}

// Service returns the backtest service.
func (o *Orchestrator) Service() *backtest.Service {
	return o.service
}

// Verifier returns the run replay verifier.
func (o *Orchestrator) Verifier() *verification.ReplayVerifier {
	return o.verifier
}

// Stores returns the wired stores.
func (o *Orchestrator) Stores() *Stores {
	return o.stores
}

// Ingest loads [start, end] from the source and writes candles not already in
// the candle store. It returns the number of candles inserted.
func (o *Orchestrator) Ingest(ctx context.Context, market string, start, end time.Time) (int, error) {
	if _, ok := o.source.(*marketdata.StoreSource); ok {
		return 0, ErrIngestFromStore
	}

	candles, err := o.loader.Load(ctx, market, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("load candles: %w", err)
	}

	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.OpenTimeMs
	}
	existing, err := o.stores.Candles.ExistingTimes(ctx, market, times)
	if err != nil {
		return 0, fmt.Errorf("existing candles: %w", err)
	}

	fresh := candles[:0:0]
	for _, c := range candles {
		if _, ok := existing[c.OpenTimeMs]; !ok {
			fresh = append(fresh, c)
		}
	}

	for i := 0; i < len(fresh); i += IngestBatchSize {
		j := i + IngestBatchSize
		if j > len(fresh) {
			j = len(fresh)
		}
		if err := o.stores.Candles.InsertBulk(ctx, fresh[i:j]); err != nil {
			return i, fmt.Errorf("insert candles: %w", err)
		}
	}

	o.logger.Info().
		Str("market", market).
		Int("loaded", len(candles)).
		Int("inserted", len(fresh)).
		Msg("ingest complete")
	return len(fresh), nil
}
