// Package backtest exposes the backtest and parameter search entry points.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/marketconfig"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/optimize"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/simulation"
	"backtest-lab/internal/storage"
)

// DefaultLookbackMonths is the parameter search range when none is given.
const DefaultLookbackMonths = 6

// ErrPersistenceDisabled is returned by lookups when no store is configured.
var ErrPersistenceDisabled = errors.New("persistence disabled")

// CandleLoader loads an ascending, deduplicated candle series.
type CandleLoader interface {
	Load(ctx context.Context, market string, startMs, endMs int64) ([]domain.Candle, error)
}

// ServiceOptions contains configuration for creating a Service.
// RunStore and ParameterStore are optional; results are persisted only when set.
type ServiceOptions struct {
	Loader         CandleLoader
	Resolver       marketconfig.Resolver
	Generator      signal.Generator
	MaxWindow      int
	RunStore       storage.BacktestRunStore
	ParameterStore storage.ParameterStore

	Shuffler    optimize.Shuffler
	SampleSize  int
	Parallelism int
	Progress    func(market string, p optimize.Progress)

	Now    func() time.Time
	Logger *zerolog.Logger
}

// Service runs backtests and parameter searches for one market at a time.
// It holds no per-run state and is safe for concurrent use.
type Service struct {
	loader   CandleLoader
	resolver marketconfig.Resolver
	runner   *simulation.Runner
	runs     storage.BacktestRunStore
	params   storage.ParameterStore
	shuffler optimize.Shuffler
	sample   int
	parallel int
	progress func(string, optimize.Progress)
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a Service. A nil Resolver yields marketconfig.Default for
// every market; a nil Shuffler uses a time-seeded source.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		loader:   opts.Loader,
		resolver: opts.Resolver,
		runs:     opts.RunStore,
		params:   opts.ParameterStore,
		shuffler: opts.Shuffler,
		sample:   opts.SampleSize,
		parallel: opts.Parallelism,
		progress: opts.Progress,
		now:      opts.Now,
		logger:   zerolog.Nop(),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.resolver == nil {
		s.resolver = marketconfig.NewStatic()
	}
	if s.shuffler == nil {
		s.shuffler = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.shuffler = &lockedShuffler{s: s.shuffler}
	if s.now == nil {
		s.now = time.Now
	}
	s.runner = simulation.NewRunner(simulation.RunnerOptions{
		Generator: opts.Generator,
		MaxWindow: opts.MaxWindow,
		Logger:    &s.logger,
	})
	return s
}

// RunBacktest loads candles for [start, end], simulates cfg over them and
// aggregates the ledger. It returns a complete result or an error, never a
// partial result. Insufficient data surfaces as *domain.DataInsufficientError.
func (s *Service) RunBacktest(ctx context.Context, market string, start, end time.Time, cfg domain.SimulationConfig) (*domain.BacktestResult, error) {
	started := time.Now()
	result, err := s.runBacktest(ctx, market, start, end, cfg)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordBacktestRun(status, time.Since(started).Seconds())
	return result, err
}

func (s *Service) runBacktest(ctx context.Context, market string, start, end time.Time, cfg domain.SimulationConfig) (*domain.BacktestResult, error) {
	if market == "" {
		return nil, &domain.ConfigValidationError{Field: "market", Reason: "must not be empty"}
	}
	if !end.After(start) {
		return nil, &domain.ConfigValidationError{Field: "period", Reason: "end must be after start"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.With().Str("market", market).Logger()
	startMs, endMs := start.UnixMilli(), end.UnixMilli()

	candles, err := s.loader.Load(ctx, market, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}

	mc, err := s.marketConfig(ctx, market)
	if err != nil {
		return nil, err
	}

	report, outcome, err := s.simulate(ctx, candles, cfg, mc)
	if err != nil {
		return nil, err
	}
	observability.RecordTradesSimulated(len(outcome.Trades))

	result := &domain.BacktestResult{
		Market: market,
		Period: domain.Period{
			Start: startMs,
			End:   endMs,
			Days:  int(math.Round(end.Sub(start).Hours() / 24)),
		},
		Config:           cfg,
		Trades:           outcome.Trades,
		Performance:      report,
		MarketConditions: report.MarketConditions,
	}

	log.Info().
		Int("candles", len(candles)).
		Int("trades", report.TotalTrades).
		Float64("total_return", report.TotalReturn).
		Float64("max_drawdown", report.MaxDrawdown).
		Msg("backtest complete")

	if s.runs != nil {
		s.persistRun(ctx, result, len(candles))
	}
	return result, nil
}

// FindOptimalParameters searches the parameter grid over the last lookbackMonths
// (DefaultLookbackMonths when <= 0). Candles are loaded once and shared by every
// candidate. It never fails: when no candidate can be evaluated it returns
// domain.DefaultOptimalParameters.
func (s *Service) FindOptimalParameters(ctx context.Context, market string, base domain.SimulationConfig, lookbackMonths int) domain.OptimalParameters {
	return s.FindOptimalParametersWithProgress(ctx, market, base, lookbackMonths, nil)
}

// FindOptimalParametersWithProgress is FindOptimalParameters with an extra
// per-call progress callback, invoked after the service-level one.
func (s *Service) FindOptimalParametersWithProgress(ctx context.Context, market string, base domain.SimulationConfig, lookbackMonths int, onProgress func(optimize.Progress)) domain.OptimalParameters {
	if lookbackMonths <= 0 {
		lookbackMonths = DefaultLookbackMonths
	}
	log := s.logger.With().Str("market", market).Int("lookback_months", lookbackMonths).Logger()

	end := s.now()
	start := end.AddDate(0, -lookbackMonths, 0)

	candles, err := s.loader.Load(ctx, market, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		log.Warn().Err(err).Msg("candle load failed, using default parameters")
		return domain.DefaultOptimalParameters()
	}

	mc, err := s.marketConfig(ctx, market)
	if err != nil {
		log.Warn().Err(err).Msg("market config unavailable, using default parameters")
		return domain.DefaultOptimalParameters()
	}

	var progress func(optimize.Progress)
	if s.progress != nil || onProgress != nil {
		progress = func(p optimize.Progress) {
			if s.progress != nil {
				s.progress(market, p)
			}
			if onProgress != nil {
				onProgress(p)
			}
		}
	}

	searcher := optimize.NewSearcher(optimize.SearcherOptions{
		Evaluate: func(ctx context.Context, cfg domain.SimulationConfig) (domain.PerformanceReport, error) {
			if err := cfg.Validate(); err != nil {
				return domain.PerformanceReport{}, err
			}
			report, _, err := s.simulate(ctx, candles, cfg, mc)
			return report, err
		},
		Shuffler:    s.shuffler,
		SampleSize:  s.sample,
		Parallelism: s.parallel,
		Progress:    progress,
		Logger:      &log,
	})

	best := searcher.Search(ctx, base)
	observability.SetBestScore(market, best.Score)

	if s.params != nil {
		createdAt := s.now().UnixMilli()
		rec := &domain.ParameterRecord{
			ID:             idhash.ComputeParameterRecordID(market, lookbackMonths, createdAt),
			Market:         market,
			LookbackMonths: lookbackMonths,
			Params:         best,
			CreatedAtMs:    createdAt,
		}
		if err := s.params.Insert(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("persist parameters failed")
		}
	}
	return best
}

// GetRun returns a persisted run by id.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	if s.runs == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.runs.GetByID(ctx, runID)
}

// LatestParameters returns the most recent persisted search result for market.
func (s *Service) LatestParameters(ctx context.Context, market string) (*domain.ParameterRecord, error) {
	if s.params == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.params.GetLatest(ctx, market)
}

// simulate runs one fresh simulation and aggregates it.
func (s *Service) simulate(ctx context.Context, candles []domain.Candle, cfg domain.SimulationConfig, mc domain.MarketConfig) (domain.PerformanceReport, *simulation.Outcome, error) {
	outcome, err := s.runner.Run(ctx, simulation.Input{
		Candles:      candles,
		Config:       cfg,
		MarketConfig: mc,
	})
	if err != nil {
		return domain.PerformanceReport{}, nil, fmt.Errorf("simulate: %w", err)
	}

	report := metrics.ComputeReport(outcome.Trades, metrics.Capital{
		Initial: outcome.InitialCapital,
		Final:   outcome.FinalCapital,
		Max:     outcome.MaxCapital,
		Min:     outcome.MinCapital,
	}, candles)
	return report, outcome, nil
}

func (s *Service) marketConfig(ctx context.Context, market string) (domain.MarketConfig, error) {
	mc, err := s.resolver.GetMarketOverrideConfig(ctx, market)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("resolve market config: %w", err)
	}
	if mc.Market == "" {
		mc.Market = market
	}
	if err := mc.Validate(); err != nil {
		return domain.MarketConfig{}, err
	}
	return mc, nil
}

// persistRun stores the result and stamps its run id. Failures are logged only.
func (s *Service) persistRun(ctx context.Context, result *domain.BacktestResult, candleCount int) {
	run := &domain.BacktestRun{
		RunID:       uuid.NewString(),
		Market:      result.Market,
		ConfigHash:  idhash.ComputeConfigHash(result.Market, result.Period.Start, result.Period.End, result.Config),
		StartMs:     result.Period.Start,
		EndMs:       result.Period.End,
		CandleCount: candleCount,
		Config:      result.Config,
		Performance: result.Performance,
		Trades:      result.Trades,
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		s.logger.Warn().Err(err).Str("market", result.Market).Msg("persist backtest run failed")
		return
	}
	result.RunID = run.RunID
	s.logger.Debug().Str("run_id", run.RunID).Str("config", idhash.ShortID(run.ConfigHash)).Msg("backtest run stored")
}

// lockedShuffler serializes access to a Shuffler shared across searches.
type lockedShuffler struct {
	mu sync.Mutex
	s  optimize.Shuffler
}

func (l *lockedShuffler) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.Shuffle(n, swap)
}
