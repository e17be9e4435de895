package storage

import (
	"context"

	"backtest-lab/internal/domain"
)

// CandleStore provides access to the candle cache.
type CandleStore interface {
	// InsertBulk adds multiple candles atomically.
	// Fails entire batch on any duplicate (market, open_time_ms).
	InsertBulk(ctx context.Context, candles []domain.Candle) error

	// GetByTimeRange retrieves candles for a market within [start, end] (inclusive), ordered by open_time_ms ASC.
	GetByTimeRange(ctx context.Context, market string, start, end int64) ([]domain.Candle, error)

	// GetBefore retrieves up to limit most recent candles with open_time_ms <= before, ordered ASC.
	GetBefore(ctx context.Context, market string, before int64, limit int) ([]domain.Candle, error)

	// ExistingTimes returns the subset of openTimes already stored for market.
	ExistingTimes(ctx context.Context, market string, openTimes []int64) (map[int64]struct{}, error)
}

// BacktestRunStore provides access to persisted backtest runs and their ledgers.
type BacktestRunStore interface {
	// Insert adds a run with its trades. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.BacktestRun) error

	// GetByID retrieves a run with trades in ledger order. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// ListByMarket retrieves runs for a market ordered by created_at DESC, without trades.
	ListByMarket(ctx context.Context, market string, limit int) ([]*domain.BacktestRun, error)
}

// ParameterStore provides access to parameter search outcomes.
type ParameterStore interface {
	// Insert adds a record. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, rec *domain.ParameterRecord) error

	// GetLatest returns the newest record for a market. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, market string) (*domain.ParameterRecord, error)
}

// MarketConfigStore provides access to per-market overrides.
type MarketConfigStore interface {
	// Upsert inserts or replaces the config for cfg.Market.
	Upsert(ctx context.Context, cfg *domain.MarketConfig) error

	// Get returns the config for a market. Returns ErrNotFound if none.
	Get(ctx context.Context, market string) (*domain.MarketConfig, error)

	// List returns all configs ordered by market.
	List(ctx context.Context) ([]*domain.MarketConfig, error)
}
