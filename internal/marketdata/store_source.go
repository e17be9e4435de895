package marketdata

import (
	"context"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// StoreSource serves pages from a CandleStore, for offline replays of cached data.
type StoreSource struct {
	store storage.CandleStore
}

// NewStoreSource creates a StoreSource.
func NewStoreSource(store storage.CandleStore) *StoreSource {
	return &StoreSource{store: store}
}

// FetchCandles returns up to pageSize candles with OpenTimeMs <= before.
func (s *StoreSource) FetchCandles(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error) {
	return s.store.GetBefore(ctx, market, before, pageSize)
}

var _ CandleSource = (*StoreSource)(nil)
