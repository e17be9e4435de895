// Package marketdata loads historical candles from reverse-paginated sources.
package marketdata

import (
	"context"
	"time"

	"backtest-lab/internal/domain"
)

// CandleSource returns up to pageSize of the most recent candles for market
// with OpenTimeMs <= before. Order of the returned page is not significant.
// Implementations report retryable failures as *domain.TransientFetchError.
type CandleSource interface {
	FetchCandles(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error)
}

// CandleSourceFunc adapts a function to CandleSource.
type CandleSourceFunc func(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error)

// FetchCandles calls f.
func (f CandleSourceFunc) FetchCandles(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error) {
	return f(ctx, market, pageSize, before)
}

// Supported kline intervals, keyed by exchange notation.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval converts exchange interval notation ("1h", "15m") to a duration.
func ParseInterval(s string) (time.Duration, bool) {
	d, ok := intervals[s]
	return d, ok
}
