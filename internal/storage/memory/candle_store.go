package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Candle // market -> open_time_ms -> candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]domain.Candle),
	}
}

// InsertBulk adds multiple candles atomically. Fails entire batch on any duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		market string
		openMs int64
	}
	batchKeys := make(map[key]struct{}, len(candles))

	// First pass: check for duplicates (existing + intra-batch)
	for _, c := range candles {
		if c.Market == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[c.Market][c.OpenTimeMs]; exists {
			return storage.ErrDuplicateKey
		}
		k := key{c.Market, c.OpenTimeMs}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range candles {
		series, ok := s.data[c.Market]
		if !ok {
			series = make(map[int64]domain.Candle)
			s.data[c.Market] = series
		}
		series[c.OpenTimeMs] = c
	}

	return nil
}

// GetByTimeRange retrieves candles within [start, end] ordered by open time ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, market string, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for ts, c := range s.data[market] {
		if ts >= start && ts <= end {
			result = append(result, c)
		}
	}

	domain.SortCandles(result)
	return result, nil
}

// GetBefore retrieves up to limit newest candles with open time <= before, ordered ASC.
func (s *CandleStore) GetBefore(_ context.Context, market string, before int64, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for ts, c := range s.data[market] {
		if ts <= before {
			result = append(result, c)
		}
	}

	// Newest first, keep limit, then flip back to ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTimeMs > result[j].OpenTimeMs
	})
	if len(result) > limit {
		result = result[:limit]
	}
	domain.SortCandles(result)
	return result, nil
}

// ExistingTimes returns the subset of openTimes already stored for market.
func (s *CandleStore) ExistingTimes(_ context.Context, market string, openTimes []int64) (map[int64]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make(map[int64]struct{})
	for _, ts := range openTimes {
		if _, ok := s.data[market][ts]; ok {
			existing[ts] = struct{}{}
		}
	}
	return existing, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
