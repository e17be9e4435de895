package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// MarketConfigStore is an in-memory implementation of storage.MarketConfigStore.
type MarketConfigStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketConfig
}

// NewMarketConfigStore creates a new in-memory market config store.
func NewMarketConfigStore() *MarketConfigStore {
	return &MarketConfigStore{
		data: make(map[string]*domain.MarketConfig),
	}
}

// Upsert inserts or replaces the config for cfg.Market.
func (s *MarketConfigStore) Upsert(_ context.Context, cfg *domain.MarketConfig) error {
	if cfg == nil || cfg.Market == "" {
		return storage.ErrInvalidInput
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *cfg
	s.data[cfg.Market] = &copy
	return nil
}

// Get returns the config for a market. Returns ErrNotFound if none.
func (s *MarketConfigStore) Get(_ context.Context, market string) (*domain.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.data[market]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *cfg
	return &copy, nil
}

// List returns all configs ordered by market.
func (s *MarketConfigStore) List(_ context.Context) ([]*domain.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MarketConfig, 0, len(s.data))
	for _, cfg := range s.data {
		copy := *cfg
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Market < result[j].Market
	})
	return result, nil
}

var _ storage.MarketConfigStore = (*MarketConfigStore)(nil)
