// Package marketconfig resolves per-market override configuration for backtests.
package marketconfig

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
)

// Resolver supplies the override config for a market.
// Markets without an explicit entry resolve to Default(market).
type Resolver interface {
	GetMarketOverrideConfig(ctx context.Context, market string) (domain.MarketConfig, error)
}

// Default returns the override config used when a market has none.
// All rule thresholds are disabled and Kelly sizing is off.
func Default(market string) domain.MarketConfig {
	return domain.MarketConfig{Market: market}
}

// Static is an in-memory Resolver.
type Static struct {
	mu      sync.RWMutex
	configs map[string]domain.MarketConfig
}

// NewStatic creates a Static resolver from configs. Later entries win on duplicate markets.
func NewStatic(configs ...domain.MarketConfig) *Static {
	s := &Static{configs: make(map[string]domain.MarketConfig, len(configs))}
	for _, c := range configs {
		s.configs[c.Market] = c
	}
	return s
}

// Set replaces the config for cfg.Market.
func (s *Static) Set(cfg domain.MarketConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Market] = cfg
	return nil
}

// GetMarketOverrideConfig returns the stored config or Default(market).
func (s *Static) GetMarketOverrideConfig(_ context.Context, market string) (domain.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.configs[market]; ok {
		return c, nil
	}
	return Default(market), nil
}

// Markets returns the configured market names in sorted order.
func (s *Static) Markets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	markets := make([]string, 0, len(s.configs))
	for m := range s.configs {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	return markets
}

// Compile-time interface check.
var _ Resolver = (*Static)(nil)
