package marketconfig

import (
	"context"
	"errors"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// StoreResolver reads overrides from a MarketConfigStore.
type StoreResolver struct {
	store storage.MarketConfigStore
}

// NewStoreResolver creates a StoreResolver.
func NewStoreResolver(store storage.MarketConfigStore) *StoreResolver {
	return &StoreResolver{store: store}
}

// GetMarketOverrideConfig returns the stored config, or Default(market) if none is stored.
func (r *StoreResolver) GetMarketOverrideConfig(ctx context.Context, market string) (domain.MarketConfig, error) {
	cfg, err := r.store.Get(ctx, market)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Default(market), nil
		}
		return domain.MarketConfig{}, fmt.Errorf("get market config %s: %w", market, err)
	}
	return *cfg, nil
}

// Seed upserts every config into the store.
func (r *StoreResolver) Seed(ctx context.Context, configs []domain.MarketConfig) error {
	for i := range configs {
		if err := r.store.Upsert(ctx, &configs[i]); err != nil {
			return fmt.Errorf("seed market config %s: %w", configs[i].Market, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ Resolver = (*StoreResolver)(nil)
