package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// MarketConfigStore implements storage.MarketConfigStore using PostgreSQL.
type MarketConfigStore struct {
	pool *Pool
}

// NewMarketConfigStore creates a new MarketConfigStore.
func NewMarketConfigStore(pool *Pool) *MarketConfigStore {
	return &MarketConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketConfigStore = (*MarketConfigStore)(nil)

const marketConfigColumns = `
	market, buy_cooldown_minutes, sell_cooldown_minutes, min_volume,
	stop_loss_percent, take_profit_percent,
	min_confidence_for_buy, min_confidence_for_sell, buy_ratio, sell_ratio,
	use_kelly, use_volatility_adjustment
`

// Upsert inserts or replaces the config for cfg.Market.
func (s *MarketConfigStore) Upsert(ctx context.Context, cfg *domain.MarketConfig) error {
	if cfg == nil || cfg.Market == "" {
		return storage.ErrInvalidInput
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_configs (`+marketConfigColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (market) DO UPDATE
		SET buy_cooldown_minutes = EXCLUDED.buy_cooldown_minutes,
		    sell_cooldown_minutes = EXCLUDED.sell_cooldown_minutes,
		    min_volume = EXCLUDED.min_volume,
		    stop_loss_percent = EXCLUDED.stop_loss_percent,
		    take_profit_percent = EXCLUDED.take_profit_percent,
		    min_confidence_for_buy = EXCLUDED.min_confidence_for_buy,
		    min_confidence_for_sell = EXCLUDED.min_confidence_for_sell,
		    buy_ratio = EXCLUDED.buy_ratio,
		    sell_ratio = EXCLUDED.sell_ratio,
		    use_kelly = EXCLUDED.use_kelly,
		    use_volatility_adjustment = EXCLUDED.use_volatility_adjustment,
		    updated_at = NOW()
	`,
		cfg.Market, cfg.BuyCooldownMinutes, cfg.SellCooldownMinutes, cfg.MinVolume,
		cfg.StopLossPercent, cfg.TakeProfitPercent,
		cfg.MinConfidenceForBuy, cfg.MinConfidenceForSell, cfg.BuyRatio, cfg.SellRatio,
		cfg.UseKelly, cfg.UseVolatilityAdjustment,
	)
	if err != nil {
		return fmt.Errorf("upsert market config: %w", err)
	}
	return nil
}

// Get returns the config for a market. Returns ErrNotFound if none.
func (s *MarketConfigStore) Get(ctx context.Context, market string) (*domain.MarketConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketConfigColumns+` FROM market_configs WHERE market = $1`, market)

	cfg, err := scanMarketConfig(row)
	if err != nil {
		return nil, storeError("get market config", err)
	}
	return cfg, nil
}

// List returns all configs ordered by market.
func (s *MarketConfigStore) List(ctx context.Context) ([]*domain.MarketConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketConfigColumns+` FROM market_configs ORDER BY market ASC`)
	if err != nil {
		return nil, fmt.Errorf("list market configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.MarketConfig
	for rows.Next() {
		cfg, err := scanMarketConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market config row: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market config rows: %w", err)
	}
	return configs, nil
}

func scanMarketConfig(row pgx.Row) (*domain.MarketConfig, error) {
	var cfg domain.MarketConfig
	err := row.Scan(
		&cfg.Market, &cfg.BuyCooldownMinutes, &cfg.SellCooldownMinutes, &cfg.MinVolume,
		&cfg.StopLossPercent, &cfg.TakeProfitPercent,
		&cfg.MinConfidenceForBuy, &cfg.MinConfidenceForSell, &cfg.BuyRatio, &cfg.SellRatio,
		&cfg.UseKelly, &cfg.UseVolatilityAdjustment,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
