package postgres

import (
	"context"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ParameterStore implements storage.ParameterStore using PostgreSQL.
type ParameterStore struct {
	pool *Pool
}

// NewParameterStore creates a new ParameterStore.
func NewParameterStore(pool *Pool) *ParameterStore {
	return &ParameterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ParameterStore = (*ParameterStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if id exists.
func (s *ParameterStore) Insert(ctx context.Context, rec *domain.ParameterRecord) error {
	if rec == nil || rec.ID == "" || rec.Market == "" {
		return storage.ErrInvalidInput
	}

	p := rec.Params
	_, err := s.pool.Exec(ctx, `
		INSERT INTO optimal_parameters (
			id, market, lookback_months,
			rsi_overbought, rsi_oversold, min_confidence_for_trade, buy_ratio, sell_ratio,
			score, evaluated, failed, is_default, created_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rec.ID, rec.Market, rec.LookbackMonths,
		p.RSIOverbought, p.RSIOversold, p.MinConfidenceForTrade, p.BuyRatio, p.SellRatio,
		p.Score, p.Evaluated, p.Failed, p.Default, rec.CreatedAtMs,
	)
	return storeError("insert optimal parameters", err)
}

// GetLatest returns the newest record for a market. Returns ErrNotFound if none.
func (s *ParameterStore) GetLatest(ctx context.Context, market string) (*domain.ParameterRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, market, lookback_months,
			rsi_overbought, rsi_oversold, min_confidence_for_trade, buy_ratio, sell_ratio,
			score, evaluated, failed, is_default, created_at_ms
		FROM optimal_parameters
		WHERE market = $1
		ORDER BY created_at_ms DESC, id DESC
		LIMIT 1
	`, market)

	var rec domain.ParameterRecord
	p := &rec.Params
	err := row.Scan(
		&rec.ID, &rec.Market, &rec.LookbackMonths,
		&p.RSIOverbought, &p.RSIOversold, &p.MinConfidenceForTrade, &p.BuyRatio, &p.SellRatio,
		&p.Score, &p.Evaluated, &p.Failed, &p.Default, &rec.CreatedAtMs,
	)
	if err != nil {
		return nil, storeError("get latest optimal parameters", err)
	}
	return &rec, nil
}
