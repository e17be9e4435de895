package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// BacktestRunStore implements storage.BacktestRunStore using PostgreSQL.
// Runs live in backtest_runs, ledgers in backtest_trades keyed by (run_id, seq).
type BacktestRunStore struct {
	pool *Pool
}

// NewBacktestRunStore creates a new BacktestRunStore.
func NewBacktestRunStore(pool *Pool) *BacktestRunStore {
	return &BacktestRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestRunStore = (*BacktestRunStore)(nil)

// Insert adds a run and its trades in one transaction. Returns ErrDuplicateKey if run_id exists.
func (s *BacktestRunStore) Insert(ctx context.Context, run *domain.BacktestRun) error {
	started := time.Now()
	err := s.insert(ctx, run)
	observability.RecordDBQuery("postgres", "insert_backtest_run", time.Since(started).Seconds(), err)
	return err
}

func (s *BacktestRunStore) insert(ctx context.Context, run *domain.BacktestRun) error {
	if run == nil || run.RunID == "" || run.Market == "" {
		return storage.ErrInvalidInput
	}

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	perfJSON, err := json.Marshal(run.Performance)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO backtest_runs (
				run_id, market, config_hash, start_ms, end_ms, candle_count,
				config, performance, created_at_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			run.RunID, run.Market, run.ConfigHash, run.StartMs, run.EndMs, run.CandleCount,
			configJSON, perfJSON, run.CreatedAtMs,
		)
		if err != nil {
			return storeError("insert backtest run", err)
		}
		if len(run.Trades) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, t := range run.Trades {
			batch.Queue(`
				INSERT INTO backtest_trades (
					run_id, seq, trade_type, date_ms, price, amount,
					confidence, profit, profit_percent, signal_label
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`,
				run.RunID, i, string(t.Type), t.DateMs, t.Price, t.Amount,
				t.Confidence, t.Profit, t.ProfitPercent, t.SignalLabel,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert backtest trades: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a run with its trades. Returns ErrNotFound if not exists.
func (s *BacktestRunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, market, config_hash, start_ms, end_ms, candle_count,
			config, performance, created_at_ms
		FROM backtest_runs
		WHERE run_id = $1
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		return nil, storeError("get backtest run by id", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT trade_type, date_ms, price, amount, confidence, profit, profit_percent, signal_label
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get backtest trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Trade
		var tradeType string
		if err := rows.Scan(
			&tradeType, &t.DateMs, &t.Price, &t.Amount,
			&t.Confidence, &t.Profit, &t.ProfitPercent, &t.SignalLabel,
		); err != nil {
			return nil, fmt.Errorf("scan backtest trade row: %w", err)
		}
		t.Type = domain.TradeType(tradeType)
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest trade rows: %w", err)
	}

	return run, nil
}

// ListByMarket retrieves runs for a market, newest first, without trades.
func (s *BacktestRunStore) ListByMarket(ctx context.Context, market string, limit int) ([]*domain.BacktestRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, market, config_hash, start_ms, end_ms, candle_count,
			config, performance, created_at_ms
		FROM backtest_runs
		WHERE market = $1
		ORDER BY created_at_ms DESC, run_id ASC
		LIMIT $2
	`, market, limit)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans a single backtest_runs row.
func scanRun(row pgx.Row) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	var configJSON, perfJSON []byte

	err := row.Scan(
		&run.RunID, &run.Market, &run.ConfigHash, &run.StartMs, &run.EndMs, &run.CandleCount,
		&configJSON, &perfJSON, &run.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &run.Performance); err != nil {
		return nil, fmt.Errorf("unmarshal performance: %w", err)
	}
	return &run, nil
}
