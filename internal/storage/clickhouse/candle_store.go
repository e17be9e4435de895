package clickhouse

import (
	"context"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// existsChunk bounds the IN list of a single existence query.
const existsChunk = 1000

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds multiple candles. Fails entire batch on duplicate (market, open_time_ms).
func (s *CandleStore) InsertBulk(ctx context.Context, candles []domain.Candle) error {
	started := time.Now()
	err := s.insertBulk(ctx, candles)
	observability.RecordDBQuery("clickhouse", "insert_candles", time.Since(started).Seconds(), err)
	return err
}

func (s *CandleStore) insertBulk(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		market string
		openMs int64
	}
	seen := make(map[key]struct{}, len(candles))
	byMarket := make(map[string][]int64)
	for _, c := range candles {
		if c.Market == "" {
			return storage.ErrInvalidInput
		}
		k := key{c.Market, c.OpenTimeMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		byMarket[c.Market] = append(byMarket[c.Market], c.OpenTimeMs)
	}

	// Check for duplicates against existing DB rows
	for market, times := range byMarket {
		existing, err := s.ExistingTimes(ctx, market, times)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if len(existing) > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			market, open_time_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Market, c.OpenTimeMs,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves candles for a market within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, market string, start, end int64) ([]domain.Candle, error) {
	query := `
		SELECT market, open_time_ms, open, high, low, close, volume
		FROM candles
		WHERE market = ? AND open_time_ms >= ? AND open_time_ms <= ?
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetBefore retrieves up to limit newest candles with open_time_ms <= before, ordered ASC.
func (s *CandleStore) GetBefore(ctx context.Context, market string, before int64, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT market, open_time_ms, open, high, low, close, volume
		FROM (
			SELECT market, open_time_ms, open, high, low, close, volume
			FROM candles
			WHERE market = ? AND open_time_ms <= ?
			ORDER BY open_time_ms DESC
			LIMIT ?
		)
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, market, before, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query before: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// ExistingTimes returns the subset of openTimes already stored for market.
func (s *CandleStore) ExistingTimes(ctx context.Context, market string, openTimes []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})

	for startIdx := 0; startIdx < len(openTimes); startIdx += existsChunk {
		endIdx := startIdx + existsChunk
		if endIdx > len(openTimes) {
			endIdx = len(openTimes)
		}

		rows, err := s.conn.Query(ctx, `
			SELECT open_time_ms FROM candles
			WHERE market = ? AND open_time_ms IN (?)
		`, market, openTimes[startIdx:endIdx])
		if err != nil {
			return nil, fmt.Errorf("query existing times: %w", err)
		}

		for rows.Next() {
			var ts int64
			if err := rows.Scan(&ts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan existing time: %w", err)
			}
			existing[ts] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate existing times: %w", err)
		}
	}

	return existing, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.Market, &c.OpenTimeMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
