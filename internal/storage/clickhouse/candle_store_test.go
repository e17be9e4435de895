package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func testCandles(market string, n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = domain.Candle{
			Market:     market,
			OpenTimeMs: 1_700_000_000_000 + int64(i)*3_600_000,
			Open:       price,
			High:       price + 1,
			Low:        price - 1,
			Close:      price + 0.5,
			Volume:     1000,
		}
	}
	return candles
}

func TestCandleStore_InsertBulkAndGetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	assert.NoError(t, store.InsertBulk(ctx, nil))

	candles := testCandles("BTCUSDT", 5)
	require.NoError(t, store.InsertBulk(ctx, candles))

	got, err := store.GetByTimeRange(ctx, "BTCUSDT", candles[1].OpenTimeMs, candles[3].OpenTimeMs)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, candles[1], got[0])
	assert.Equal(t, candles[3], got[2])
}

func TestCandleStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	candles := testCandles("BTCUSDT", 2)
	require.NoError(t, store.InsertBulk(ctx, candles))

	err := store.InsertBulk(ctx, candles[1:])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same key twice in one batch
	dup := testCandles("ETHUSDT", 1)
	dup = append(dup, dup[0])
	err = store.InsertBulk(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByTimeRange(ctx, "ETHUSDT", 0, 1<<62)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandleStore_GetBefore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	candles := testCandles("BTCUSDT", 10)
	require.NoError(t, store.InsertBulk(ctx, candles))

	got, err := store.GetBefore(ctx, "BTCUSDT", candles[6].OpenTimeMs, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, candles[3].OpenTimeMs, got[0].OpenTimeMs)
	assert.Equal(t, candles[6].OpenTimeMs, got[3].OpenTimeMs)

	existing, err := store.ExistingTimes(ctx, "BTCUSDT", []int64{candles[0].OpenTimeMs, 42})
	require.NoError(t, err)
	assert.Len(t, existing, 1)
}
