package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func hourly(market string, n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		candles[i] = domain.Candle{
			Market:     market,
			OpenTimeMs: int64(i) * 3_600_000,
			Open:       100,
			High:       101,
			Low:        99,
			Close:      100,
			Volume:     10,
		}
	}
	return candles
}

func TestCandleStore_InsertBulkAndGetByTimeRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, hourly("BTCUSDT", 10)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "BTCUSDT", 2*3_600_000, 5*3_600_000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 4 {
		t.Fatalf("Expected 4 candles, got %d", len(result))
	}
	if result[0].OpenTimeMs != 2*3_600_000 || result[3].OpenTimeMs != 5*3_600_000 {
		t.Errorf("Unexpected range bounds: %d..%d", result[0].OpenTimeMs, result[3].OpenTimeMs)
	}
	if !domain.IsStrictlyAscending(result) {
		t.Error("Expected ascending order")
	}

	other, _ := store.GetByTimeRange(ctx, "ETHUSDT", 0, 1<<62)
	if len(other) != 0 {
		t.Errorf("Expected no candles for other market, got %d", len(other))
	}
}

func TestCandleStore_DuplicateKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := hourly("BTCUSDT", 2)
	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, candles[:1])
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := hourly("BTCUSDT", 1)
	candles = append(candles, candles[0])

	err := store.InsertBulk(ctx, candles)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	// Verify nothing was inserted
	result, _ := store.GetByTimeRange(ctx, "BTCUSDT", 0, 1<<62)
	if len(result) != 0 {
		t.Errorf("Expected 0 candles (rollback), got %d", len(result))
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()

	err := store.InsertBulk(context.Background(), []domain.Candle{{OpenTimeMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty market, got %v", err)
	}
}

func TestCandleStore_GetBefore(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, hourly("BTCUSDT", 10)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// before is inclusive
	result, err := store.GetBefore(ctx, "BTCUSDT", 7*3_600_000, 3)
	if err != nil {
		t.Fatalf("GetBefore failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(result))
	}
	want := []int64{5 * 3_600_000, 6 * 3_600_000, 7 * 3_600_000}
	for i, c := range result {
		if c.OpenTimeMs != want[i] {
			t.Errorf("candle %d: expected %d, got %d", i, want[i], c.OpenTimeMs)
		}
	}

	result, _ = store.GetBefore(ctx, "BTCUSDT", -1, 3)
	if len(result) != 0 {
		t.Errorf("Expected empty page before first candle, got %d", len(result))
	}

	if _, err := store.GetBefore(ctx, "BTCUSDT", 0, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero limit, got %v", err)
	}
}

func TestCandleStore_ExistingTimes(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, hourly("BTCUSDT", 3)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	existing, err := store.ExistingTimes(ctx, "BTCUSDT", []int64{0, 3_600_000, 99 * 3_600_000})
	if err != nil {
		t.Fatalf("ExistingTimes failed: %v", err)
	}
	if len(existing) != 2 {
		t.Errorf("Expected 2 existing times, got %d", len(existing))
	}
	if _, ok := existing[99*3_600_000]; ok {
		t.Error("Unexpected time reported as existing")
	}
}
