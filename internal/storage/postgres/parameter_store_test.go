package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestParameterStore_InsertAndGetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewParameterStore(pool)

	_, err := store.GetLatest(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	older := &domain.ParameterRecord{
		ID: "p-1", Market: "BTCUSDT", LookbackMonths: 6,
		Params:      domain.DefaultOptimalParameters(),
		CreatedAtMs: 100,
	}
	newer := &domain.ParameterRecord{
		ID: "p-2", Market: "BTCUSDT", LookbackMonths: 3,
		Params: domain.OptimalParameters{
			RSIOverbought: 75, RSIOversold: 25, MinConfidenceForTrade: 70,
			BuyRatio: 0.2, SellRatio: 1.0, Score: 42.5, Evaluated: 20,
		},
		CreatedAtMs: 200,
	}
	require.NoError(t, store.Insert(ctx, older))
	require.NoError(t, store.Insert(ctx, newer))

	got, err := store.GetLatest(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "p-2", got.ID)
	assert.Equal(t, 3, got.LookbackMonths)
	assert.Equal(t, newer.Params, got.Params)

	assert.ErrorIs(t, store.Insert(ctx, older), storage.ErrDuplicateKey)
}

func TestMarketConfigStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMarketConfigStore(pool)

	_, err := store.Get(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cfg := &domain.MarketConfig{
		Market:              "BTCUSDT",
		BuyCooldownMinutes:  60,
		SellCooldownMinutes: 30,
		StopLossPercent:     5,
		TakeProfitPercent:   10,
		MinConfidenceForBuy: ptr(75.0),
		SellRatio:           ptr(1.0),
		UseKelly:            true,
	}
	require.NoError(t, store.Upsert(ctx, cfg))

	got, err := store.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Nil(t, got.BuyRatio)

	cfg.StopLossPercent = 3
	cfg.MinConfidenceForBuy = nil
	require.NoError(t, store.Upsert(ctx, cfg))

	got, err = store.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.StopLossPercent)
	assert.Nil(t, got.MinConfidenceForBuy)

	require.NoError(t, store.Upsert(ctx, &domain.MarketConfig{Market: "ADAUSDT"}))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ADAUSDT", all[0].Market)
}
