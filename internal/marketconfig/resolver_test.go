package marketconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/storage/memory"
)

const sampleFile = `
markets:
  - market: BTCUSDT
    buy_cooldown_minutes: 60
    sell_cooldown_minutes: 30
    min_volume: 10000
    stop_loss_percent: 5
    take_profit_percent: 12
    min_confidence_for_sell: 55
    sell_ratio: 1.0
    use_kelly: true
    use_volatility_adjustment: true
  - market: ETHUSDT
    stop_loss_percent: 3
`

func TestParse(t *testing.T) {
	configs, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, configs, 2)

	btc := configs[0]
	assert.Equal(t, "BTCUSDT", btc.Market)
	assert.Equal(t, 60.0, btc.BuyCooldownMinutes)
	assert.Equal(t, int64(30*60_000), btc.SellCooldownMs())
	assert.Equal(t, 12.0, btc.TakeProfitPercent)
	require.NotNil(t, btc.MinConfidenceForSell)
	assert.Equal(t, 55.0, *btc.MinConfidenceForSell)
	assert.Nil(t, btc.MinConfidenceForBuy)
	assert.True(t, btc.UseKelly)
	assert.True(t, btc.UseVolatilityAdjustment)

	assert.False(t, configs[1].UseKelly)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing market", "markets:\n  - stop_loss_percent: 5\n"},
		{"duplicate market", "markets:\n  - market: A\n  - market: A\n"},
		{"negative cooldown", "markets:\n  - market: A\n    buy_cooldown_minutes: -1\n"},
		{"ratio out of range", "markets:\n  - market: A\n    buy_ratio: 1.5\n"},
		{"malformed yaml", "markets: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidationErrorType(t *testing.T) {
	_, err := Parse([]byte("markets:\n  - market: A\n    stop_loss_percent: -2\n"))
	var cve *domain.ConfigValidationError
	assert.True(t, errors.As(err, &cve))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o644))

	resolver, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, resolver.Markets())

	cfg, err := resolver.GetMarketOverrideConfig(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.StopLossPercent)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStatic_FallsBackToDefault(t *testing.T) {
	resolver := NewStatic()
	cfg, err := resolver.GetMarketOverrideConfig(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, Default("SOLUSDT"), cfg)
	assert.False(t, cfg.UseKelly)
	assert.Zero(t, cfg.StopLossPercent)
}

func TestStatic_SetValidates(t *testing.T) {
	resolver := NewStatic()
	err := resolver.Set(domain.MarketConfig{Market: "A", MinVolume: -1})
	assert.Error(t, err)

	require.NoError(t, resolver.Set(domain.MarketConfig{Market: "A", MinVolume: 100}))
	cfg, _ := resolver.GetMarketOverrideConfig(context.Background(), "A")
	assert.Equal(t, 100.0, cfg.MinVolume)
}

func TestStoreResolver(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketConfigStore()
	resolver := NewStoreResolver(store)

	require.NoError(t, resolver.Seed(ctx, []domain.MarketConfig{
		{Market: "BTCUSDT", StopLossPercent: 5, UseKelly: true},
	}))

	cfg, err := resolver.GetMarketOverrideConfig(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.StopLossPercent)
	assert.True(t, cfg.UseKelly)

	cfg, err = resolver.GetMarketOverrideConfig(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, Default("ETHUSDT"), cfg)
}

type failingStore struct {
	storage.MarketConfigStore
}

func (failingStore) Get(context.Context, string) (*domain.MarketConfig, error) {
	return nil, errors.New("connection refused")
}

func TestStoreResolver_PropagatesStoreErrors(t *testing.T) {
	resolver := NewStoreResolver(failingStore{})
	_, err := resolver.GetMarketOverrideConfig(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
