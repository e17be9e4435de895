package backtest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketconfig"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/optimize"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourlyCandles(market string, closes []float64) []domain.Candle {
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = domain.Candle{
			Market:     market,
			OpenTimeMs: t0.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Volume:     1000,
		}
	}
	return candles
}

func linear(n int, from, to float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return closes
}

// storeLoader wires a real Loader over an in-memory candle cache.
func storeLoader(t *testing.T, candles []domain.Candle) *marketdata.Loader {
	t.Helper()
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(context.Background(), candles))
	return marketdata.NewLoader(marketdata.LoaderOptions{
		Source: marketdata.NewStoreSource(store),
		Sleep:  func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})
}

type fakeLoader struct {
	mu      sync.Mutex
	candles []domain.Candle
	err     error
	calls   int
}

func (f *fakeLoader) Load(ctx context.Context, market string, startMs, endMs int64) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func TestRunBacktest_SingleRoundTrip(t *testing.T) {
	closes := linear(60, 100, 160)
	candles := hourlyCandles("BTCUSDT", closes)

	svc := NewService(ServiceOptions{
		Loader: storeLoader(t, candles),
		Generator: signal.ScriptSteps(candles, map[int]domain.SignalDecision{
			10: {Signal: domain.SignalBuy, Confidence: 90},
			50: {Signal: domain.SignalSell, Confidence: 90},
		}),
	})

	cfg := domain.DefaultSimulationConfig()
	cfg.BuyRatio = 0.5
	cfg.SellRatio = 1.0

	end := t0.Add(59 * time.Hour)
	result, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, end, cfg)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", result.Market)
	assert.Equal(t, t0.UnixMilli(), result.Period.Start)
	assert.Equal(t, 2, result.Period.Days)
	assert.Empty(t, result.RunID, "not persisted without a store")

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, closes[10], buy.Price)
	assert.Equal(t, closes[50], sell.Price)
	assert.InDelta(t, (closes[50]-closes[10])*buy.Amount, *sell.Profit, 1e-6)

	perf := result.Performance
	assert.Equal(t, 2, perf.TotalTrades)
	assert.Equal(t, 100.0, perf.WinRate)
	assert.InDelta(t, perf.InitialCapital+*sell.Profit, perf.FinalCapital, 1e-6)
	assert.False(t, perf.FeesModeled)
	assert.Equal(t, perf.MarketConditions, result.MarketConditions)
}

func TestRunBacktest_FlatHold(t *testing.T) {
	candles := hourlyCandles("BTCUSDT", linear(80, 100, 100))
	svc := NewService(ServiceOptions{Loader: storeLoader(t, candles), Generator: signal.NewScripted(nil)})

	result, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, t0.Add(79*time.Hour), domain.DefaultSimulationConfig())
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 0.0, result.Performance.TotalReturn)
	assert.Equal(t, 0.0, result.Performance.MaxDrawdown)
}

func TestRunBacktest_StopLossWithMarketConfig(t *testing.T) {
	closes := linear(60, 100, 100)
	for i := 21; i < len(closes); i++ {
		closes[i] = 94
	}
	candles := hourlyCandles("BTCUSDT", closes)

	svc := NewService(ServiceOptions{
		Loader:    storeLoader(t, candles),
		Resolver:  marketconfig.NewStatic(domain.MarketConfig{Market: "BTCUSDT", StopLossPercent: 5}),
		Generator: signal.ScriptSteps(candles, map[int]domain.SignalDecision{20: {Signal: domain.SignalBuy, Confidence: 90}}),
	})

	result, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, t0.Add(59*time.Hour), domain.DefaultSimulationConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, domain.LabelStopLoss, result.Trades[1].SignalLabel)
}

func TestRunBacktest_InsufficientData(t *testing.T) {
	candles := hourlyCandles("BTCUSDT", linear(30, 100, 110))
	svc := NewService(ServiceOptions{Loader: storeLoader(t, candles), Generator: signal.NewScripted(nil)})

	result, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, t0.Add(99*time.Hour), domain.DefaultSimulationConfig())
	assert.Nil(t, result)

	var insufficient *domain.DataInsufficientError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 30, insufficient.Count)
}

func TestRunBacktest_RejectsInvalidInput(t *testing.T) {
	loader := &fakeLoader{}
	svc := NewService(ServiceOptions{Loader: loader, Generator: signal.NewScripted(nil)})
	ctx := context.Background()

	bad := domain.DefaultSimulationConfig()
	bad.BuyRatio = 0

	tests := []struct {
		name   string
		market string
		end    time.Time
		cfg    domain.SimulationConfig
	}{
		{"bad ratio", "BTCUSDT", t0.Add(time.Hour), bad},
		{"empty market", "", t0.Add(time.Hour), domain.DefaultSimulationConfig()},
		{"reversed range", "BTCUSDT", t0.Add(-time.Hour), domain.DefaultSimulationConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RunBacktest(ctx, tt.market, t0, tt.end, tt.cfg)
			var cve *domain.ConfigValidationError
			assert.ErrorAs(t, err, &cve)
		})
	}
	assert.Zero(t, loader.calls, "validation happens before loading")
}

func TestRunBacktest_InvalidMarketConfig(t *testing.T) {
	svc := NewService(ServiceOptions{
		Loader:    &fakeLoader{candles: hourlyCandles("X", linear(60, 1, 2))},
		Resolver:  marketconfig.NewStatic(domain.MarketConfig{Market: "X", StopLossPercent: -1}),
		Generator: signal.NewScripted(nil),
	})

	_, err := svc.RunBacktest(context.Background(), "X", t0, t0.Add(59*time.Hour), domain.DefaultSimulationConfig())
	var cve *domain.ConfigValidationError
	assert.ErrorAs(t, err, &cve)
}

func TestRunBacktest_GeneratorFailure(t *testing.T) {
	boom := errors.New("generator down")
	svc := NewService(ServiceOptions{
		Loader: &fakeLoader{candles: hourlyCandles("X", linear(60, 1, 2))},
		Generator: signal.GeneratorFunc(func(context.Context, []domain.Candle, domain.OverrideConfig, bool) (*domain.SignalDecision, error) {
			return nil, boom
		}),
	})

	result, err := svc.RunBacktest(context.Background(), "X", t0, t0.Add(59*time.Hour), domain.DefaultSimulationConfig())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)
}

func TestRunBacktest_Persists(t *testing.T) {
	closes := linear(60, 100, 130)
	candles := hourlyCandles("BTCUSDT", closes)
	runs := memory.NewBacktestRunStore()

	svc := NewService(ServiceOptions{
		Loader:   &fakeLoader{candles: candles},
		RunStore: runs,
		Generator: signal.ScriptSteps(candles, map[int]domain.SignalDecision{
			5:  {Signal: domain.SignalBuy, Confidence: 90},
			30: {Signal: domain.SignalSell, Confidence: 90},
		}),
		Now: func() time.Time { return t0.Add(1000 * time.Hour) },
	})

	result, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, t0.Add(59*time.Hour), domain.DefaultSimulationConfig())
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	stored, err := svc.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Trades, stored.Trades)
	assert.Equal(t, 60, stored.CandleCount)
	assert.Len(t, stored.ConfigHash, 64)
	assert.Equal(t, t0.Add(1000*time.Hour).UnixMilli(), stored.CreatedAtMs)
}

func TestRunBacktest_Deterministic(t *testing.T) {
	closes := []float64{}
	for i := 0; i < 120; i++ {
		closes = append(closes, 100+float64(i%17)-float64(i%5))
	}
	candles := hourlyCandles("BTCUSDT", closes)
	gen := signal.NewRSIGenerator(signal.RSIGeneratorOptions{RSIPeriod: 5})
	svc := NewService(ServiceOptions{
		Loader:    &fakeLoader{candles: candles},
		Generator: gen,
		Resolver:  marketconfig.NewStatic(domain.MarketConfig{Market: "BTCUSDT", UseKelly: true, StopLossPercent: 8}),
	})

	cfg := domain.DefaultSimulationConfig()
	end := t0.Add(119 * time.Hour)
	a, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, end, cfg)
	require.NoError(t, err)
	b, err := svc.RunBacktest(context.Background(), "BTCUSDT", t0, end, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGetRun_WithoutStore(t *testing.T) {
	svc := NewService(ServiceOptions{Loader: &fakeLoader{}})
	_, err := svc.GetRun(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPersistenceDisabled)
	_, err = svc.LatestParameters(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPersistenceDisabled)
}

func TestFindOptimalParameters_AllCandidatesFail(t *testing.T) {
	loader := &fakeLoader{candles: hourlyCandles("BTCUSDT", linear(60, 100, 120))}
	calls := 0
	var mu sync.Mutex
	svc := NewService(ServiceOptions{
		Loader: loader,
		Generator: signal.GeneratorFunc(func(context.Context, []domain.Candle, domain.OverrideConfig, bool) (*domain.SignalDecision, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil, errors.New("always fails")
		}),
		SampleSize: 256,
		Shuffler:   rand.New(rand.NewSource(3)),
	})

	got := svc.FindOptimalParameters(context.Background(), "BTCUSDT", domain.DefaultSimulationConfig(), 0)

	want := domain.DefaultOptimalParameters()
	want.Evaluated = 256
	want.Failed = 256
	assert.Equal(t, want, got)
	assert.Equal(t, 256, calls, "each candidate fails on its first step")
	assert.Equal(t, 1, loader.calls, "candles are loaded once")
}

func TestFindOptimalParameters_LoadFailureReturnsDefault(t *testing.T) {
	svc := NewService(ServiceOptions{
		Loader:    &fakeLoader{err: &domain.DataInsufficientError{Market: "BTCUSDT", Count: 3}},
		Generator: signal.NewScripted(nil),
	})

	got := svc.FindOptimalParameters(context.Background(), "BTCUSDT", domain.DefaultSimulationConfig(), 3)
	assert.Equal(t, domain.DefaultOptimalParameters(), got)
}

func TestFindOptimalParameters_PicksAndPersists(t *testing.T) {
	closes := linear(120, 100, 100)
	for i := 60; i < 120; i++ {
		closes[i] = 110
	}
	candles := hourlyCandles("BTCUSDT", closes)

	// Confidence 75 trades only when the threshold is <= 70; each trade wins 10%.
	gen := signal.ScriptSteps(candles, map[int]domain.SignalDecision{
		10: {Signal: domain.SignalBuy, Confidence: 75},
		70: {Signal: domain.SignalSell, Confidence: 75},
	})
	params := memory.NewParameterStore()
	now := t0.Add(200 * 24 * time.Hour)

	var progress []optimize.Progress
	svc := NewService(ServiceOptions{
		Loader:         &fakeLoader{candles: candles},
		Generator:      gen,
		ParameterStore: params,
		Shuffler:       rand.New(rand.NewSource(11)),
		Now:            func() time.Time { return now },
		Progress: func(market string, p optimize.Progress) {
			assert.Equal(t, "BTCUSDT", market)
			progress = append(progress, p)
		},
	})

	got := svc.FindOptimalParameters(context.Background(), "BTCUSDT", domain.DefaultSimulationConfig(), 6)

	assert.Len(t, progress, optimize.DefaultSampleSize)
	assert.Equal(t, optimize.DefaultSampleSize, got.Evaluated)
	assert.Zero(t, got.Failed)

	// A traded candidate scores 100 * 10 - drawdown, which beats any idle candidate.
	if !got.Default {
		assert.LessOrEqual(t, got.MinConfidenceForTrade, 70.0)
		assert.Greater(t, got.Score, 0.0)
	}

	rec, err := svc.LatestParameters(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, got, rec.Params)
	assert.Equal(t, 6, rec.LookbackMonths)
	assert.Equal(t, now.UnixMilli(), rec.CreatedAtMs)
}

func TestFindOptimalParameters_InvalidBaseCountsAsFailure(t *testing.T) {
	base := domain.DefaultSimulationConfig()
	base.InitialCapital = -1

	svc := NewService(ServiceOptions{
		Loader:     &fakeLoader{candles: hourlyCandles("BTCUSDT", linear(60, 100, 120))},
		Generator:  signal.NewScripted(nil),
		SampleSize: 5,
	})

	got := svc.FindOptimalParameters(context.Background(), "BTCUSDT", base, 1)
	assert.True(t, got.Default)
	assert.Equal(t, 5, got.Failed)
}

func TestFindOptimalParametersWithProgress_CallsBothCallbacks(t *testing.T) {
	candles := hourlyCandles("BTCUSDT", linear(80, 100, 120))
	var serviceCalls, callCalls int
	svc := NewService(ServiceOptions{
		Loader:     &fakeLoader{candles: candles},
		Generator:  signal.NewScripted(nil),
		Shuffler:   rand.New(rand.NewSource(3)),
		SampleSize: 4,
		Progress:   func(string, optimize.Progress) { serviceCalls++ },
	})

	var last optimize.Progress
	got := svc.FindOptimalParametersWithProgress(context.Background(), "BTCUSDT", domain.DefaultSimulationConfig(), 1, func(p optimize.Progress) {
		callCalls++
		last = p
	})

	assert.Equal(t, 4, serviceCalls)
	assert.Equal(t, 4, callCalls)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, got.Score, last.Best.Score)
	assert.Equal(t, got.RSIOversold, last.Best.RSIOversold)
}
