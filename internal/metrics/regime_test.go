package metrics

import (
	"testing"
	"time"

	"backtest-lab/internal/domain"
)

const hourMs = int64(time.Hour / time.Millisecond)

// weekly builds hourly candles where week w moves linearly from opens[w] to closes[w].
func weekly(opens, closes []float64) []domain.Candle {
	const perWeek = 168
	var candles []domain.Candle
	for w := range opens {
		for h := 0; h < perWeek; h++ {
			frac := float64(h) / float64(perWeek-1)
			price := opens[w] + (closes[w]-opens[w])*frac
			candles = append(candles, domain.Candle{
				OpenTimeMs: int64(w*perWeek+h) * hourMs,
				Open:       price,
				High:       price,
				Low:        price,
				Close:      price,
				Volume:     1,
			})
		}
	}
	return candles
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ret  float64
		want domain.Regime
	}{
		{10.01, domain.RegimeBull},
		{10, domain.RegimeSideways},
		{0, domain.RegimeSideways},
		{-10, domain.RegimeSideways},
		{-10.01, domain.RegimeBear},
	}
	for _, tt := range tests {
		if got := Classify(tt.ret); got != tt.want {
			t.Errorf("Classify(%f) = %s, want %s", tt.ret, got, tt.want)
		}
	}
}

func TestSegmentRegimes(t *testing.T) {
	candles := weekly([]float64{100, 120, 100}, []float64{120, 100, 105})
	windows := SegmentRegimes(candles, RegimeWindow)

	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	want := []domain.Regime{domain.RegimeBull, domain.RegimeBear, domain.RegimeSideways}
	for i, w := range windows {
		if w.Regime != want[i] {
			t.Errorf("window %d: expected %s, got %s (return %f)", i, want[i], w.Regime, w.ReturnPct)
		}
		if w.EndMs-w.StartMs != RegimeWindow.Milliseconds() {
			t.Errorf("window %d: unexpected span %d", i, w.EndMs-w.StartMs)
		}
	}
	if windows[0].ReturnPct != 20 {
		t.Errorf("expected first window return 20, got %f", windows[0].ReturnPct)
	}
}

func TestSegmentRegimes_PartialTailAndGaps(t *testing.T) {
	candles := []domain.Candle{
		{OpenTimeMs: 0, Open: 100, Close: 100},
		{OpenTimeMs: 10 * hourMs, Open: 100, Close: 95},
		// week 1 is missing entirely
		{OpenTimeMs: 15 * 24 * hourMs, Open: 90, Close: 100},
	}
	windows := SegmentRegimes(candles, RegimeWindow)

	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].ReturnPct != -5 || windows[0].Regime != domain.RegimeSideways {
		t.Errorf("unexpected first window %+v", windows[0])
	}
	if windows[1].StartMs != 14*24*hourMs || windows[1].Regime != domain.RegimeBull {
		t.Errorf("unexpected second window %+v", windows[1])
	}
}

func TestSegmentRegimes_Empty(t *testing.T) {
	if got := SegmentRegimes(nil, RegimeWindow); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestAttributeTrades(t *testing.T) {
	candles := weekly([]float64{100, 120, 100}, []float64{120, 100, 105})
	windows := SegmentRegimes(candles, RegimeWindow)

	week := RegimeWindow.Milliseconds()
	trades := []domain.Trade{
		buyAt(1 * hourMs), sellAt(5*hourMs, 10, 4),
		buyAt(week + hourMs), sellAt(week+2*hourMs, -5, -2),
		buyAt(week + 3*hourMs), sellAt(week+4*hourMs, 5, 6),
		buyAt(2*week + hourMs), sellAt(2*week+2*hourMs, 0, 0),
		sellAt(10*week, 1, 1), // outside every window
	}

	mc := AttributeTrades(windows, trades)

	if mc.BullMarket.Periods != 1 || mc.BearMarket.Periods != 1 || mc.SidewaysMarket.Periods != 1 {
		t.Errorf("unexpected periods %+v", mc)
	}
	if mc.BullMarket.Trades != 2 || mc.BullMarket.SellTrades != 1 || mc.BullMarket.WinRate != 100 || mc.BullMarket.AverageReturn != 4 {
		t.Errorf("unexpected bull stats %+v", mc.BullMarket)
	}
	if mc.BearMarket.Trades != 4 || mc.BearMarket.WinRate != 50 || mc.BearMarket.AverageReturn != 2 {
		t.Errorf("unexpected bear stats %+v", mc.BearMarket)
	}
	if mc.SidewaysMarket.SellTrades != 1 || mc.SidewaysMarket.WinRate != 0 {
		t.Errorf("unexpected sideways stats %+v", mc.SidewaysMarket)
	}
}

func TestComputeReport_IncludesRegimes(t *testing.T) {
	candles := weekly([]float64{100}, []float64{80})
	trades := []domain.Trade{buyAt(hourMs), sellAt(2*hourMs, -1, -1)}

	r := ComputeReport(trades, Capital{Initial: 100, Final: 99, Max: 100, Min: 99}, candles)
	if r.MarketConditions.BearMarket.SellTrades != 1 {
		t.Errorf("expected trade attributed to bear market, got %+v", r.MarketConditions)
	}
}
