package metrics

import (
	"math"
	"testing"

	"backtest-lab/internal/domain"
)

func sellAt(dateMs int64, profit, pct float64) domain.Trade {
	return domain.Trade{Type: domain.TradeTypeSell, DateMs: dateMs, Profit: &profit, ProfitPercent: &pct}
}

func buyAt(dateMs int64) domain.Trade {
	return domain.Trade{Type: domain.TradeTypeBuy, DateMs: dateMs}
}

func TestComputeReport_NoTrades(t *testing.T) {
	capital := Capital{Initial: 1_000_000, Final: 1_000_000, Max: 1_000_000, Min: 1_000_000}
	r := ComputeReport(nil, capital, nil)

	if r.TotalTrades != 0 || r.SellTrades != 0 {
		t.Errorf("expected no trades, got %d/%d", r.TotalTrades, r.SellTrades)
	}
	if r.TotalReturn != 0 {
		t.Errorf("expected totalReturn 0, got %f", r.TotalReturn)
	}
	if r.MaxDrawdown != 0 {
		t.Errorf("expected maxDrawdown 0, got %f", r.MaxDrawdown)
	}
	if r.SharpeRatio != 0 || r.WinRate != 0 || r.AverageReturn != 0 {
		t.Errorf("expected zero ratios, got sharpe=%f winRate=%f avg=%f", r.SharpeRatio, r.WinRate, r.AverageReturn)
	}
	if r.FeesModeled {
		t.Error("fees must be reported as not modeled")
	}
}

func TestComputeReport_Values(t *testing.T) {
	trades := []domain.Trade{
		buyAt(0), sellAt(1, 100, 10),
		buyAt(2), sellAt(3, -50, -5),
		buyAt(4), sellAt(5, 0, 0),
		buyAt(6), sellAt(7, 150, 15),
	}
	capital := Capital{Initial: 1000, Final: 1200, Max: 1250, Min: 1000}

	r := ComputeReport(trades, capital, nil)

	if r.TotalTrades != 8 {
		t.Errorf("expected totalTrades 8, got %d", r.TotalTrades)
	}
	if r.SellTrades != 4 || r.WinTrades != 2 || r.LossTrades != 2 {
		t.Errorf("expected 4 sells, 2 wins, 2 losses, got %d/%d/%d", r.SellTrades, r.WinTrades, r.LossTrades)
	}
	if r.WinRate != 50 {
		t.Errorf("expected winRate 50, got %f", r.WinRate)
	}
	if math.Abs(r.TotalReturn-20) > 1e-9 {
		t.Errorf("expected totalReturn 20, got %f", r.TotalReturn)
	}
	if r.AverageReturn != 5 {
		t.Errorf("expected averageReturn 5, got %f", r.AverageReturn)
	}
	if r.MaxProfit != 15 || r.MaxLoss != -5 {
		t.Errorf("expected max profit/loss 15/-5, got %f/%f", r.MaxProfit, r.MaxLoss)
	}
	if math.Abs(r.MaxDrawdown-20) > 1e-9 {
		t.Errorf("expected maxDrawdown 20, got %f", r.MaxDrawdown)
	}
	// returns 10,-5,0,15: mean 5, population variance (25+100+25+100)/4 = 62.5
	wantSharpe := 5 / math.Sqrt(62.5)
	if math.Abs(r.SharpeRatio-wantSharpe) > 1e-12 {
		t.Errorf("expected sharpe %f, got %f", wantSharpe, r.SharpeRatio)
	}
	if r.MaxConsecutiveLosses != 2 {
		t.Errorf("expected maxConsecutiveLosses 2, got %d", r.MaxConsecutiveLosses)
	}
}

func TestComputeReport_SingleSellSharpeIsZero(t *testing.T) {
	r := ComputeReport([]domain.Trade{buyAt(0), sellAt(1, 10, 1)}, Capital{Initial: 100, Final: 110, Max: 110, Min: 100}, nil)
	if r.SharpeRatio != 0 {
		t.Errorf("expected sharpe 0 for zero deviation, got %f", r.SharpeRatio)
	}
}

func TestComputeReport_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		capital Capital
		wantDD  float64
	}{
		{"zero max capital", Capital{Initial: 0, Final: 0, Max: 0, Min: 0}, 0},
		{"negative min", Capital{Initial: 100, Final: -10, Max: 100, Min: -50}, 100},
		{"min above max", Capital{Initial: 100, Final: 100, Max: 100, Min: 120}, 0},
		{"nan", Capital{Initial: 100, Final: math.NaN(), Max: math.NaN(), Min: 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeReport(nil, tt.capital, nil)
			if r.MaxDrawdown != tt.wantDD {
				t.Errorf("expected maxDrawdown %f, got %f", tt.wantDD, r.MaxDrawdown)
			}
			for name, v := range map[string]float64{
				"winRate": r.WinRate, "totalReturn": r.TotalReturn, "sharpe": r.SharpeRatio, "maxDrawdown": r.MaxDrawdown,
			} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("%s is not finite: %f", name, v)
				}
			}
		})
	}
}

func TestComputeStddev_Population(t *testing.T) {
	got := computeStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 5)
	if got != 2 {
		t.Errorf("expected population stddev 2, got %f", got)
	}
	if computeStddev(nil, 0) != 0 {
		t.Error("expected 0 for empty input")
	}
}

func TestComputeMaxConsecutiveLosses(t *testing.T) {
	sells := []domain.Trade{
		sellAt(0, -1, -1), sellAt(1, 0, 0), sellAt(2, 1, 1),
		sellAt(3, -1, -1), sellAt(4, -1, -1), sellAt(5, -1, -1), sellAt(6, 2, 2),
	}
	if got := computeMaxConsecutiveLosses(sells); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
