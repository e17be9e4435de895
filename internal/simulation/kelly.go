package simulation

import (
	"math"

	"backtest-lab/internal/domain"
)

// Sizing constants.
const (
	KellyMinTrades    = 5
	KellyMaxFraction  = 0.25
	VolatilityDamping = 0.01
)

// TradeStatsAccumulator holds realized SELL outcomes of one run.
// A SELL with profit > 0 is a win; anything else is a loss.
type TradeStatsAccumulator struct {
	Wins        int
	Losses      int
	TotalProfit float64
	TotalLoss   float64 // sum of absolute losses
}

// Record adds a realized profit.
func (s *TradeStatsAccumulator) Record(profit float64) {
	if profit > 0 {
		s.Wins++
		s.TotalProfit += profit
		return
	}
	s.Losses++
	s.TotalLoss += -profit
}

// Count returns wins + losses.
func (s TradeStatsAccumulator) Count() int {
	return s.Wins + s.Losses
}

// KellyEligible reports whether enough outcomes exist to size with Kelly.
func (s TradeStatsAccumulator) KellyEligible() bool {
	return s.Count() >= KellyMinTrades
}

// KellyFraction returns f* = (p*b - (1-p)) / b.
// Degenerate inputs fall back to 0, never NaN or Inf.
func KellyFraction(s TradeStatsAccumulator) float64 {
	n := s.Count()
	if n == 0 {
		return 0
	}
	p := float64(s.Wins) / float64(n)

	avgWin := 0.0
	if s.Wins > 0 {
		avgWin = s.TotalProfit / float64(s.Wins)
	}
	avgLoss := 1.0
	if s.Losses > 0 && s.TotalLoss > 0 {
		avgLoss = s.TotalLoss / float64(s.Losses)
	}

	b := avgWin / avgLoss
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	f := (p*b - (1 - p)) / b
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// VolatilityFactor returns 1/(1+atr*0.01), or 1 for a non-positive or invalid atr.
func VolatilityFactor(atr float64) float64 {
	if atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 1
	}
	return 1 / (1 + atr*VolatilityDamping)
}

// Dynamic confidence constants.
const (
	AdjustLookback     = 5
	AdjustLossTrigger  = 3
	AdjustConfidenceUp = 10.0
)

// Adjust returns cfg with MinConfidenceForTrade raised after a losing streak:
// when DynamicConfidence is set, ledger holds at least 5 trades and at least 3
// of the most recent 5 carry a non-positive profit, the threshold rises by 10,
// capped at 90. BUY entries carry no profit and never count as losses.
// cfg and ledger are not modified.
func Adjust(cfg domain.SimulationConfig, ledger []domain.Trade) domain.SimulationConfig {
	if !cfg.DynamicConfidence || len(ledger) < AdjustLookback {
		return cfg
	}

	losses := 0
	for _, t := range ledger[len(ledger)-AdjustLookback:] {
		if t.Profit != nil && *t.Profit <= 0 {
			losses++
		}
	}
	if losses < AdjustLossTrigger {
		return cfg
	}

	cfg.MinConfidenceForTrade = math.Min(cfg.MinConfidenceForTrade+AdjustConfidenceUp, domain.MaxMinConfidence)
	return cfg
}
