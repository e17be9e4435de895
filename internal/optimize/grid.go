// Package optimize searches the strategy parameter grid for a high-scoring configuration.
package optimize

import (
	"math"

	"backtest-lab/internal/domain"
)

// Grid axes.
var (
	RSIOverboughtValues = []float64{65, 70, 75, 80}
	RSIOversoldValues   = []float64{20, 25, 30, 35}
	ConfidenceValues    = []float64{50, 60, 70, 80}
	BuyRatioValues      = []float64{0.2, 0.3}
	SellRatioValues     = []float64{0.5, 1.0}
)

// Candidate is one point of the parameter grid.
type Candidate struct {
	RSIOverbought         float64 `json:"rsi_overbought"`
	RSIOversold           float64 `json:"rsi_oversold"`
	MinConfidenceForTrade float64 `json:"min_confidence_for_trade"`
	BuyRatio              float64 `json:"buy_ratio"`
	SellRatio             float64 `json:"sell_ratio"`
}

// Apply overlays the candidate on base.
func (c Candidate) Apply(base domain.SimulationConfig) domain.SimulationConfig {
	base.RSIOverbought = c.RSIOverbought
	base.RSIOversold = c.RSIOversold
	base.MinConfidenceForTrade = c.MinConfidenceForTrade
	base.BuyRatio = c.BuyRatio
	base.SellRatio = c.SellRatio
	return base
}

// Grid returns every combination in axis order (256 candidates).
func Grid() []Candidate {
	grid := make([]Candidate, 0,
		len(RSIOverboughtValues)*len(RSIOversoldValues)*len(ConfidenceValues)*len(BuyRatioValues)*len(SellRatioValues))
	for _, ob := range RSIOverboughtValues {
		for _, os := range RSIOversoldValues {
			for _, conf := range ConfidenceValues {
				for _, br := range BuyRatioValues {
					for _, sr := range SellRatioValues {
						grid = append(grid, Candidate{
							RSIOverbought:         ob,
							RSIOversold:           os,
							MinConfidenceForTrade: conf,
							BuyRatio:              br,
							SellRatio:             sr,
						})
					}
				}
			}
		}
	}
	return grid
}

// Score returns winRate * averageReturn - maxDrawdown. Non-finite scores are
// reported as ok=false.
func Score(r domain.PerformanceReport) (score float64, ok bool) {
	s := r.WinRate*r.AverageReturn - r.MaxDrawdown
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return s, true
}
