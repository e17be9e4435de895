// Package metrics reduces a simulation trade ledger into performance statistics.
package metrics

import (
	"math"

	"backtest-lab/internal/domain"
)

// Capital is the capital trajectory summary of one run.
type Capital struct {
	Initial float64
	Final   float64
	Max     float64
	Min     float64
}

// ComputeReport builds the performance report for a run. Candles drive regime
// segmentation; they may be nil, in which case MarketConditions is empty.
// Every field is finite.
func ComputeReport(trades []domain.Trade, capital Capital, candles []domain.Candle) domain.PerformanceReport {
	sells := domain.SellTrades(trades)
	returns := profitPercents(sells)

	wins := 0
	for _, t := range sells {
		if t.IsWin() {
			wins++
		}
	}

	mean := computeMean(returns)
	report := domain.PerformanceReport{
		TotalTrades:          len(trades),
		SellTrades:           len(sells),
		WinTrades:            wins,
		LossTrades:           len(sells) - wins,
		WinRate:              computeWinRate(wins, len(sells)),
		TotalReturn:          computeTotalReturn(capital.Initial, capital.Final),
		AverageReturn:        mean,
		MaxDrawdown:          computeMaxDrawdown(capital.Max, capital.Min),
		SharpeRatio:          computeSharpe(returns, mean),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(sells),
		InitialCapital:       capital.Initial,
		FinalCapital:         capital.Final,
		FeesModeled:          false,
	}
	if len(returns) > 0 {
		report.MaxProfit, report.MaxLoss = returns[0], returns[0]
		for _, r := range returns[1:] {
			report.MaxProfit = math.Max(report.MaxProfit, r)
			report.MaxLoss = math.Min(report.MaxLoss, r)
		}
	}

	report.MarketConditions = AttributeTrades(SegmentRegimes(candles, RegimeWindow), trades)
	return sanitize(report)
}

func profitPercents(sells []domain.Trade) []float64 {
	out := make([]float64, 0, len(sells))
	for _, t := range sells {
		if t.ProfitPercent != nil {
			out = append(out, *t.ProfitPercent)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// computeWinRate returns wins / total in percent.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

func computeTotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// computeMean calculates arithmetic mean of outcomes.
func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev calculates population standard deviation (n denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n == 0 {
		return 0
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n))
}

// computeSharpe returns mean / stddev, 0 when the deviation is zero.
func computeSharpe(outcomes []float64, mean float64) float64 {
	std := computeStddev(outcomes, mean)
	if std == 0 {
		return 0
	}
	return mean / std
}

// computeMaxDrawdown returns (max - min) / max in percent, clamped to [0, 100].
func computeMaxDrawdown(maxCapital, minCapital float64) float64 {
	if maxCapital <= 0 {
		return 0
	}
	dd := (maxCapital - minCapital) / maxCapital * 100
	return math.Max(0, math.Min(100, dd))
}

// computeMaxConsecutiveLosses finds the longest streak of SELLs with profit <= 0.
func computeMaxConsecutiveLosses(sells []domain.Trade) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range sells {
		if !t.IsWin() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sanitize(r domain.PerformanceReport) domain.PerformanceReport {
	r.WinRate = finite(r.WinRate)
	r.TotalReturn = finite(r.TotalReturn)
	r.AverageReturn = finite(r.AverageReturn)
	r.MaxProfit = finite(r.MaxProfit)
	r.MaxLoss = finite(r.MaxLoss)
	r.MaxDrawdown = finite(r.MaxDrawdown)
	r.SharpeRatio = finite(r.SharpeRatio)
	return r
}
