package signal

import (
	"math"

	"backtest-lab/internal/domain"
)

// RSI returns the Wilder-smoothed relative strength index of the last candle.
// Returns 50 when there are not enough candles.
func RSI(candles []domain.Candle, period int) float64 {
	if period < 2 || len(candles) <= period {
		return 50
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA returns the exponential moving average of closes, seeded with the SMA of
// the first period candles. Returns 0 when there are not enough candles.
func EMA(candles []domain.Candle, period int) float64 {
	if period < 1 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	ema := sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*k + ema
	}
	return ema
}

// ATR returns the Wilder-smoothed average true range, or 0 when there are not
// enough candles.
func ATR(candles []domain.Candle, period int) float64 {
	if period < 1 || len(candles) <= period {
		return 0
	}

	trueRange := func(i int) float64 {
		high, low, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}
	return atr
}
