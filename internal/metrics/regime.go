package metrics

import (
	"time"

	"backtest-lab/internal/domain"
)

// Regime classification constants.
const (
	RegimeWindow     = 7 * 24 * time.Hour
	BullThresholdPct = 10.0
	BearThresholdPct = -10.0
)

// Window is one contiguous regime segment of a candle series.
// It covers [StartMs, EndMs).
type Window struct {
	StartMs   int64
	EndMs     int64
	ReturnPct float64
	Regime    domain.Regime
}

// Classify maps a window return in percent to a regime.
func Classify(returnPct float64) domain.Regime {
	switch {
	case returnPct > BullThresholdPct:
		return domain.RegimeBull
	case returnPct < BearThresholdPct:
		return domain.RegimeBear
	default:
		return domain.RegimeSideways
	}
}

// SegmentRegimes partitions ascending candles into contiguous windows of size
// span anchored at the first candle. A window's return is its last close
// against its first open. Empty windows are skipped.
func SegmentRegimes(candles []domain.Candle, span time.Duration) []Window {
	spanMs := span.Milliseconds()
	if len(candles) == 0 || spanMs <= 0 {
		return nil
	}

	origin := candles[0].OpenTimeMs
	var windows []Window
	first := 0
	for i := 1; i <= len(candles); i++ {
		if i < len(candles) && (candles[i].OpenTimeMs-origin)/spanMs == (candles[first].OpenTimeMs-origin)/spanMs {
			continue
		}

		idx := (candles[first].OpenTimeMs - origin) / spanMs
		open := candles[first].Open
		ret := 0.0
		if open > 0 {
			ret = finite((candles[i-1].Close - open) / open * 100)
		}
		windows = append(windows, Window{
			StartMs:   origin + idx*spanMs,
			EndMs:     origin + (idx+1)*spanMs,
			ReturnPct: ret,
			Regime:    Classify(ret),
		})
		first = i
	}
	return windows
}

// regimeAcc accumulates per-regime trade outcomes.
type regimeAcc struct {
	periods int
	trades  int
	sells   int
	wins    int
	returns []float64
}

func (a *regimeAcc) stats() domain.RegimeStats {
	return domain.RegimeStats{
		Periods:       a.periods,
		Trades:        a.trades,
		SellTrades:    a.sells,
		WinRate:       finite(computeWinRate(a.wins, a.sells)),
		AverageReturn: finite(computeMean(a.returns)),
	}
}

// AttributeTrades assigns each trade to the window containing its execution
// time and computes win rate and average return per regime over SELL trades.
// Trades outside every window are ignored.
func AttributeTrades(windows []Window, trades []domain.Trade) domain.MarketConditions {
	acc := map[domain.Regime]*regimeAcc{
		domain.RegimeBull:     {},
		domain.RegimeBear:     {},
		domain.RegimeSideways: {},
	}
	for _, w := range windows {
		acc[w.Regime].periods++
	}

	for _, t := range trades {
		w, ok := findWindow(windows, t.DateMs)
		if !ok {
			continue
		}
		a := acc[w.Regime]
		a.trades++
		if !t.IsSell() {
			continue
		}
		a.sells++
		if t.IsWin() {
			a.wins++
		}
		if t.ProfitPercent != nil {
			a.returns = append(a.returns, *t.ProfitPercent)
		} else {
			a.returns = append(a.returns, 0)
		}
	}

	return domain.MarketConditions{
		BullMarket:     acc[domain.RegimeBull].stats(),
		BearMarket:     acc[domain.RegimeBear].stats(),
		SidewaysMarket: acc[domain.RegimeSideways].stats(),
	}
}

// findWindow binary-searches windows, which are ascending and non-overlapping.
func findWindow(windows []Window, ts int64) (Window, bool) {
	lo, hi := 0, len(windows)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		w := windows[mid]
		switch {
		case ts < w.StartMs:
			hi = mid - 1
		case ts >= w.EndMs:
			lo = mid + 1
		default:
			return w, true
		}
	}
	return Window{}, false
}
