package domain

import "sort"

// Candle is one OHLCV bar for a market.
// OpenTimeMs is the unique key within a market series.
type Candle struct {
	Market     string  `json:"market"`
	OpenTimeMs int64   `json:"open_time_ms"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
}

// SortCandles sorts candles by OpenTimeMs ASC in place.
func SortCandles(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTimeMs < candles[j].OpenTimeMs
	})
}

// DedupeCandles returns candles sorted by OpenTimeMs ASC with one candle per key.
// When the same key appears more than once the first occurrence wins.
func DedupeCandles(candles []Candle) []Candle {
	seen := make(map[int64]struct{}, len(candles))
	result := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if _, ok := seen[c.OpenTimeMs]; ok {
			continue
		}
		seen[c.OpenTimeMs] = struct{}{}
		result = append(result, c)
	}
	SortCandles(result)
	return result
}

// IsStrictlyAscending reports whether OpenTimeMs strictly increases across the series.
func IsStrictlyAscending(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTimeMs <= candles[i-1].OpenTimeMs {
			return false
		}
	}
	return true
}
