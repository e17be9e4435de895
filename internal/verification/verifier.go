// Package verification replays persisted backtest runs and reports any
// divergence between the stored and replayed ledgers.
package verification

import (
	"context"
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      `json:"field"`
	Expected interface{} `json:"expected"` // stored value
	Actual   interface{} `json:"actual"`   // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID          string            `json:"run_id"`
	Match          bool              `json:"match"`
	Divergences    []FieldDivergence `json:"divergences,omitempty"`
	StoredReturn   float64           `json:"stored_return"`
	ReplayedReturn float64           `json:"replayed_return"`
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int                  `json:"total_runs"`
	MatchedRuns   int                  `json:"matched_runs"`
	DivergentRuns int                  `json:"divergent_runs"`
	Results       []VerificationResult `json:"results"`
}

// Verifier replays persisted runs.
type Verifier interface {
	// VerifyRun loads the stored run, re-executes the backtest with the same
	// market, range and config, and compares ledgers and summary metrics.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyMarket verifies the latest limit runs of a market.
	VerifyMarket(ctx context.Context, market string, limit int) (*VerificationReport, error)
}

// CompareTrades compares two ledgers entry by entry.
// Uses FloatTolerance for float64 comparisons.
func CompareTrades(stored, replayed []domain.Trade) []FieldDivergence {
	var divergences []FieldDivergence

	if len(stored) != len(replayed) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Trades.len",
			Expected: len(stored),
			Actual:   len(replayed),
		})
	}

	n := len(stored)
	if len(replayed) < n {
		n = len(replayed)
	}
	for i := 0; i < n; i++ {
		s, r := stored[i], replayed[i]
		prefix := fmt.Sprintf("Trades[%d].", i)

		if s.Type != r.Type {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Type", Expected: s.Type, Actual: r.Type})
		}
		if s.DateMs != r.DateMs {
			divergences = append(divergences, FieldDivergence{Field: prefix + "DateMs", Expected: s.DateMs, Actual: r.DateMs})
		}
		if !floatEquals(s.Price, r.Price) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Price", Expected: s.Price, Actual: r.Price})
		}
		if !floatEquals(s.Amount, r.Amount) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Amount", Expected: s.Amount, Actual: r.Amount})
		}
		if !floatEquals(s.Confidence, r.Confidence) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Confidence", Expected: s.Confidence, Actual: r.Confidence})
		}
		if !floatPtrEquals(s.Profit, r.Profit) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Profit", Expected: s.Profit, Actual: r.Profit})
		}
		if !floatPtrEquals(s.ProfitPercent, r.ProfitPercent) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "ProfitPercent", Expected: s.ProfitPercent, Actual: r.ProfitPercent})
		}
		if s.SignalLabel != r.SignalLabel {
			divergences = append(divergences, FieldDivergence{Field: prefix + "SignalLabel", Expected: s.SignalLabel, Actual: r.SignalLabel})
		}
	}

	return divergences
}

// ComparePerformance compares the summary metrics of two reports.
func ComparePerformance(stored, replayed domain.PerformanceReport) []FieldDivergence {
	var divergences []FieldDivergence

	ints := []struct {
		field string
		s, r  int
	}{
		{"TotalTrades", stored.TotalTrades, replayed.TotalTrades},
		{"SellTrades", stored.SellTrades, replayed.SellTrades},
		{"WinTrades", stored.WinTrades, replayed.WinTrades},
		{"LossTrades", stored.LossTrades, replayed.LossTrades},
	}
	for _, c := range ints {
		if c.s != c.r {
			divergences = append(divergences, FieldDivergence{Field: "Performance." + c.field, Expected: c.s, Actual: c.r})
		}
	}

	floats := []struct {
		field string
		s, r  float64
	}{
		{"WinRate", stored.WinRate, replayed.WinRate},
		{"TotalReturn", stored.TotalReturn, replayed.TotalReturn},
		{"MaxDrawdown", stored.MaxDrawdown, replayed.MaxDrawdown},
		{"SharpeRatio", stored.SharpeRatio, replayed.SharpeRatio},
		{"FinalCapital", stored.FinalCapital, replayed.FinalCapital},
	}
	for _, c := range floats {
		if !floatEquals(c.s, c.r) {
			divergences = append(divergences, FieldDivergence{Field: "Performance." + c.field, Expected: c.s, Actual: c.r})
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
