package decision

import (
	"errors"
	"fmt"
	"math"
)

// Decision represents the final GO/NO-GO result.
type Decision string

const (
	DecisionGO   Decision = "GO"
	DecisionNOGO Decision = "NO-GO"
)

// Validation errors
var (
	ErrNilInput       = errors.New("decision input is nil")
	ErrEmptyMarket    = errors.New("market is required")
	ErrNonFiniteInput = errors.New("metric is not finite")
)

// Thresholds configures the deployment gate.
type Thresholds struct {
	MinSellTrades  int     `mapstructure:"min_sell_trades" yaml:"min_sell_trades"`
	MinWinRate     float64 `mapstructure:"min_win_rate" yaml:"min_win_rate"`
	MinTotalReturn float64 `mapstructure:"min_total_return" yaml:"min_total_return"`
	MaxDrawdown    float64 `mapstructure:"max_drawdown" yaml:"max_drawdown"`
	MinSharpe      float64 `mapstructure:"min_sharpe" yaml:"min_sharpe"`
	MaxLossStreak  int     `mapstructure:"max_loss_streak" yaml:"max_loss_streak"`
}

// DefaultThresholds returns the gate used when none is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSellTrades:  10,
		MinWinRate:     50,
		MinTotalReturn: 0,
		MaxDrawdown:    20,
		MinSharpe:      0.5,
		MaxLossStreak:  5,
	}
}

// DecisionInput contains numeric metrics for decision evaluation.
// Percentages are in 0..100 units.
type DecisionInput struct {
	Market               string
	RunID                string
	SellTrades           int
	WinRate              float64
	TotalReturn          float64
	MaxDrawdown          float64
	SharpeRatio          float64
	MaxConsecutiveLosses int
}

// Validate checks that the input can be evaluated.
func (in *DecisionInput) Validate() error {
	if in == nil {
		return ErrNilInput
	}
	if in.Market == "" {
		return ErrEmptyMarket
	}
	metrics := []struct {
		name  string
		value float64
	}{
		{"win_rate", in.WinRate},
		{"total_return", in.TotalReturn},
		{"max_drawdown", in.MaxDrawdown},
		{"sharpe_ratio", in.SharpeRatio},
	}
	for _, m := range metrics {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) {
			return fmt.Errorf("%w: %s", ErrNonFiniteInput, m.name)
		}
	}
	return nil
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DecisionResult contains the final decision with checklist.
// Input holds the run metrics the checklist was computed from.
type DecisionResult struct {
	Market     string
	Decision   Decision
	Input      DecisionInput
	GOCriteria []CriterionResult
	NOGOChecks []CriterionResult
}
