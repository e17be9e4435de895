package decision

import (
	"errors"

	"backtest-lab/internal/domain"
)

// ErrNilResult is returned when no backtest result is given.
var ErrNilResult = errors.New("backtest result is nil")

// BuildInput creates DecisionInput from a backtest result.
func BuildInput(result *domain.BacktestResult) (*DecisionInput, error) {
	if result == nil {
		return nil, ErrNilResult
	}
	p := result.Performance
	input := &DecisionInput{
		Market:               result.Market,
		RunID:                result.RunID,
		SellTrades:           p.SellTrades,
		WinRate:              p.WinRate,
		TotalReturn:          p.TotalReturn,
		MaxDrawdown:          p.MaxDrawdown,
		SharpeRatio:          p.SharpeRatio,
		MaxConsecutiveLosses: p.MaxConsecutiveLosses,
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return input, nil
}
