package decision

import "fmt"

// Evaluator evaluates decision criteria.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates a new decision evaluator.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate produces DecisionResult from DecisionInput.
// GO if ALL criteria pass and NO NO-GO triggers.
// NO-GO if ANY criterion fails or ANY trigger fires.
func (e *Evaluator) Evaluate(input DecisionInput) (*DecisionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	goCriteria := e.evaluateGOCriteria(input)
	nogoChecks := e.evaluateNOGOTriggers(input)

	allGOPass := true
	for _, c := range goCriteria {
		if !c.Pass {
			allGOPass = false
			break
		}
	}

	anyNOGOTriggered := false
	for _, c := range nogoChecks {
		if !c.Pass { // Pass=false means triggered
			anyNOGOTriggered = true
			break
		}
	}

	decision := DecisionGO
	if !allGOPass || anyNOGOTriggered {
		decision = DecisionNOGO
	}

	return &DecisionResult{
		Market:     input.Market,
		Decision:   decision,
		Input:      input,
		GOCriteria: goCriteria,
		NOGOChecks: nogoChecks,
	}, nil
}

// evaluateGOCriteria evaluates the 5 GO criteria.
func (e *Evaluator) evaluateGOCriteria(input DecisionInput) []CriterionResult {
	t := e.thresholds
	return []CriterionResult{
		{
			Name:      "Closed trades",
			Threshold: fmt.Sprintf(">= %d", t.MinSellTrades),
			Actual:    fmt.Sprintf("%d", input.SellTrades),
			Pass:      input.SellTrades >= t.MinSellTrades,
		},
		{
			Name:      "Win rate",
			Threshold: fmt.Sprintf(">= %.2f%%", t.MinWinRate),
			Actual:    fmt.Sprintf("%.2f%%", input.WinRate),
			Pass:      input.WinRate >= t.MinWinRate,
		},
		{
			Name:      "Total return",
			Threshold: fmt.Sprintf("> %.2f%%", t.MinTotalReturn),
			Actual:    fmt.Sprintf("%.2f%%", input.TotalReturn),
			Pass:      input.TotalReturn > t.MinTotalReturn,
		},
		{
			Name:      "Max drawdown",
			Threshold: fmt.Sprintf("<= %.2f%%", t.MaxDrawdown),
			Actual:    fmt.Sprintf("%.2f%%", input.MaxDrawdown),
			Pass:      input.MaxDrawdown <= t.MaxDrawdown,
		},
		{
			Name:      "Sharpe ratio",
			Threshold: fmt.Sprintf(">= %.2f", t.MinSharpe),
			Actual:    fmt.Sprintf("%.4f", input.SharpeRatio),
			Pass:      input.SharpeRatio >= t.MinSharpe,
		},
	}
}

// evaluateNOGOTriggers evaluates the 3 NO-GO triggers.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) evaluateNOGOTriggers(input DecisionInput) []CriterionResult {
	t := e.thresholds
	return []CriterionResult{
		{
			Name:      "Capital lost",
			Threshold: "total return < 0",
			Actual:    fmt.Sprintf("%.2f%%", input.TotalReturn),
			Pass:      input.TotalReturn >= 0,
		},
		{
			Name:      "Loss streak",
			Threshold: fmt.Sprintf("> %d consecutive losses", t.MaxLossStreak),
			Actual:    fmt.Sprintf("%d", input.MaxConsecutiveLosses),
			Pass:      input.MaxConsecutiveLosses <= t.MaxLossStreak,
		},
		{
			Name:      "No closed trades",
			Threshold: "sell trades == 0",
			Actual:    fmt.Sprintf("%d", input.SellTrades),
			Pass:      input.SellTrades > 0,
		},
	}
}
