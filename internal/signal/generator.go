// Package signal defines the signal generator contract consumed by the simulation
// and provides a scripted stub and a reference RSI generator.
package signal

import (
	"context"

	"backtest-lab/internal/domain"
)

// Generator evaluates a trailing candle window. The last candle of window is the
// current step. With isBacktest set, implementations must not perform live-only
// lookups so identical inputs yield identical decisions.
type Generator interface {
	Evaluate(ctx context.Context, window []domain.Candle, override domain.OverrideConfig, isBacktest bool) (*domain.SignalDecision, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, window []domain.Candle, override domain.OverrideConfig, isBacktest bool) (*domain.SignalDecision, error)

// Evaluate calls f.
func (f GeneratorFunc) Evaluate(ctx context.Context, window []domain.Candle, override domain.OverrideConfig, isBacktest bool) (*domain.SignalDecision, error) {
	return f(ctx, window, override, isBacktest)
}

// Hold is the decision returned when nothing fires.
func Hold() *domain.SignalDecision {
	return &domain.SignalDecision{Signal: domain.SignalHold}
}

// Scripted returns predefined decisions keyed by the OpenTimeMs of the window's
// last candle and HOLD everywhere else. It is deterministic and safe for concurrent use.
type Scripted struct {
	decisions map[int64]domain.SignalDecision
}

// NewScripted creates a Scripted generator.
func NewScripted(decisions map[int64]domain.SignalDecision) *Scripted {
	copied := make(map[int64]domain.SignalDecision, len(decisions))
	for k, v := range decisions {
		copied[k] = v
	}
	return &Scripted{decisions: copied}
}

// ScriptSteps keys decisions by step index into candles.
func ScriptSteps(candles []domain.Candle, steps map[int]domain.SignalDecision) *Scripted {
	decisions := make(map[int64]domain.SignalDecision, len(steps))
	for i, d := range steps {
		if i >= 0 && i < len(candles) {
			decisions[candles[i].OpenTimeMs] = d
		}
	}
	return &Scripted{decisions: decisions}
}

// Evaluate returns the scripted decision for the current step.
func (s *Scripted) Evaluate(ctx context.Context, window []domain.Candle, _ domain.OverrideConfig, _ bool) (*domain.SignalDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return Hold(), nil
	}
	d, ok := s.decisions[window[len(window)-1].OpenTimeMs]
	if !ok {
		return Hold(), nil
	}
	return &d, nil
}

// Compile-time interface checks.
var (
	_ Generator = (*Scripted)(nil)
	_ Generator = GeneratorFunc(nil)
)
