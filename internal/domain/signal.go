package domain

// Signal is the action proposed by a signal generator.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// SignalDecision is the output of one generator evaluation.
// Confidence is on a 0..100 scale. ATR is nil when the generator does not report it.
type SignalDecision struct {
	Signal        Signal   `json:"signal"`
	Confidence    float64  `json:"confidence"`
	ATR           *float64 `json:"atr,omitempty"`
	ActiveSignals []string `json:"active_signals,omitempty"`
}

// Label returns a ledger label for the decision.
func (d SignalDecision) Label() string {
	if len(d.ActiveSignals) == 0 {
		return string(d.Signal)
	}
	label := d.ActiveSignals[0]
	for _, s := range d.ActiveSignals[1:] {
		label += ", " + s
	}
	return label
}
