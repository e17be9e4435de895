package domain

// TradeType is the side of a ledger entry.
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Signal labels attached to forced exits.
const (
	LabelStopLoss           = "Stop Loss"
	LabelTakeProfit         = "Take Profit"
	LabelFinalPositionClose = "Final Position Close"
)

// Trade is one entry in the append-only simulation ledger.
// Profit and ProfitPercent are set on SELL entries only.
type Trade struct {
	Type          TradeType `json:"type"`
	DateMs        int64     `json:"date_ms"`
	Price         float64   `json:"price"`
	Amount        float64   `json:"amount"`
	Confidence    float64   `json:"confidence"`
	Profit        *float64  `json:"profit,omitempty"`
	ProfitPercent *float64  `json:"profit_percent,omitempty"`
	SignalLabel   string    `json:"signal_label"`
}

// IsSell reports whether the trade closes (part of) a position.
func (t Trade) IsSell() bool {
	return t.Type == TradeTypeSell
}

// IsWin reports whether a SELL realized a strictly positive profit.
func (t Trade) IsWin() bool {
	return t.IsSell() && t.Profit != nil && *t.Profit > 0
}

// Position is the single open long position.
type Position struct {
	EntryPrice  float64 `json:"entry_price"`
	Amount      float64 `json:"amount"`
	EntryTimeMs int64   `json:"entry_time_ms"`
}

// SellTrades returns SELL entries in ledger order.
func SellTrades(trades []Trade) []Trade {
	var sells []Trade
	for _, t := range trades {
		if t.IsSell() {
			sells = append(sells, t)
		}
	}
	return sells
}
