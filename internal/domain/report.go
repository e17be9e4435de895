package domain

// Regime classifies a window of the candle series by its net return.
type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
)

// RegimeStats holds SELL statistics for trades executed inside one regime.
type RegimeStats struct {
	Periods       int     `json:"periods"`
	Trades        int     `json:"trades"`
	SellTrades    int     `json:"sell_trades"`
	WinRate       float64 `json:"win_rate"`
	AverageReturn float64 `json:"average_return"`
}

// MarketConditions is the per-regime breakdown of a run.
type MarketConditions struct {
	BullMarket     RegimeStats `json:"bull_market"`
	BearMarket     RegimeStats `json:"bear_market"`
	SidewaysMarket RegimeStats `json:"sideways_market"`
}

// PerformanceReport summarizes a trade ledger.
// Percentages are expressed in 0..100 units.
type PerformanceReport struct {
	TotalTrades   int     `json:"total_trades"`
	SellTrades    int     `json:"sell_trades"`
	WinTrades     int     `json:"win_trades"`
	LossTrades    int     `json:"loss_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalReturn   float64 `json:"total_return"`
	AverageReturn float64 `json:"average_return"`
	MaxProfit     float64 `json:"max_profit"`
	MaxLoss       float64 `json:"max_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`

	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`

	// FeesModeled is always false: no fee or slippage model is applied.
	FeesModeled bool `json:"fees_modeled"`

	MarketConditions MarketConditions `json:"market_conditions"`
}

// Period is the requested backtest range.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Days  int   `json:"days"`
}

// BacktestResult is the complete output of one backtest run.
type BacktestResult struct {
	RunID            string            `json:"run_id,omitempty"`
	Market           string            `json:"market"`
	Period           Period            `json:"period"`
	Config           SimulationConfig  `json:"config"`
	Trades           []Trade           `json:"trades"`
	Performance      PerformanceReport `json:"performance"`
	MarketConditions MarketConditions  `json:"market_conditions"`
}

// OptimalParameters is the outcome of a parameter search.
type OptimalParameters struct {
	RSIOverbought         float64 `json:"rsi_overbought"`
	RSIOversold           float64 `json:"rsi_oversold"`
	MinConfidenceForTrade float64 `json:"min_confidence_for_trade"`
	BuyRatio              float64 `json:"buy_ratio"`
	SellRatio             float64 `json:"sell_ratio"`
	Score                 float64 `json:"score"`

	Evaluated int  `json:"evaluated"`
	Failed    int  `json:"failed"`
	Default   bool `json:"default"`
}

// DefaultOptimalParameters is returned when no candidate could be evaluated.
func DefaultOptimalParameters() OptimalParameters {
	return OptimalParameters{
		RSIOverbought:         70,
		RSIOversold:           30,
		MinConfidenceForTrade: 60,
		BuyRatio:              0.3,
		SellRatio:             0.5,
		Score:                 0,
		Default:               true,
	}
}

// Apply copies the searched parameters onto base.
func (p OptimalParameters) Apply(base SimulationConfig) SimulationConfig {
	base.RSIOverbought = p.RSIOverbought
	base.RSIOversold = p.RSIOversold
	base.MinConfidenceForTrade = p.MinConfidenceForTrade
	base.BuyRatio = p.BuyRatio
	base.SellRatio = p.SellRatio
	return base
}
