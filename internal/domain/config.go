package domain

import "fmt"

// Default simulation parameters.
const (
	DefaultInitialCapital = 1_000_000.0
	DefaultMinOrderValue  = 5000.0
	MaxMinConfidence      = 90.0
)

// SimulationConfig holds the tunable strategy parameters for one run.
// Values are fixed for the run except through simulation.Adjust.
type SimulationConfig struct {
	RSIOverbought         float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	RSIOversold           float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	MinConfidenceForTrade float64 `json:"min_confidence_for_trade" yaml:"min_confidence_for_trade"`
	BuyRatio              float64 `json:"buy_ratio" yaml:"buy_ratio"`
	SellRatio             float64 `json:"sell_ratio" yaml:"sell_ratio"`
	DynamicConfidence     bool    `json:"dynamic_confidence" yaml:"dynamic_confidence"`

	// InitialCapital defaults to DefaultInitialCapital when zero.
	InitialCapital float64 `json:"initial_capital,omitempty" yaml:"initial_capital"`
	// MinOrderValue defaults to DefaultMinOrderValue when zero.
	MinOrderValue float64 `json:"min_order_value,omitempty" yaml:"min_order_value"`
}

// DefaultSimulationConfig returns the baseline parameter set.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		RSIOverbought:         70,
		RSIOversold:           30,
		MinConfidenceForTrade: 60,
		BuyRatio:              0.3,
		SellRatio:             0.5,
		DynamicConfidence:     false,
		InitialCapital:        DefaultInitialCapital,
		MinOrderValue:         DefaultMinOrderValue,
	}
}

// Validate checks value ranges.
func (c SimulationConfig) Validate() error {
	if !(c.RSIOverbought > 0 && c.RSIOverbought <= 100) {
		return &ConfigValidationError{Field: "rsi_overbought", Reason: fmt.Sprintf("must be in (0, 100], got %v", c.RSIOverbought)}
	}
	if !(c.RSIOversold >= 0 && c.RSIOversold < c.RSIOverbought) {
		return &ConfigValidationError{Field: "rsi_oversold", Reason: fmt.Sprintf("must be in [0, rsi_overbought), got %v", c.RSIOversold)}
	}
	if !inPercentRange(c.MinConfidenceForTrade) {
		return &ConfigValidationError{Field: "min_confidence_for_trade", Reason: fmt.Sprintf("must be in [0, 100], got %v", c.MinConfidenceForTrade)}
	}
	if !inRatioRange(c.BuyRatio) {
		return &ConfigValidationError{Field: "buy_ratio", Reason: fmt.Sprintf("must be in (0, 1], got %v", c.BuyRatio)}
	}
	if !inRatioRange(c.SellRatio) {
		return &ConfigValidationError{Field: "sell_ratio", Reason: fmt.Sprintf("must be in (0, 1], got %v", c.SellRatio)}
	}
	if c.InitialCapital < 0 {
		return &ConfigValidationError{Field: "initial_capital", Reason: "must not be negative"}
	}
	if c.MinOrderValue < 0 {
		return &ConfigValidationError{Field: "min_order_value", Reason: "must not be negative"}
	}
	return nil
}

// StartingCapital returns InitialCapital or the default.
func (c SimulationConfig) StartingCapital() float64 {
	if c.InitialCapital > 0 {
		return c.InitialCapital
	}
	return DefaultInitialCapital
}

// OrderFloor returns MinOrderValue or the default.
func (c SimulationConfig) OrderFloor() float64 {
	if c.MinOrderValue > 0 {
		return c.MinOrderValue
	}
	return DefaultMinOrderValue
}

// MarketConfig holds per-market overrides resolved before a run.
// Zero cooldowns, MinVolume, StopLossPercent and TakeProfitPercent disable the
// rule; negative values are rejected. Nil pointer fields fall back to the
// SimulationConfig value.
type MarketConfig struct {
	Market string `json:"market" yaml:"market"`

	// BuyCooldownMinutes and SellCooldownMinutes are measured in candle time.
	// Zero means no cooldown.
	BuyCooldownMinutes  float64 `json:"buy_cooldown_minutes" yaml:"buy_cooldown_minutes"`
	SellCooldownMinutes float64 `json:"sell_cooldown_minutes" yaml:"sell_cooldown_minutes"`
	MinVolume           float64 `json:"min_volume" yaml:"min_volume"`
	StopLossPercent     float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `json:"take_profit_percent" yaml:"take_profit_percent"`

	MinConfidenceForBuy  *float64 `json:"min_confidence_for_buy,omitempty" yaml:"min_confidence_for_buy"`
	MinConfidenceForSell *float64 `json:"min_confidence_for_sell,omitempty" yaml:"min_confidence_for_sell"`
	BuyRatio             *float64 `json:"buy_ratio,omitempty" yaml:"buy_ratio"`
	SellRatio            *float64 `json:"sell_ratio,omitempty" yaml:"sell_ratio"`

	UseKelly                bool `json:"use_kelly" yaml:"use_kelly"`
	UseVolatilityAdjustment bool `json:"use_volatility_adjustment" yaml:"use_volatility_adjustment"`
}

// Validate checks value ranges. NaN fails every check.
func (m MarketConfig) Validate() error {
	if !(m.BuyCooldownMinutes >= 0) || !(m.SellCooldownMinutes >= 0) {
		return &ConfigValidationError{Field: "cooldown_minutes", Reason: "must not be negative"}
	}
	if !(m.MinVolume >= 0) {
		return &ConfigValidationError{Field: "min_volume", Reason: "must not be negative"}
	}
	if !(m.StopLossPercent >= 0) || !(m.TakeProfitPercent >= 0) {
		return &ConfigValidationError{Field: "stop_loss_percent/take_profit_percent", Reason: "must not be negative"}
	}
	if m.MinConfidenceForBuy != nil && !inPercentRange(*m.MinConfidenceForBuy) {
		return &ConfigValidationError{Field: "min_confidence_for_buy", Reason: fmt.Sprintf("must be in [0, 100], got %v", *m.MinConfidenceForBuy)}
	}
	if m.MinConfidenceForSell != nil && !inPercentRange(*m.MinConfidenceForSell) {
		return &ConfigValidationError{Field: "min_confidence_for_sell", Reason: fmt.Sprintf("must be in [0, 100], got %v", *m.MinConfidenceForSell)}
	}
	if m.BuyRatio != nil && !inRatioRange(*m.BuyRatio) {
		return &ConfigValidationError{Field: "buy_ratio", Reason: fmt.Sprintf("must be in (0, 1], got %v", *m.BuyRatio)}
	}
	if m.SellRatio != nil && !inRatioRange(*m.SellRatio) {
		return &ConfigValidationError{Field: "sell_ratio", Reason: fmt.Sprintf("must be in (0, 1], got %v", *m.SellRatio)}
	}
	return nil
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}

func inRatioRange(v float64) bool {
	return v > 0 && v <= 1
}

// BuyCooldownMs returns the buy cooldown in milliseconds.
func (m MarketConfig) BuyCooldownMs() int64 {
	return int64(m.BuyCooldownMinutes * 60_000)
}

// SellCooldownMs returns the sell cooldown in milliseconds.
func (m MarketConfig) SellCooldownMs() int64 {
	return int64(m.SellCooldownMinutes * 60_000)
}

// OverrideConfig is the view of a run's parameters handed to the signal generator.
type OverrideConfig struct {
	RSIOverbought         float64 `json:"rsi_overbought"`
	RSIOversold           float64 `json:"rsi_oversold"`
	MinConfidenceForTrade float64 `json:"min_confidence_for_trade"`
}

// Override builds the generator view of the config.
func (c SimulationConfig) Override() OverrideConfig {
	return OverrideConfig{
		RSIOverbought:         c.RSIOverbought,
		RSIOversold:           c.RSIOversold,
		MinConfidenceForTrade: c.MinConfidenceForTrade,
	}
}
