package domain

// BacktestRun is a persisted backtest result.
type BacktestRun struct {
	RunID       string            `json:"run_id"`
	Market      string            `json:"market"`
	ConfigHash  string            `json:"config_hash"`
	StartMs     int64             `json:"start_ms"`
	EndMs       int64             `json:"end_ms"`
	CandleCount int               `json:"candle_count"`
	Config      SimulationConfig  `json:"config"`
	Performance PerformanceReport `json:"performance"`
	Trades      []Trade           `json:"trades"`
	CreatedAtMs int64             `json:"created_at_ms"`
}

// ParameterRecord is a persisted parameter search outcome.
type ParameterRecord struct {
	ID             string            `json:"id"`
	Market         string            `json:"market"`
	LookbackMonths int               `json:"lookback_months"`
	Params         OptimalParameters `json:"params"`
	CreatedAtMs    int64             `json:"created_at_ms"`
}
