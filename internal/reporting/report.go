package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// FeeBanner is printed at the top of every rendered report.
const FeeBanner = "Fees and slippage are not modeled. Results overstate achievable returns."

// Report represents one rendered backtest run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	ShortID     string
	Market      string
	Period      domain.Period
	Config      domain.SimulationConfig

	// Summary
	Performance domain.PerformanceReport
	Capital     CapitalSummary

	// Regimes in BULL, BEAR, SIDEWAYS order
	Regimes []RegimeRow

	// Trade ledger in execution order
	Trades []TradeRow
}

// CapitalSummary holds money totals rounded to cents.
type CapitalSummary struct {
	Initial        decimal.Decimal
	Final          decimal.Decimal
	RealizedProfit decimal.Decimal
}

// RegimeRow represents one row in the market conditions table.
type RegimeRow struct {
	Regime domain.Regime
	domain.RegimeStats
}

// TradeRow represents one ledger entry with exact decimal amounts.
// Profit and ProfitPercent are zero on BUY rows.
type TradeRow struct {
	Index         int
	Time          time.Time
	Type          domain.TradeType
	Price         decimal.Decimal
	Amount        decimal.Decimal
	Notional      decimal.Decimal
	Confidence    decimal.Decimal
	Profit        decimal.Decimal
	ProfitPercent decimal.Decimal
	SignalLabel   string
}
