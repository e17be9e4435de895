package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// Rounding applied to ledger values.
const (
	priceScale   = 8
	amountScale  = 8
	moneyScale   = 2
	percentScale = 4
)

// ErrNilResult is returned when no result is given.
var ErrNilResult = errors.New("reporting: nil backtest result")

// Generator produces reports from backtest results.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a Report from a backtest result.
func (g *Generator) Generate(result *domain.BacktestResult) (*Report, error) {
	if result == nil {
		return nil, ErrNilResult
	}

	report := &Report{
		GeneratedAt: g.now(),
		RunID:       result.RunID,
		Market:      result.Market,
		Period:      result.Period,
		Config:      result.Config,
		Performance: result.Performance,
		Regimes:     regimeRows(result.MarketConditions),
		Trades:      tradeRows(result.Trades),
		ShortID:     idhash.ShortID(idhash.ComputeConfigHash(result.Market, result.Period.Start, result.Period.End, result.Config)),
	}

	realized := decimal.Zero
	for _, row := range report.Trades {
		realized = realized.Add(row.Profit)
	}
	report.Capital = CapitalSummary{
		Initial:        decimal.NewFromFloat(result.Performance.InitialCapital).Round(moneyScale),
		Final:          decimal.NewFromFloat(result.Performance.FinalCapital).Round(moneyScale),
		RealizedProfit: realized.Round(moneyScale),
	}

	return report, nil
}

// WriteFiles renders the report into dir as report.md, trades.csv and result.json.
func (g *Generator) WriteFiles(dir string, result *domain.BacktestResult) (*Report, error) {
	report, err := g.Generate(result)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	tradesCSV, err := RenderTradesCSV(report.Trades)
	if err != nil {
		return nil, err
	}

	files := []struct {
		name string
		data []byte
	}{
		{"report.md", []byte(RenderMarkdown(report))},
		{"trades.csv", []byte(tradesCSV)},
		{"result.json", resultJSON},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return report, nil
}

func regimeRows(mc domain.MarketConditions) []RegimeRow {
	return []RegimeRow{
		{Regime: domain.RegimeBull, RegimeStats: mc.BullMarket},
		{Regime: domain.RegimeBear, RegimeStats: mc.BearMarket},
		{Regime: domain.RegimeSideways, RegimeStats: mc.SidewaysMarket},
	}
}

func tradeRows(trades []domain.Trade) []TradeRow {
	rows := make([]TradeRow, 0, len(trades))
	for i, t := range trades {
		price := decimal.NewFromFloat(t.Price)
		amount := decimal.NewFromFloat(t.Amount)
		row := TradeRow{
			Index:       i + 1,
			Time:        time.UnixMilli(t.DateMs).UTC(),
			Type:        t.Type,
			Price:       price.Round(priceScale),
			Amount:      amount.Round(amountScale),
			Notional:    price.Mul(amount).Round(moneyScale),
			Confidence:  decimal.NewFromFloat(t.Confidence).Round(moneyScale),
			SignalLabel: t.SignalLabel,
		}
		if t.Profit != nil {
			row.Profit = decimal.NewFromFloat(*t.Profit).Round(moneyScale)
		}
		if t.ProfitPercent != nil {
			row.ProfitPercent = decimal.NewFromFloat(*t.ProfitPercent).Round(percentScale)
		}
		rows = append(rows, row)
	}
	return rows
}
