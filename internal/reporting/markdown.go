package reporting

import (
	"fmt"
	"strings"
	"time"

	"backtest-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.Market))
	sb.WriteString(fmt.Sprintf("> **%s**\n\n", FeeBanner))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))
	}
	sb.WriteString(fmt.Sprintf("Config: %s\n\n", r.ShortID))
	sb.WriteString(fmt.Sprintf("Period: %s to %s (%d days)\n\n",
		time.UnixMilli(r.Period.Start).UTC().Format(time.RFC3339),
		time.UnixMilli(r.Period.End).UTC().Format(time.RFC3339),
		r.Period.Days))

	// Configuration
	c := r.Config
	sb.WriteString("## Configuration\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| RSI Oversold | %.2f |\n", c.RSIOversold))
	sb.WriteString(fmt.Sprintf("| RSI Overbought | %.2f |\n", c.RSIOverbought))
	sb.WriteString(fmt.Sprintf("| Min Confidence | %.2f |\n", c.MinConfidenceForTrade))
	sb.WriteString(fmt.Sprintf("| Buy Ratio | %.2f |\n", c.BuyRatio))
	sb.WriteString(fmt.Sprintf("| Sell Ratio | %.2f |\n", c.SellRatio))
	sb.WriteString("\n")

	// Performance
	p := r.Performance
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Initial Capital | %s |\n", r.Capital.Initial.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Final Capital | %s |\n", r.Capital.Final.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Realized Profit | %s |\n", r.Capital.RealizedProfit.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", p.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Sell Trades | %d |\n", p.SellTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", p.WinRate))
	sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", p.TotalReturn))
	sb.WriteString(fmt.Sprintf("| Average Return | %.4f%% |\n", p.AverageReturn))
	sb.WriteString(fmt.Sprintf("| Max Profit | %.4f%% |\n", p.MaxProfit))
	sb.WriteString(fmt.Sprintf("| Max Loss | %.4f%% |\n", p.MaxLoss))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", p.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.4f |\n", p.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", p.MaxConsecutiveLosses))
	sb.WriteString("\n")

	// Market Conditions
	sb.WriteString("## Market Conditions\n\n")
	sb.WriteString("| Regime | Periods | Trades | Sells | WinRate | AvgReturn |\n")
	sb.WriteString("|--------|---------|--------|-------|---------|-----------|\n")
	for _, row := range r.Regimes {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.2f%% | %.4f%% |\n",
			row.Regime, row.Periods, row.Trades, row.SellTrades, row.WinRate, row.AverageReturn))
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| # | Time | Type | Price | Amount | Profit | Profit% | Signal |\n")
		sb.WriteString("|---|------|------|-------|--------|--------|---------|--------|\n")
		for _, t := range r.Trades {
			profit, pct := "", ""
			if t.Type == domain.TradeTypeSell {
				profit = t.Profit.StringFixed(2)
				pct = t.ProfitPercent.StringFixed(2)
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s |\n",
				t.Index, t.Time.Format(time.RFC3339), t.Type,
				t.Price.String(), t.Amount.String(), profit, pct, t.SignalLabel))
		}
	} else {
		sb.WriteString("No trades executed.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
