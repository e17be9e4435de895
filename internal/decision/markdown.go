package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders the gate verdict for one backtest run.
func RenderMarkdown(result *DecisionResult) string {
	var sb strings.Builder
	in := result.Input

	sb.WriteString("# Backtest Gate Report\n\n")
	if result.Market != "" {
		sb.WriteString(fmt.Sprintf("Market: %s\n", result.Market))
	}
	if in.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: %s\n", in.RunID))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("## Decision: %s\n\n", result.Decision))

	sb.WriteString("## Run Metrics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Closed trades | %d |\n", in.SellTrades))
	sb.WriteString(fmt.Sprintf("| Win rate | %.2f%% |\n", in.WinRate))
	sb.WriteString(fmt.Sprintf("| Total return | %.2f%% |\n", in.TotalReturn))
	sb.WriteString(fmt.Sprintf("| Max drawdown | %.2f%% |\n", in.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Sharpe ratio | %.4f |\n", in.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Longest loss streak | %d |\n", in.MaxConsecutiveLosses))
	sb.WriteString("\n")

	sb.WriteString("## GO Criteria\n\n")
	sb.WriteString("| # | Criterion | Threshold | Actual | Pass |\n")
	sb.WriteString("|---|-----------|-----------|--------|------|\n")
	goPassed := 0
	for i, c := range result.GOCriteria {
		mark := "FAIL"
		if c.Pass {
			mark = "PASS"
			goPassed++
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", i+1, c.Name, c.Threshold, c.Actual, mark))
	}
	sb.WriteString(fmt.Sprintf("\nGO Criteria: %d/%d passed\n\n", goPassed, len(result.GOCriteria)))

	// Pass=false on a NO-GO check means it fired.
	sb.WriteString("## NO-GO Triggers\n\n")
	sb.WriteString("| # | Trigger | Condition | Actual | Status |\n")
	sb.WriteString("|---|---------|-----------|--------|--------|\n")
	triggered := 0
	for i, c := range result.NOGOChecks {
		status := "NOT TRIGGERED"
		if !c.Pass {
			status = "TRIGGERED"
			triggered++
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", i+1, c.Name, c.Threshold, c.Actual, status))
	}
	sb.WriteString(fmt.Sprintf("\nNO-GO Triggers: %d/%d triggered\n\n", triggered, len(result.NOGOChecks)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("%d closed trades won %.2f%% of the time for a %.2f%% total return, with a %.2f%% max drawdown.\n",
		in.SellTrades, in.WinRate, in.TotalReturn, in.MaxDrawdown))
	if result.Decision == DecisionGO {
		sb.WriteString("The run clears every threshold and may be promoted.\n")
	} else {
		sb.WriteString("The run is held back:\n")
		for _, c := range result.GOCriteria {
			if !c.Pass {
				sb.WriteString(fmt.Sprintf("- %s %s misses %s\n", c.Name, c.Actual, c.Threshold))
			}
		}
		for _, c := range result.NOGOChecks {
			if !c.Pass {
				sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", c.Name, c.Actual, c.Threshold))
			}
		}
	}

	sb.WriteString("\n_Fees and slippage are not modeled._\n")
	return sb.String()
}
