package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RenderTradesCSV renders the trade ledger as CSV string.
func RenderTradesCSV(rows []TradeRow) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{"index", "time", "type", "price", "amount", "notional", "confidence", "profit", "profit_percent", "signal_label"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Index),
			r.Time.Format(time.RFC3339),
			string(r.Type),
			r.Price.String(),
			r.Amount.String(),
			r.Notional.StringFixed(moneyScale),
			r.Confidence.String(),
			r.Profit.StringFixed(moneyScale),
			r.ProfitPercent.String(),
			r.SignalLabel,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write csv row %d: %w", r.Index, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}
