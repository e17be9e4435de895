package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"backtest-lab/internal/domain"
)

// ComputeConfigHash computes a deterministic fingerprint of a backtest request.
// Formula: SHA256(market|start|end|rsi_overbought|rsi_oversold|min_confidence|buy_ratio|sell_ratio|dynamic|initial_capital|min_order_value)
// Returns hex-encoded hash (64 characters).
func ComputeConfigHash(market string, startMs, endMs int64, cfg domain.SimulationConfig) string {
	data := fmt.Sprintf("%s|%d|%d|%g|%g|%g|%g|%g|%t|%g|%g",
		market,
		startMs,
		endMs,
		cfg.RSIOverbought,
		cfg.RSIOversold,
		cfg.MinConfidenceForTrade,
		cfg.BuyRatio,
		cfg.SellRatio,
		cfg.DynamicConfidence,
		cfg.StartingCapital(),
		cfg.OrderFloor(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeParameterRecordID computes a deterministic id for a parameter search record.
// Formula: SHA256(market|lookback_months|created_at_ms)
func ComputeParameterRecordID(market string, lookbackMonths int, createdAtMs int64) string {
	data := fmt.Sprintf("%s|%d|%d", market, lookbackMonths, createdAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// shortIDBytes is the number of hash bytes kept by ShortID.
const shortIDBytes = 12

// ShortID returns a compact base58 form of a hex hash, for logs and file names.
// Inputs that are not valid hex are hashed first.
func ShortID(hexHash string) string {
	raw, err := hex.DecodeString(hexHash)
	if err != nil || len(raw) < shortIDBytes {
		sum := sha256.Sum256([]byte(hexHash))
		raw = sum[:]
	}
	return base58.Encode(raw[:shortIDBytes])
}
