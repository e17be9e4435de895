package signal

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
)

// Active signal labels reported by RSIGenerator.
const (
	LabelRSIOversold   = "RSI Oversold"
	LabelRSIOverbought = "RSI Overbought"
	LabelEMABullish    = "EMA Bullish"
	LabelEMABearish    = "EMA Bearish"
)

// LiveAdjuster returns a confidence delta from a live-only source such as sentiment.
// It is never consulted during backtests.
type LiveAdjuster func(ctx context.Context, market string) (float64, error)

// RSIGeneratorOptions configures RSIGenerator.
type RSIGeneratorOptions struct {
	RSIPeriod int
	FastEMA   int
	SlowEMA   int
	ATRPeriod int
	Live      LiveAdjuster
	Logger    *zerolog.Logger
}

// RSIGenerator is a reference generator: RSI extremes produce BUY/SELL, an EMA
// trend agreeing with the signal adds confidence.
type RSIGenerator struct {
	rsiPeriod int
	fastEMA   int
	slowEMA   int
	atrPeriod int
	live      LiveAdjuster
	logger    zerolog.Logger
}

// NewRSIGenerator creates an RSIGenerator with 14/9/21/14 defaults.
func NewRSIGenerator(opts RSIGeneratorOptions) *RSIGenerator {
	g := &RSIGenerator{
		rsiPeriod: opts.RSIPeriod,
		fastEMA:   opts.FastEMA,
		slowEMA:   opts.SlowEMA,
		atrPeriod: opts.ATRPeriod,
		live:      opts.Live,
		logger:    zerolog.Nop(),
	}
	if g.rsiPeriod <= 1 {
		g.rsiPeriod = 14
	}
	if g.fastEMA <= 0 {
		g.fastEMA = 9
	}
	if g.slowEMA <= g.fastEMA {
		g.slowEMA = 21
	}
	if g.atrPeriod <= 0 {
		g.atrPeriod = 14
	}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	}
	return g
}

// Evaluate implements Generator. ATR is reported as a percentage of the last close.
func (g *RSIGenerator) Evaluate(ctx context.Context, window []domain.Candle, override domain.OverrideConfig, isBacktest bool) (*domain.SignalDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) <= g.rsiPeriod {
		return Hold(), nil
	}

	last := window[len(window)-1]
	rsi := RSI(window, g.rsiPeriod)
	fast := EMA(window, g.fastEMA)
	slow := EMA(window, g.slowEMA)

	decision := &domain.SignalDecision{Signal: domain.SignalHold}
	if atr := ATR(window, g.atrPeriod); atr > 0 && last.Close > 0 {
		pct := atr / last.Close * 100
		decision.ATR = &pct
	}

	switch {
	case override.RSIOversold > 0 && rsi <= override.RSIOversold:
		decision.Signal = domain.SignalBuy
		decision.Confidence = 50 + (override.RSIOversold-rsi)/override.RSIOversold*50
		decision.ActiveSignals = append(decision.ActiveSignals, LabelRSIOversold)
		if slow > 0 && fast > slow {
			decision.Confidence += 10
			decision.ActiveSignals = append(decision.ActiveSignals, LabelEMABullish)
		}
	case override.RSIOverbought < 100 && rsi >= override.RSIOverbought:
		decision.Signal = domain.SignalSell
		decision.Confidence = 50 + (rsi-override.RSIOverbought)/(100-override.RSIOverbought)*50
		decision.ActiveSignals = append(decision.ActiveSignals, LabelRSIOverbought)
		if slow > 0 && fast < slow {
			decision.Confidence += 10
			decision.ActiveSignals = append(decision.ActiveSignals, LabelEMABearish)
		}
	default:
		return decision, nil
	}

	if !isBacktest && g.live != nil {
		delta, err := g.live(ctx, last.Market)
		if err != nil {
			g.logger.Warn().Err(err).Str("market", last.Market).Msg("live adjuster failed")
		} else {
			decision.Confidence += delta
		}
	}

	decision.Confidence = math.Max(0, math.Min(100, decision.Confidence))
	return decision, nil
}

// Compile-time interface check.
var _ Generator = (*RSIGenerator)(nil)
