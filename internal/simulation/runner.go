// Package simulation walks a candle series through a signal generator and
// applies single-position long-only entry and exit rules.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/signal"
)

// Simulation constants.
const (
	DefaultMaxWindow = 200
	// DustAmount is the largest residual left open after a partial sell.
	DustAmount = 1e-4
	// forcedConfidence is recorded on rule-driven exits.
	forcedConfidence = 100.0
)

// Runner errors
var (
	ErrNoGenerator = errors.New("simulation: no signal generator")
	ErrNoCandles   = errors.New("simulation: empty candle series")
)

// Skip reasons reported in Outcome.Skipped.
const (
	SkipLowConfidence = "low_confidence"
	SkipCooldown      = "cooldown"
	SkipLowVolume     = "low_volume"
	SkipNoEdge        = "kelly_no_edge"
	SkipBelowMinOrder = "below_min_order"
)

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Generator signal.Generator
	MaxWindow int
	Logger    *zerolog.Logger
}

// Runner executes single-market simulations. A Runner holds no run state and
// may be shared across goroutines if its Generator can.
type Runner struct {
	generator signal.Generator
	maxWindow int
	logger    zerolog.Logger
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		generator: opts.Generator,
		maxWindow: opts.MaxWindow,
		logger:    zerolog.Nop(),
	}
	if r.maxWindow <= 0 {
		r.maxWindow = DefaultMaxWindow
	}
	if opts.Logger != nil {
		r.logger = *opts.Logger
	}
	return r
}

// Input is one simulation request. Candles must be strictly ascending.
type Input struct {
	Candles      []domain.Candle
	Config       domain.SimulationConfig
	MarketConfig domain.MarketConfig
}

// Outcome is the result of one simulation.
// MaxCapital and MinCapital track equity (cash plus open position at the trade
// price) sampled after every SELL, starting from InitialCapital.
type Outcome struct {
	Trades         []domain.Trade
	InitialCapital float64
	FinalCapital   float64
	MaxCapital     float64
	MinCapital     float64
	Stats          TradeStatsAccumulator
	Steps          int
	Skipped        map[string]int
}

// runState is the mutable state of one run. It is created fresh per Run call.
type runState struct {
	capital    float64
	position   *domain.Position
	trades     []domain.Trade
	stats      TradeStatsAccumulator
	lastBuyMs  int64
	lastSellMs int64
	hasBought  bool
	hasSold    bool
	maxCapital float64
	minCapital float64
	skipped    map[string]int
}

// Run simulates the series. The generator is called once per step with the
// trailing window ending at that step. Any open position is closed at the final
// close regardless of thresholds or cooldowns.
func (r *Runner) Run(ctx context.Context, in Input) (*Outcome, error) {
	if r.generator == nil {
		return nil, ErrNoGenerator
	}
	n := len(in.Candles)
	if n == 0 {
		return nil, ErrNoCandles
	}
	if !domain.IsStrictlyAscending(in.Candles) {
		return nil, &domain.SimulationInternalError{Op: "run", Reason: "candles not strictly ascending"}
	}

	span := r.maxWindow
	if n-1 < span {
		span = n - 1
	}
	if span < 1 {
		span = 1
	}

	initial := in.Config.StartingCapital()
	st := &runState{
		capital:    initial,
		maxCapital: initial,
		minCapital: initial,
		skipped:    make(map[string]int),
	}
	log := r.logger.With().Str("market", in.MarketConfig.Market).Logger()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg := Adjust(in.Config, st.trades)
		from := i + 1 - span
		if from < 0 {
			from = 0
		}
		// Capacity ends at the step so the generator can neither read nor
		// overwrite later candles.
		window := in.Candles[from : i+1 : i+1]
		decision, err := r.generator.Evaluate(ctx, window, cfg.Override(), true)
		if err != nil {
			return nil, fmt.Errorf("evaluate step %d: %w", i, err)
		}
		if decision == nil {
			decision = signal.Hold()
		}

		candle := in.Candles[i]
		if st.position != nil {
			r.stepLong(st, candle, decision, cfg, in.MarketConfig, log)
		} else {
			r.stepFlat(st, candle, decision, cfg, in.MarketConfig, log)
		}
	}

	if st.position != nil {
		last := in.Candles[n-1]
		st.sell(last, st.position.Amount, forcedConfidence, domain.LabelFinalPositionClose)
		log.Debug().Float64("price", last.Close).Msg("final position closed")
	}

	return &Outcome{
		Trades:         st.trades,
		InitialCapital: initial,
		FinalCapital:   st.capital,
		MaxCapital:     st.maxCapital,
		MinCapital:     st.minCapital,
		Stats:          st.stats,
		Steps:          n,
		Skipped:        st.skipped,
	}, nil
}

// stepLong applies stop-loss, take-profit and SELL rules, in that order.
func (r *Runner) stepLong(st *runState, c domain.Candle, d *domain.SignalDecision, cfg domain.SimulationConfig, mc domain.MarketConfig, log zerolog.Logger) {
	pos := st.position
	changePct := 0.0
	if pos.EntryPrice > 0 {
		changePct = (c.Close - pos.EntryPrice) / pos.EntryPrice * 100
	}

	switch {
	case mc.StopLossPercent > 0 && changePct <= -mc.StopLossPercent:
		st.sell(c, pos.Amount, forcedConfidence, domain.LabelStopLoss)
		log.Debug().Float64("change_pct", changePct).Msg("stop loss")
		return
	case mc.TakeProfitPercent > 0 && changePct >= mc.TakeProfitPercent:
		st.sell(c, pos.Amount, forcedConfidence, domain.LabelTakeProfit)
		log.Debug().Float64("change_pct", changePct).Msg("take profit")
		return
	}

	if d.Signal != domain.SignalSell {
		return
	}
	minConf := cfg.MinConfidenceForTrade
	if mc.MinConfidenceForSell != nil {
		minConf = *mc.MinConfidenceForSell
	}
	if confidence(d) < minConf {
		st.skipped[SkipLowConfidence]++
		return
	}
	if st.hasSold && c.OpenTimeMs-st.lastSellMs < mc.SellCooldownMs() {
		st.skipped[SkipCooldown]++
		return
	}

	ratio := cfg.SellRatio
	if mc.SellRatio != nil {
		ratio = *mc.SellRatio
	}
	amount := pos.Amount * ratio
	if pos.Amount-amount <= DustAmount {
		amount = pos.Amount
	}
	st.sell(c, amount, confidence(d), d.Label())
	log.Debug().Float64("price", c.Close).Float64("amount", amount).Msg("sell")
}

// stepFlat applies BUY entry rules.
func (r *Runner) stepFlat(st *runState, c domain.Candle, d *domain.SignalDecision, cfg domain.SimulationConfig, mc domain.MarketConfig, log zerolog.Logger) {
	if d.Signal != domain.SignalBuy {
		return
	}

	minConf := cfg.MinConfidenceForTrade
	if mc.MinConfidenceForBuy != nil {
		minConf = *mc.MinConfidenceForBuy
	}
	if confidence(d) < minConf {
		st.skipped[SkipLowConfidence]++
		return
	}
	if st.hasBought && c.OpenTimeMs-st.lastBuyMs < mc.BuyCooldownMs() {
		st.skipped[SkipCooldown]++
		return
	}
	if mc.MinVolume > 0 && c.Volume*c.Close < mc.MinVolume {
		st.skipped[SkipLowVolume]++
		return
	}

	ratio := cfg.BuyRatio
	if mc.BuyRatio != nil {
		ratio = *mc.BuyRatio
	}
	if mc.UseKelly && st.stats.KellyEligible() {
		f := KellyFraction(st.stats)
		if f <= 0 {
			st.skipped[SkipNoEdge]++
			log.Debug().Float64("kelly", f).Msg("no edge, buy skipped")
			return
		}
		ratio = math.Min(f, KellyMaxFraction)
	}
	if mc.UseVolatilityAdjustment && d.ATR != nil {
		ratio *= VolatilityFactor(*d.ATR)
	}

	notional := st.capital * ratio
	if c.Close <= 0 || notional < cfg.OrderFloor() {
		st.skipped[SkipBelowMinOrder]++
		return
	}

	amount := notional / c.Close
	st.capital -= notional
	st.position = &domain.Position{EntryPrice: c.Close, Amount: amount, EntryTimeMs: c.OpenTimeMs}
	st.lastBuyMs = c.OpenTimeMs
	st.hasBought = true
	st.trades = append(st.trades, domain.Trade{
		Type:        domain.TradeTypeBuy,
		DateMs:      c.OpenTimeMs,
		Price:       c.Close,
		Amount:      amount,
		Confidence:  confidence(d),
		SignalLabel: d.Label(),
	})
	log.Debug().Float64("price", c.Close).Float64("notional", notional).Msg("buy")
}

// sell closes amount of the open position at the candle close.
func (st *runState) sell(c domain.Candle, amount, conf float64, label string) {
	pos := st.position
	price := c.Close
	profit := (price - pos.EntryPrice) * amount
	profitPct := 0.0
	if pos.EntryPrice > 0 {
		profitPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}

	st.capital += price * amount
	pos.Amount -= amount
	if pos.Amount <= DustAmount {
		st.position = nil
	}
	st.lastSellMs = c.OpenTimeMs
	st.hasSold = true
	st.stats.Record(profit)
	st.trades = append(st.trades, domain.Trade{
		Type:          domain.TradeTypeSell,
		DateMs:        c.OpenTimeMs,
		Price:         price,
		Amount:        amount,
		Confidence:    conf,
		Profit:        &profit,
		ProfitPercent: &profitPct,
		SignalLabel:   label,
	})

	equity := st.capital
	if st.position != nil {
		equity += st.position.Amount * price
	}
	st.maxCapital = math.Max(st.maxCapital, equity)
	st.minCapital = math.Min(st.minCapital, equity)
}

func confidence(d *domain.SignalDecision) float64 {
	if math.IsNaN(d.Confidence) {
		return 0
	}
	return d.Confidence
}
