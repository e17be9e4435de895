package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// Binance API error codes treated as retryable.
const (
	binanceErrDisconnected    = -1001
	binanceErrTooManyRequests = -1003
)

// BinanceSource implements CandleSource using the go-binance spot client.
type BinanceSource struct {
	client   *binance.Client
	interval string
	logger   zerolog.Logger
}

// BinanceOptions configures BinanceSource.
type BinanceOptions struct {
	APIKey    string
	SecretKey string
	// BaseURL overrides the API root, e.g. for testnet or tests.
	BaseURL  string
	Interval string
	Logger   *zerolog.Logger
}

// NewBinanceSource creates a BinanceSource. Klines are public, keys may be empty.
func NewBinanceSource(opts BinanceOptions) *BinanceSource {
	client := binance.NewClient(opts.APIKey, opts.SecretKey)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}

	interval := opts.Interval
	if interval == "" {
		interval = DefaultInterval
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &BinanceSource{
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// FetchCandles requests one page ending at before (inclusive).
func (s *BinanceSource) FetchCandles(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error) {
	started := time.Now()
	klines, err := s.client.NewKlinesService().
		Symbol(market).
		Interval(s.interval).
		EndTime(before).
		Limit(pageSize).
		Do(ctx)
	observability.RecordFetchLatency("binance", time.Since(started).Seconds())
	if err != nil {
		return nil, classifyBinanceError(ctx, market, err)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(market, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}

	s.logger.Debug().Str("market", market).Int64("before", before).Int("count", len(candles)).Msg("fetched klines")
	return candles, nil
}

func klineToCandle(market string, k *binance.Kline) (domain.Candle, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse kline %d field %d: %w", k.OpenTime, i, err)
		}
		vals[i] = v
	}

	return domain.Candle{
		Market:     market,
		OpenTimeMs: k.OpenTime,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
	}, nil
}

// classifyBinanceError maps client errors onto the loader error taxonomy.
func classifyBinanceError(ctx context.Context, market string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 0, binanceErrDisconnected, binanceErrTooManyRequests:
			return &domain.TransientFetchError{Market: market, Err: err}
		default:
			return fmt.Errorf("binance klines %s: %w", market, err)
		}
	}

	// Network-level failures
	return &domain.TransientFetchError{Market: market, Err: err}
}
