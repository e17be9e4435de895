package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// Loader defaults.
const (
	DefaultPageSize     = 200
	DefaultRetryBackoff = time.Second
	DefaultPageDelay    = 100 * time.Millisecond
	DefaultCandleSpan   = time.Hour

	// safetyFactor bounds fetched candles and requests relative to the estimated range size.
	safetyFactor = 1.5
	minRequests  = 3
)

// ErrInvalidRange is returned when start is after end.
var ErrInvalidRange = errors.New("invalid range: start after end")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// LoaderOptions contains configuration for creating a Loader.
type LoaderOptions struct {
	Source       CandleSource
	PageSize     int
	CandleSpan   time.Duration // candle interval used to estimate the range size
	RetryBackoff time.Duration
	PageDelay    time.Duration
	Sleep        SleepFunc
	Logger       *zerolog.Logger
}

// Loader pages a CandleSource backward from end to start.
type Loader struct {
	source       CandleSource
	pageSize     int
	candleSpan   time.Duration
	retryBackoff time.Duration
	pageDelay    time.Duration
	sleep        SleepFunc
	logger       zerolog.Logger
}

// NewLoader creates a Loader, filling zero options with defaults.
func NewLoader(opts LoaderOptions) *Loader {
	l := &Loader{
		source:       opts.Source,
		pageSize:     opts.PageSize,
		candleSpan:   opts.CandleSpan,
		retryBackoff: opts.RetryBackoff,
		pageDelay:    opts.PageDelay,
		sleep:        opts.Sleep,
		logger:       zerolog.Nop(),
	}
	if l.pageSize <= 0 {
		l.pageSize = DefaultPageSize
	}
	if l.candleSpan <= 0 {
		l.candleSpan = DefaultCandleSpan
	}
	if l.retryBackoff <= 0 {
		l.retryBackoff = DefaultRetryBackoff
	}
	if l.pageDelay <= 0 {
		l.pageDelay = DefaultPageDelay
	}
	if l.sleep == nil {
		l.sleep = sleepCtx
	}
	if opts.Logger != nil {
		l.logger = *opts.Logger
	}
	return l
}

// Load returns candles for market within [start, end] (ms), deduplicated and ascending.
// Transient fetch errors are retried at the same cursor; any other error stops
// paging. Fails with *domain.DataInsufficientError, carrying the last fetch error
// as its cause, when fewer than domain.MinCandles remain.
func (l *Loader) Load(ctx context.Context, market string, start, end int64) ([]domain.Candle, error) {
	if start > end {
		return nil, ErrInvalidRange
	}

	estimated := l.estimate(start, end)
	candleCap := int(math.Ceil(safetyFactor * float64(estimated)))
	maxRequests := int(math.Ceil(float64(candleCap) / float64(l.pageSize)))
	if maxRequests < minRequests {
		maxRequests = minRequests
	}

	log := l.logger.With().Str("market", market).Logger()
	log.Debug().
		Int("estimated", estimated).
		Int("max_requests", maxRequests).
		Msg("loading candles")

	var (
		collected []domain.Candle
		cursor    = end
		requests  int
		lastErr   error
	)

	for requests < maxRequests && len(collected) < candleCap {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		requests++
		page, err := l.source.FetchCandles(ctx, market, l.pageSize, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			observability.RecordFetchError(market)
			if !domain.IsTransient(err) {
				log.Warn().Err(err).Int64("cursor", cursor).Int("request", requests).Msg("fetch failed permanently")
				break
			}
			log.Warn().Err(err).Int64("cursor", cursor).Int("request", requests).Msg("fetch failed, retrying")
			if err := l.sleep(ctx, l.retryBackoff); err != nil {
				return nil, err
			}
			continue
		}

		if len(page) == 0 {
			break
		}
		collected = append(collected, page...)

		oldest := page[0].OpenTimeMs
		for _, c := range page[1:] {
			if c.OpenTimeMs < oldest {
				oldest = c.OpenTimeMs
			}
		}

		next := oldest - 1
		if next >= cursor {
			// Source ignored the cursor; force progress.
			next = cursor - 1
		}
		cursor = next
		if cursor < start {
			break
		}

		if err := l.sleep(ctx, l.pageDelay); err != nil {
			return nil, err
		}
	}

	candles := filterRange(domain.DedupeCandles(collected), start, end)
	observability.RecordCandlesLoaded(len(candles))

	if len(candles) < domain.MinCandles {
		var cause error
		if lastErr != nil {
			cause = fmt.Errorf("after %d requests: %w", requests, lastErr)
		}
		return nil, &domain.DataInsufficientError{Market: market, Count: len(candles), Cause: cause}
	}

	log.Info().Int("candles", len(candles)).Int("requests", requests).Msg("candles loaded")
	return candles, nil
}

// estimate returns the expected number of candles in [start, end].
func (l *Loader) estimate(start, end int64) int {
	span := l.candleSpan.Milliseconds()
	if span <= 0 {
		span = 1
	}
	return int((end-start)/span) + 1
}

// filterRange keeps candles with start <= OpenTimeMs <= end. Input must be sorted.
func filterRange(candles []domain.Candle, start, end int64) []domain.Candle {
	result := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if c.OpenTimeMs >= start && c.OpenTimeMs <= end {
			result = append(result, c)
		}
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
