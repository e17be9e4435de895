package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultKlinesPath = "/api/v3/klines"
	DefaultInterval   = "1h"
)

// HTTPSource implements CandleSource against a Binance-compatible REST klines endpoint.
// It performs a single attempt per call; Loader owns retries.
type HTTPSource struct {
	baseURL  string
	path     string
	interval string
	client   *http.Client
	logger   zerolog.Logger
}

// SourceOption configures HTTPSource.
type SourceOption func(*HTTPSource)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) SourceOption {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithKlinesPath sets the klines endpoint path (e.g. "/fapi/v1/klines").
func WithKlinesPath(path string) SourceOption {
	return func(s *HTTPSource) {
		s.path = path
	}
}

// WithInterval sets the kline interval ("1h", "15m", ...).
func WithInterval(interval string) SourceOption {
	return func(s *HTTPSource) {
		s.interval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) SourceOption {
	return func(s *HTTPSource) {
		s.logger = logger
	}
}

// NewHTTPSource creates a REST kline source rooted at baseURL.
func NewHTTPSource(baseURL string, opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:  baseURL,
		path:     DefaultKlinesPath,
		interval: DefaultInterval,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCandles requests one page ending at before (inclusive).
func (s *HTTPSource) FetchCandles(ctx context.Context, market string, pageSize int, before int64) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", market)
	q.Set("interval", s.interval)
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("endTime", strconv.FormatInt(before, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+s.path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	observability.RecordFetchLatency("http", time.Since(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientFetchError{Market: market, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientFetchError{Market: market, Err: fmt.Errorf("read response: %w", err)}
	}

	// Handle rate limiting and server errors
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		s.logger.Warn().Str("market", market).Int("status", resp.StatusCode).Msg("klines request failed")
		return nil, &domain.TransientFetchError{
			Market:     market,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", string(body)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines %s: unexpected status %d: %s", market, resp.StatusCode, string(body))
	}

	return decodeKlines(market, body)
}

// decodeKlines parses the array-of-arrays kline payload:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func decodeKlines(market string, body []byte) ([]domain.Candle, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows [][]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("unmarshal klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}

		openTime, err := toInt64(row[0])
		if err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}

		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := toFloat64(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}

		candles = append(candles, domain.Candle{
			Market:     market,
			OpenTimeMs: openTime,
			Open:       vals[0],
			High:       vals[1],
			Low:        vals[2],
			Close:      vals[3],
			Volume:     vals[4],
		})
	}
	return candles, nil
}

var errUnexpectedType = errors.New("unexpected value type")

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, errUnexpectedType
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, errUnexpectedType
	}
}
