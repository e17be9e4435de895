// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	FetchLatency  *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	CandlesLoaded prometheus.Histogram

	// Backtest metrics
	BacktestRunsTotal *prometheus.CounterVec
	BacktestDuration  prometheus.Histogram
	TradesSimulated   prometheus.Counter

	// Parameter search metrics
	SearchCandidates *prometheus.CounterVec
	BestScore        *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBacktest prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "backtest_lab"
	}

	return &Metrics{
		// Market data metrics
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_latency_seconds",
			Help:      "Candle page fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed candle page fetches by market",
		}, []string{"market"}),
		CandlesLoaded: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candles_loaded",
			Help:      "Number of candles returned per load",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),

		// Backtest metrics
		BacktestRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		BacktestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		TradesSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_simulated_total",
			Help:      "Total number of trades simulated",
		}),

		// Parameter search metrics
		SearchCandidates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "candidates_total",
			Help:      "Total number of evaluated parameter candidates by status",
		}, []string{"status"}),
		BestScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "best_score",
			Help:      "Score of the last selected parameter set by market",
		}, []string{"market"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulBacktest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_backtest_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetchLatency records a candle page fetch latency.
func RecordFetchLatency(source string, seconds float64) {
	DefaultMetrics.FetchLatency.WithLabelValues(source).Observe(seconds)
}

// RecordFetchError increments the fetch error counter for market.
func RecordFetchError(market string) {
	DefaultMetrics.FetchErrors.WithLabelValues(market).Inc()
}

// RecordCandlesLoaded records the size of a completed load.
func RecordCandlesLoaded(n int) {
	DefaultMetrics.CandlesLoaded.Observe(float64(n))
}

// RecordBacktestRun records a backtest run.
func RecordBacktestRun(status string, durationSeconds float64) {
	DefaultMetrics.BacktestRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BacktestDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulBacktest.Set(float64(time.Now().Unix()))
	}
}

// RecordTradesSimulated adds n to the simulated trades counter.
func RecordTradesSimulated(n int) {
	DefaultMetrics.TradesSimulated.Add(float64(n))
}

// RecordSearchCandidate records one evaluated parameter candidate.
func RecordSearchCandidate(status string) {
	DefaultMetrics.SearchCandidates.WithLabelValues(status).Inc()
}

// SetBestScore sets the selected parameter score for market.
func SetBestScore(market string, score float64) {
	DefaultMetrics.BestScore.WithLabelValues(market).Set(score)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
