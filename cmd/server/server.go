package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/optimize"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/verification"
)

// Server exposes the backtest service over HTTP.
type Server struct {
	service  *backtest.Service
	verifier verification.Verifier
	base     domain.SimulationConfig
	lookback int
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	inflight int
	runs     int
}

// NewServer creates a Server. base fills parameters missing from requests.
// A nil verifier disables run verification.
func NewServer(service *backtest.Service, verifier verification.Verifier, base domain.SimulationConfig, lookbackMonths int, logger zerolog.Logger) *Server {
	return &Server{
		service:  service,
		verifier: verifier,
		base:     base,
		lookback: lookbackMonths,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/verify", s.handleVerifyRun)
	mux.HandleFunc("GET /api/markets/{market}/parameters", s.handleLatestParameters)
	mux.HandleFunc("GET /api/markets/{market}/verify", s.handleVerifyMarket)
	mux.HandleFunc("GET /ws/optimize", s.handleOptimizeStream)

	return mux
}

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Market string                   `json:"market"`
	Start  time.Time                `json:"start"`
	End    time.Time                `json:"end"`
	Config *domain.SimulationConfig `json:"config,omitempty"`
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	Market         string                   `json:"market"`
	LookbackMonths int                      `json:"lookback_months,omitempty"`
	Config         *domain.SimulationConfig `json:"config,omitempty"`
}

// StreamMessage is one frame sent on /ws/optimize.
type StreamMessage struct {
	Type     string                    `json:"type"` // progress | result
	Progress *optimize.Progress        `json:"progress,omitempty"`
	Result   *domain.OptimalParameters `json:"result,omitempty"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	InFlight int    `json:"in_flight"`
	Runs     int    `json:"runs"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:   "running",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		InFlight: s.inflight,
		Runs:     s.runs,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	done := s.track()
	defer done()

	result, err := s.service.RunBacktest(r.Context(), strings.ToUpper(req.Market), req.Start, req.End, s.config(req.Config))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Market == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "market is required", Field: "market"})
		return
	}

	done := s.track()
	defer done()

	params := s.service.FindOptimalParameters(r.Context(), strings.ToUpper(req.Market), s.config(req.Config), s.lookbackOr(req.LookbackMonths))
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleVerifyRun replays a stored run and reports ledger divergences.
func (s *Server) handleVerifyRun(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeError(w, backtest.ErrPersistenceDisabled)
		return
	}
	result, err := s.verifier.VerifyRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyMarket replays the latest runs of a market. Query: limit (default 10).
func (s *Server) handleVerifyMarket(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeError(w, backtest.ErrPersistenceDisabled)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = n
	}
	report, err := s.verifier.VerifyMarket(r.Context(), strings.ToUpper(r.PathValue("market")), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestParameters(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.LatestParameters(r.Context(), strings.ToUpper(r.PathValue("market")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleOptimizeStream runs a parameter search and streams progress frames,
// then a final result frame. Query: market, lookback_months.
func (s *Server) handleOptimizeStream(w http.ResponseWriter, r *http.Request) {
	market := strings.ToUpper(r.URL.Query().Get("market"))
	if market == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "market is required", Field: "market"})
		return
	}
	lookback := 0
	if v := r.URL.Query().Get("lookback_months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lookback_months", Field: "lookback_months"})
			return
		}
		lookback = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader loop only detects client disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	done := s.track()
	defer done()

	// Progress callbacks are serialized by the searcher.
	params := s.service.FindOptimalParametersWithProgress(ctx, market, s.base, s.lookbackOr(lookback), func(p optimize.Progress) {
		if err := conn.WriteJSON(StreamMessage{Type: "progress", Progress: &p}); err != nil {
			cancel()
		}
	})

	if ctx.Err() != nil {
		return
	}
	if err := conn.WriteJSON(StreamMessage{Type: "result", Result: &params}); err != nil {
		s.logger.Debug().Err(err).Msg("write result frame")
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func (s *Server) config(override *domain.SimulationConfig) domain.SimulationConfig {
	if override != nil {
		return *override
	}
	return s.base
}

func (s *Server) lookbackOr(n int) int {
	if n > 0 {
		return n
	}
	return s.lookback
}

func (s *Server) track() func() {
	s.mu.Lock()
	s.inflight++
	s.runs++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}
}

// writeError maps service errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var cve *domain.ConfigValidationError
	var die *domain.DataInsufficientError
	switch {
	case errors.As(err, &cve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: cve.Field})
	case errors.As(err, &die):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, backtest.ErrPersistenceDisabled):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
