package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ErrNoReplayer is returned when the verifier has nothing to replay with.
var ErrNoReplayer = errors.New("verification: no replayer configured")

// Replayer re-executes a backtest. backtest.Service.RunBacktest satisfies it
// when the service does not persist runs.
type Replayer func(ctx context.Context, market string, start, end time.Time, cfg domain.SimulationConfig) (*domain.BacktestResult, error)

// ReplayVerifier implements Verifier over a run store.
type ReplayVerifier struct {
	runStore storage.BacktestRunStore
	replay   Replayer
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	RunStore storage.BacktestRunStore
	Replay   Replayer
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		runStore: opts.RunStore,
		replay:   opts.Replay,
	}
}

// VerifyRun verifies a single run by replaying it.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	if v.replay == nil {
		return nil, ErrNoReplayer
	}
	stored, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return v.verify(ctx, stored)
}

// VerifyMarket verifies the latest limit runs of market.
func (v *ReplayVerifier) VerifyMarket(ctx context.Context, market string, limit int) (*VerificationReport, error) {
	if v.replay == nil {
		return nil, ErrNoReplayer
	}
	runs, err := v.runStore.ListByMarket(ctx, market, limit)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}
	for _, listed := range runs {
		// listings omit trades
		run, err := v.runStore.GetByID(ctx, listed.RunID)
		if err != nil {
			return nil, err
		}
		result, err := v.verify(ctx, run)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}
	return report, nil
}

func (v *ReplayVerifier) verify(ctx context.Context, stored *domain.BacktestRun) (*VerificationResult, error) {
	replayed, err := v.replay(ctx, stored.Market, time.UnixMilli(stored.StartMs).UTC(), time.UnixMilli(stored.EndMs).UTC(), stored.Config)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", stored.RunID, err)
	}

	divergences := CompareTrades(stored.Trades, replayed.Trades)
	divergences = append(divergences, ComparePerformance(stored.Performance, replayed.Performance)...)

	return &VerificationResult{
		RunID:          stored.RunID,
		Match:          len(divergences) == 0,
		Divergences:    divergences,
		StoredReturn:   stored.Performance.TotalReturn,
		ReplayedReturn: replayed.Performance.TotalReturn,
	}, nil
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)
