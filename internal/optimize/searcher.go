package optimize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// DefaultSampleSize is the number of grid candidates evaluated per search.
const DefaultSampleSize = 20

// ErrNonFiniteScore marks a candidate whose report produced a NaN or Inf score.
var ErrNonFiniteScore = errors.New("non-finite score")

// Evaluator runs one full simulation and aggregation for cfg.
type Evaluator func(ctx context.Context, cfg domain.SimulationConfig) (domain.PerformanceReport, error)

// Shuffler permutes n elements. *math/rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Progress is reported after each evaluated candidate.
type Progress struct {
	Index     int                      `json:"index"`
	Total     int                      `json:"total"`
	Candidate Candidate                `json:"candidate"`
	Score     float64                  `json:"score"`
	Error     string                   `json:"error,omitempty"`
	Best      domain.OptimalParameters `json:"best"`
}

// SearcherOptions contains configuration for creating a Searcher.
type SearcherOptions struct {
	Evaluate    Evaluator
	Shuffler    Shuffler
	SampleSize  int
	Parallelism int
	Progress    func(Progress)
	Logger      *zerolog.Logger
}

// Searcher samples the parameter grid and keeps the best-scoring candidate.
type Searcher struct {
	evaluate    Evaluator
	shuffler    Shuffler
	sampleSize  int
	parallelism int
	progress    func(Progress)
	logger      zerolog.Logger
}

// NewSearcher creates a Searcher. A nil Shuffler keeps grid order.
func NewSearcher(opts SearcherOptions) *Searcher {
	s := &Searcher{
		evaluate:    opts.Evaluate,
		shuffler:    opts.Shuffler,
		sampleSize:  opts.SampleSize,
		parallelism: opts.Parallelism,
		progress:    opts.Progress,
		logger:      zerolog.Nop(),
	}
	if s.sampleSize <= 0 {
		s.sampleSize = DefaultSampleSize
	}
	if s.parallelism <= 0 {
		s.parallelism = 1
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	return s
}

// Sample shuffles the grid and takes the first SampleSize candidates.
func (s *Searcher) Sample() []Candidate {
	grid := Grid()
	if s.shuffler != nil {
		s.shuffler.Shuffle(len(grid), func(i, j int) { grid[i], grid[j] = grid[j], grid[i] })
	}
	if s.sampleSize < len(grid) {
		grid = grid[:s.sampleSize]
	}
	return grid
}

type result struct {
	score float64
	err   error
}

// Search evaluates the sampled candidates against base and returns the best.
// Failed candidates are skipped. When none succeeds, or ctx ends before any
// does, it returns domain.DefaultOptimalParameters. Ties keep the earliest
// candidate in sample order.
func (s *Searcher) Search(ctx context.Context, base domain.SimulationConfig) domain.OptimalParameters {
	candidates := s.Sample()
	results := make([]result, len(candidates))
	evaluated := make([]bool, len(candidates))

	var mu sync.Mutex
	best := domain.DefaultOptimalParameters()
	bestIdx := -1
	done := 0

	record := func(i int, r result) {
		mu.Lock()
		defer mu.Unlock()

		results[i] = r
		evaluated[i] = true
		done++

		status := "success"
		if r.err != nil {
			status = "error"
			s.logger.Warn().Err(r.err).Int("candidate", i).Msg("candidate failed")
		} else if bestIdx < 0 || r.score > results[bestIdx].score || (r.score == results[bestIdx].score && i < bestIdx) {
			bestIdx = i
			best = toParams(candidates[i], r.score)
		}
		observability.RecordSearchCandidate(status)

		if s.progress != nil {
			p := Progress{Index: done, Total: len(candidates), Candidate: candidates[i], Score: r.score, Best: best}
			if r.err != nil {
				p.Error = r.err.Error()
			}
			s.progress(p)
		}
	}

	if s.parallelism > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism)
		for i := range candidates {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				record(i, s.run(gctx, base, candidates[i]))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range candidates {
			if ctx.Err() != nil {
				break
			}
			record(i, s.run(ctx, base, candidates[i]))
		}
	}

	failed := 0
	count := 0
	for i := range candidates {
		if !evaluated[i] {
			continue
		}
		count++
		if results[i].err != nil {
			failed++
		}
	}

	best.Evaluated = count
	best.Failed = failed

	s.logger.Info().
		Int("evaluated", count).
		Int("failed", failed).
		Float64("score", best.Score).
		Bool("default", best.Default).
		Msg("parameter search complete")
	return best
}

// run evaluates one candidate, converting panics into errors.
func (s *Searcher) run(ctx context.Context, base domain.SimulationConfig, c Candidate) (r result) {
	defer func() {
		if p := recover(); p != nil {
			r = result{err: fmt.Errorf("candidate panicked: %v", p)}
		}
	}()

	if s.evaluate == nil {
		return result{err: errors.New("no evaluator")}
	}
	report, err := s.evaluate(ctx, c.Apply(base))
	if err != nil {
		return result{err: err}
	}
	score, ok := Score(report)
	if !ok {
		return result{err: ErrNonFiniteScore}
	}
	return result{score: score}
}

func toParams(c Candidate, score float64) domain.OptimalParameters {
	return domain.OptimalParameters{
		RSIOverbought:         c.RSIOverbought,
		RSIOversold:           c.RSIOversold,
		MinConfidenceForTrade: c.MinConfidenceForTrade,
		BuyRatio:              c.BuyRatio,
		SellRatio:             c.SellRatio,
		Score:                 score,
	}
}
