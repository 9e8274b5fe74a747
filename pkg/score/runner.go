package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"golang.org/x/sync/errgroup"
)

const progressSteps = 10

// Failure enumerates a pair that could not be scored.
type Failure struct {
	ID     int         `json:"id" yaml:"id"`
	Status bias.Status `json:"status" yaml:"status"`
	Error  string      `json:"error" yaml:"error"`
}

// Report is the outcome of a batch run.
type Report struct {
	Rows       []*bias.ScoredPair `json:"-" yaml:"-"`
	Total      int                `json:"total" yaml:"total"`
	Scored     int                `json:"scored" yaml:"scored"`
	Degenerate int                `json:"degenerate" yaml:"degenerate"`
	Failures   []*Failure         `json:"failures,omitempty" yaml:"failures,omitempty"`
	Duration   string             `json:"duration" yaml:"duration"`
}

// Runner scores many pairs on a bounded pool of workers.
type Runner struct {
	scorer  *Scorer
	workers int
}

// NewRunner creates a runner. Workers below 1 default to the CPU count.
func NewRunner(s *Scorer, workers int) (*Runner, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: scorer required", bias.ErrInvalidArgument)
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Runner{scorer: s, workers: workers}, nil
}

// Run scores pairs concurrently. Rows keep the input order. A pair that
// fails is recorded in Failures and does not stop the batch. When ctx is
// cancelled no new pairs are started; the rows completed so far are
// returned together with the context error.
func (r *Runner) Run(ctx context.Context, pairs []bias.SentencePair) (*Report, error) {
	start := time.Now()
	rows := make([]*bias.ScoredPair, len(pairs))

	total := len(pairs)
	logEvery := total / progressSteps
	if logEvery < 1 {
		logEvery = 1
	}
	var done atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for i := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			row, err := r.scorer.ScorePair(ctx, pairs[i])
			if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			if err != nil {
				slog.Debug("pair not scored", "id", pairs[i].ID, "status", row.Status, "error", err)
			}
			rows[i] = row

			if n := done.Add(1); n%int64(logEvery) == 0 {
				slog.Info("scoring progress", "scored", n, "total", total)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{
		Rows:  make([]*bias.ScoredPair, 0, total),
		Total: total,
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		rep.Rows = append(rep.Rows, row)
		switch row.Status {
		case bias.StatusOK:
			rep.Scored++
		case bias.StatusDegenerate:
			rep.Scored++
			rep.Degenerate++
		default:
			rep.Failures = append(rep.Failures, &Failure{
				ID:     row.Pair.ID,
				Status: row.Status,
				Error:  row.Error,
			})
		}
	}
	rep.Duration = time.Since(start).String()

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("scoring interrupted after %d of %d pairs: %w", len(rep.Rows), total, err)
	}
	return rep, nil
}

// Results returns the rows by value, in input order.
func (r *Report) Results() []bias.ScoredPair {
	out := make([]bias.ScoredPair, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, *row)
	}
	return out
}
