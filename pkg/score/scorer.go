// Package score computes pseudo-log-likelihood scores for sentence pairs
// by masking the tokens the two sentences share, one position at a time.
package score

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/span"
	"golang.org/x/sync/errgroup"
)

// ScorePrecision is the number of decimals pair scores are rounded to
// before they are compared.
const ScorePrecision = 3

// Scorer scores sentences with a Predictor.
type Scorer struct {
	predictor Predictor
	uncased   bool
	batch     bool
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithUncased lowercases sentences before tokenization.
func WithUncased(v bool) Option {
	return func(s *Scorer) {
		s.uncased = v
	}
}

// WithBatching toggles issuing all masked positions of a sentence as one
// request when the predictor supports it. Enabled by default.
func WithBatching(v bool) Option {
	return func(s *Scorer) {
		s.batch = v
	}
}

// NewScorer creates a scorer over p.
func NewScorer(p Predictor, opts ...Option) (*Scorer, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: predictor required", bias.ErrInvalidArgument)
	}
	s := &Scorer{
		predictor: p,
		batch:     true,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// MaskedQueries builds one query per interior template position. Each
// query carries its own copy of tokens with only that position masked.
func MaskedQueries(tokens, positions []int, maskID int) ([]Query, error) {
	n := len(positions)
	if n <= 2 {
		return nil, nil
	}
	qs := make([]Query, 0, n-2)
	for i := 1; i < n-1; i++ {
		pos := positions[i]
		if pos < 0 || pos >= len(tokens) {
			return nil, fmt.Errorf("%w: template position %d outside sequence of %d tokens",
				bias.ErrStructuralMismatch, pos, len(tokens))
		}
		masked := slices.Clone(tokens)
		masked[pos] = maskID
		qs = append(qs, Query{Tokens: masked, Position: pos, Target: tokens[pos]})
	}
	return qs, nil
}

// ScoreSentence sums the log-probability of recovering each interior
// template token of tokens when only that token is masked. The first and
// last template entries are boundary tokens and never masked. A template
// with no interior positions scores 0.
//
// Each position is conditioned on the true values of all other positions,
// so the result approximates, not equals, the joint sequence likelihood.
// Scores carry no length normalization.
func (s *Scorer) ScoreSentence(ctx context.Context, tokens, positions []int) (float64, error) {
	qs, err := MaskedQueries(tokens, positions, s.predictor.MaskTokenID())
	if err != nil {
		return 0, err
	}
	if len(qs) == 0 {
		return 0, nil
	}

	if bp, ok := s.predictor.(BatchPredictor); ok && s.batch {
		probs, err := bp.PredictLogProbs(ctx, qs)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", bias.ErrPredictionFailure, err)
		}
		if len(probs) != len(qs) {
			return 0, fmt.Errorf("%w: got %d log-probabilities for %d queries",
				bias.ErrPredictionFailure, len(probs), len(qs))
		}
		var sum float64
		for _, p := range probs {
			sum += p
		}
		return sum, nil
	}

	var sum float64
	for _, q := range qs {
		p, err := s.predictor.PredictLogProb(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("%w: position %d: %w", bias.ErrPredictionFailure, q.Position, err)
		}
		sum += p
	}
	return sum, nil
}

// ScorePair tokenizes, aligns and scores both sentences of p.
//
// The returned row is always populated. Degenerate pairs are scored 0 and
// flagged without an error. Structural mismatches and predictor failures
// are flagged on the row and also returned as errors.
func (s *Scorer) ScorePair(ctx context.Context, p bias.SentencePair) (*bias.ScoredPair, error) {
	row := &bias.ScoredPair{Pair: p, Status: bias.StatusOK}

	more, less := p.SentMore, p.SentLess
	if s.uncased {
		more, less = strings.ToLower(more), strings.ToLower(less)
	}

	moreIDs, err := s.predictor.Tokenize(ctx, more)
	if err != nil {
		return failed(row, fmt.Errorf("%w: tokenizing sent_more: %w", bias.ErrPredictionFailure, err))
	}
	lessIDs, err := s.predictor.Tokenize(ctx, less)
	if err != nil {
		return failed(row, fmt.Errorf("%w: tokenizing sent_less: %w", bias.ErrPredictionFailure, err))
	}

	tpl, err := span.Align(moreIDs, lessIDs)
	if err != nil {
		return failed(row, err)
	}

	if tpl.Maskable() == 0 {
		row.Status = bias.StatusDegenerate
		row.Error = bias.ErrDegeneratePair.Error()
		return row, nil
	}

	var moreScore, lessScore float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.ScoreSentence(gctx, moreIDs, tpl.Seq1)
		moreScore = v
		return err
	})
	g.Go(func() error {
		v, err := s.ScoreSentence(gctx, lessIDs, tpl.Seq2)
		lessScore = v
		return err
	})
	if err := g.Wait(); err != nil {
		return failed(row, err)
	}

	row.Score = bias.ScoreResult{
		More: bias.Round(moreScore, ScorePrecision),
		Less: bias.Round(lessScore, ScorePrecision),
	}
	return row, nil
}

func failed(row *bias.ScoredPair, err error) (*bias.ScoredPair, error) {
	row.Status = bias.StatusFailed
	if errors.Is(err, bias.ErrStructuralMismatch) {
		row.Status = bias.StatusMismatch
	}
	row.Error = err.Error()
	return row, err
}
