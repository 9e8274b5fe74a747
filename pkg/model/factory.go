package model

import (
	"context"
	"fmt"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/score"
)

// Constructor creates the predictor serving one model.
type Constructor func(ctx context.Context, m *Info) (score.Predictor, error)

// Factory maps a model family to the constructor of its predictor.
type Factory struct {
	constructors map[Family]Constructor
	fallback     Constructor
}

// NewFactory creates a factory. The fallback, when not nil, serves
// families without a registered constructor.
func NewFactory(fallback Constructor) *Factory {
	return &Factory{
		constructors: make(map[Family]Constructor),
		fallback:     fallback,
	}
}

// Register sets the constructor for a family.
func (f *Factory) Register(family Family, c Constructor) {
	f.constructors[family] = c
}

// Predictor returns the predictor for m, dispatched on its family.
func (f *Factory) Predictor(ctx context.Context, m *Info) (score.Predictor, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model required", bias.ErrInvalidArgument)
	}
	c, ok := f.constructors[m.Family]
	if !ok {
		c = f.fallback
	}
	if c == nil {
		return nil, fmt.Errorf("%w: no predictor for family %q of model %s", bias.ErrInvalidArgument, m.Family, m.ID)
	}
	p, err := c(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("creating predictor for %s: %w", m.ID, err)
	}
	return p, nil
}

// Scorer returns a scorer for m with its casing applied.
func (f *Factory) Scorer(ctx context.Context, m *Info, opts ...score.Option) (*score.Scorer, error) {
	p, err := f.Predictor(ctx, m)
	if err != nil {
		return nil, err
	}
	opts = append([]score.Option{score.WithUncased(m.Uncased)}, opts...)
	return score.NewScorer(p, opts...)
}
