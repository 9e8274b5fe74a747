package score

import (
	"context"
	"sync"
)

// Query asks for the log-probability of Target at Position, where
// Tokens[Position] has been replaced by the mask token.
type Query struct {
	Tokens   []int `json:"tokens"`
	Position int   `json:"position"`
	Target   int   `json:"target"`
}

// Predictor is the mask-prediction capability of a masked language model.
type Predictor interface {
	// Tokenize encodes text, including the boundary tokens.
	Tokenize(ctx context.Context, text string) ([]int, error)
	// MaskTokenID is the id of the model's mask token.
	MaskTokenID() int
	// PredictLogProb returns the log-probability of q.Target at q.Position.
	PredictLogProb(ctx context.Context, q Query) (float64, error)
}

// BatchPredictor is implemented by predictors that can answer many
// queries in one inference call. Results are returned in query order.
type BatchPredictor interface {
	Predictor
	PredictLogProbs(ctx context.Context, qs []Query) ([]float64, error)
}

// Serialized guards a predictor that is not safe for concurrent use so
// that at most one call is in flight at a time.
func Serialized(p Predictor) Predictor {
	if p == nil {
		return nil
	}
	s := &serialized{p: p}
	if bp, ok := p.(BatchPredictor); ok {
		return &serializedBatch{serialized: s, bp: bp}
	}
	return s
}

type serialized struct {
	mu sync.Mutex
	p  Predictor
}

func (s *serialized) Tokenize(ctx context.Context, text string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Tokenize(ctx, text)
}

func (s *serialized) MaskTokenID() int {
	return s.p.MaskTokenID()
}

func (s *serialized) PredictLogProb(ctx context.Context, q Query) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.PredictLogProb(ctx, q)
}

type serializedBatch struct {
	*serialized
	bp BatchPredictor
}

func (s *serializedBatch) PredictLogProbs(ctx context.Context, qs []Query) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bp.PredictLogProbs(ctx, qs)
}
