package score

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	testCLS  = 101
	testSEP  = 102
	testMask = 103
)

var errBoom = errors.New("boom")

// fakePredictor is a deterministic stand-in for a masked language model.
// Every token's log-probability depends on the token and on the unmasked
// context, so changing any context token changes the score.
type fakePredictor struct {
	failOn string

	mu    sync.Mutex
	texts []string

	calls      atomic.Int64
	batchCalls atomic.Int64
}

func wordID(w string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return int(h.Sum32()%5000) + 1000
}

func (f *fakePredictor) Tokenize(_ context.Context, text string) ([]int, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	text = strings.ReplaceAll(text, ".", " .")
	ids := []int{testCLS}
	for _, w := range strings.Fields(text) {
		ids = append(ids, wordID(w))
	}
	return append(ids, testSEP), nil
}

func (f *fakePredictor) MaskTokenID() int {
	return testMask
}

func (f *fakePredictor) PredictLogProb(_ context.Context, q Query) (float64, error) {
	f.calls.Add(1)
	return f.logProb(q)
}

func (f *fakePredictor) logProb(q Query) (float64, error) {
	if q.Position < 0 || q.Position >= len(q.Tokens) {
		return 0, fmt.Errorf("position %d out of range", q.Position)
	}
	masks := 0
	ctxSum := 0
	for i, t := range q.Tokens {
		if t == testMask {
			masks++
			continue
		}
		ctxSum += t * (i + 1)
	}
	if masks != 1 || q.Tokens[q.Position] != testMask {
		return 0, fmt.Errorf("expected exactly one mask at %d, got %d", q.Position, masks)
	}
	if f.failOn != "" && q.Target == wordID(f.failOn) {
		return 0, errBoom
	}
	return -(float64((q.Target*31+ctxSum)%97)/10 + 0.5), nil
}

type fakeBatchPredictor struct {
	fakePredictor
}

func (f *fakeBatchPredictor) PredictLogProbs(_ context.Context, qs []Query) ([]float64, error) {
	f.batchCalls.Add(1)
	out := make([]float64, 0, len(qs))
	for _, q := range qs {
		v, err := f.logProb(q)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// exclusivePredictor fails whenever two calls overlap.
type exclusivePredictor struct {
	fakePredictor
	inflight atomic.Int32
	overlaps atomic.Int32
}

func (e *exclusivePredictor) enter() func() {
	if e.inflight.Add(1) > 1 {
		e.overlaps.Add(1)
	}
	return func() { e.inflight.Add(-1) }
}

func (e *exclusivePredictor) Tokenize(ctx context.Context, text string) ([]int, error) {
	defer e.enter()()
	return e.fakePredictor.Tokenize(ctx, text)
}

func (e *exclusivePredictor) PredictLogProb(ctx context.Context, q Query) (float64, error) {
	defer e.enter()()
	return e.fakePredictor.PredictLogProb(ctx, q)
}
