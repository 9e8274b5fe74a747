package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 22, reg.Len())

	m, err := reg.Get("bert-base-uncased")
	require.NoError(t, err)
	assert.Equal(t, "BERT Base (uncased)", m.Name)
	assert.Equal(t, FamilyBERT, m.Family)
	assert.True(t, m.Uncased)
	assert.Equal(t, int64(4092371), m.MonthlyDownloads)

	m, err = reg.Get("distilbert-base-multilingual-cased")
	require.NoError(t, err)
	assert.False(t, m.Uncased)
	assert.Equal(t, FamilyDistilBERT, m.Family)

	assert.Len(t, reg.ByFamily(FamilyALBERT), 2)
	assert.Len(t, reg.ByFamily(FamilyRoBERTa), 5)
	assert.Len(t, reg.ByFamily(FamilyXLMRoBERTa), 1)

	list := reg.List()
	assert.Equal(t, "bert-base-cased", list[0].ID)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].MonthlyDownloads, list[i].MonthlyDownloads)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	_, err = reg.Get("gpt-2")
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)
	assert.Equal(t, "gpt-2", reg.DisplayName("gpt-2"))
	assert.Equal(t, "SciBERT", reg.DisplayName("allenai/scibert_scivocab_uncased"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing id", "models:\n  - family: bert\n"},
		{"bad family", "models:\n  - id: m\n    family: gpt\n"},
		{"duplicate", "models:\n  - id: m\n    family: bert\n  - id: m\n    family: bert\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, bias.ErrInvalidArgument)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - id: tiny-bert\n    family: bert\n    uncased: true\n"), 0600))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	m, err := reg.Get("tiny-bert")
	require.NoError(t, err)
	assert.Equal(t, "tiny-bert", m.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

type nopPredictor struct{ family Family }

func (nopPredictor) Tokenize(context.Context, string) ([]int, error) {
	return []int{0, 1}, nil
}

func (nopPredictor) MaskTokenID() int {
	return 4
}

func (nopPredictor) PredictLogProb(context.Context, score.Query) (float64, error) {
	return 0, nil
}

func TestFactory_Dispatch(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	f := NewFactory(func(_ context.Context, _ *Info) (score.Predictor, error) {
		return nopPredictor{family: "fallback"}, nil
	})
	f.Register(FamilyRoBERTa, func(_ context.Context, m *Info) (score.Predictor, error) {
		return nopPredictor{family: m.Family}, nil
	})

	rob, err := reg.Get("roberta-base")
	require.NoError(t, err)
	p, err := f.Predictor(context.Background(), rob)
	require.NoError(t, err)
	assert.Equal(t, FamilyRoBERTa, p.(nopPredictor).family)

	bert, err := reg.Get("bert-base-cased")
	require.NoError(t, err)
	p, err = f.Predictor(context.Background(), bert)
	require.NoError(t, err)
	assert.Equal(t, Family("fallback"), p.(nopPredictor).family)

	s, err := f.Scorer(context.Background(), bert)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestFactory_Errors(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Predictor(context.Background(), nil)
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)

	_, err = f.Predictor(context.Background(), &Info{ID: "m", Family: FamilyBERT})
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)

	boom := errors.New("boom")
	f.Register(FamilyBERT, func(context.Context, *Info) (score.Predictor, error) { return nil, boom })
	_, err = f.Predictor(context.Background(), &Info{ID: "m", Family: FamilyBERT})
	assert.ErrorIs(t, err, boom)
}
