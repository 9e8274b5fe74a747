package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/data"
	"github.com/mchmarny/biasprobe/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*echo.Echo, *data.Store) {
	t.Helper()
	s, _ := seedStore(t)
	reg, err := model.Default()
	require.NoError(t, err)
	return newRouter(&dashboard{
		store:     s,
		registry:  reg,
		threshold: 0.05,
		mode:      bias.ModeThreshold,
	}), s
}

func get(t *testing.T, e *echo.Echo, path string, target any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if target != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target), rec.Body.String())
	}
	return rec.Code
}

func TestAPI_Models(t *testing.T) {
	e, _ := newTestRouter(t)

	var list []*storedModel
	require.Equal(t, http.StatusOK, get(t, e, "/api/models", &list))
	require.Len(t, list, 2)
	assert.Equal(t, testModelA, list[0].ID)
	assert.Equal(t, "BERT Base (uncased)", list[0].Name)
	assert.Equal(t, 2, list[0].Runs)
	assert.NotEmpty(t, list[0].LatestRun)
	assert.Equal(t, testModelB, list[1].ID)
	assert.Equal(t, 1, list[1].Runs)
}

func TestAPI_Scores(t *testing.T) {
	e, _ := newTestRouter(t)

	var table []*bias.AggregateRow
	require.Equal(t, http.StatusOK, get(t, e, "/api/scores?model="+testModelA, &table))
	require.Len(t, table, 3)

	overall := table[0]
	assert.Equal(t, bias.CategoryOverall, overall.Category)
	assert.Equal(t, 3, overall.Pairs)
	assert.InDelta(t, 33.33, overall.Neutral, 0.001)
	assert.InDelta(t, 33.33, overall.Bias, 0.001)
	assert.InDelta(t, 33.33, overall.Nonbias, 0.001)
	assert.InDelta(t, 50.0, overall.Stereotype, 0.001)
	assert.InDelta(t, 0.0, overall.Antistereotype, 0.001)

	assert.Equal(t, bias.CategoryGender, table[1].Category)
	assert.Equal(t, bias.CategoryAge, table[2].Category)
	assert.Equal(t, bias.NotApplicable, table[2].Antistereotype)

	table = nil
	require.Equal(t, http.StatusOK, get(t, e, "/api/scores?model="+testModelA+"&category=gender", &table))
	require.Len(t, table, 1)
	assert.InDelta(t, 100.0, table[0].Stereotype, 0.001)

	table = nil
	require.Equal(t, http.StatusOK, get(t, e, "/api/scores?model="+testModelA+"&threshold=1", &table))
	assert.InDelta(t, 100.0, table[0].Neutral, 0.001)

	table = nil
	require.Equal(t, http.StatusOK, get(t, e, "/api/scores", &table))
	assert.Len(t, table, 5)
}

func TestAPI_ScoresInvalid(t *testing.T) {
	e, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/scores?threshold=2", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/scores?threshold=abc", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/scores?mode=fuzzy", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/scores?category=height", nil))
	assert.Equal(t, http.StatusNotFound, get(t, e, "/api/scores?model=albert-base-v2", nil))
}

func TestAPI_Metric(t *testing.T) {
	e, _ := newTestRouter(t)

	for _, name := range []string{"neutral", "neutral_score", "neutral_pct"} {
		var resp metricResponse
		require.Equal(t, http.StatusOK, get(t, e, "/api/metric?metric="+name, &resp))
		assert.Equal(t, metricNeutral, resp.Metric)
		require.Len(t, resp.Scores, 2)
		assert.Equal(t, testModelA, resp.Scores[0].Model)
		assert.InDelta(t, 33.33, resp.Scores[0].Value, 0.001)
		assert.Equal(t, "RoBERTa Base", resp.Scores[1].Name)
		assert.InDelta(t, 0.0, resp.Scores[1].Value, 0.001)
	}

	var resp metricResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/metric?metric=nonbias&model="+testModelB, &resp))
	require.Len(t, resp.Scores, 1)
	assert.InDelta(t, 100.0, resp.Scores[0].Value, 0.001)

	resp = metricResponse{}
	require.Equal(t, http.StatusOK, get(t, e, "/api/metric?metric=stereotype&category=age", &resp))
	require.Len(t, resp.Scores, 2)
	assert.InDelta(t, 0.0, resp.Scores[0].Value, 0.001)
	assert.Equal(t, bias.NotApplicable, resp.Scores[1].Value)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/metric?metric=accuracy", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/metric", nil))
}

func TestAPI_ModelWithoutScoredPairs(t *testing.T) {
	e, s := newTestRouter(t)
	require.NoError(t, s.SaveRun(context.Background(), &data.Run{Model: "albert-base-v1"}, []bias.ScoredPair{
		{Pair: pair(1, bias.DirectionStereo, bias.CategoryGender), Status: bias.StatusFailed, Error: "connection refused"},
	}))

	var resp metricResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/metric?metric=bias", &resp))
	require.Len(t, resp.Scores, 3)
	assert.Equal(t, "albert-base-v1", resp.Scores[0].Model)
	assert.Equal(t, bias.NotApplicable, resp.Scores[0].Value)
	assert.InDelta(t, 33.33, resp.Scores[1].Value, 0.001)

	var table []*bias.AggregateRow
	require.Equal(t, http.StatusOK, get(t, e, "/api/scores", &table))
	for _, r := range table {
		assert.NotEqual(t, "albert-base-v1", r.Model)
	}
	assert.Equal(t, testModelA, table[0].Model)

	var cats categoriesResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/categories?model=albert-base-v1", &cats))
	assert.Empty(t, cats.Categories)
}

func TestAPI_Categories(t *testing.T) {
	e, _ := newTestRouter(t)

	var resp categoriesResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/categories?model="+testModelA, &resp))
	assert.Equal(t, []bias.Category{bias.CategoryGender, bias.CategoryAge}, resp.Categories)
	assert.Equal(t, []float64{0, 100}, resp.Scores[metricNeutral])
	assert.Equal(t, []float64{50, 0}, resp.Scores[metricBias])
	assert.Equal(t, []float64{0, bias.NotApplicable}, resp.Scores[metricAntistereotype])

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/categories", nil))
}

func TestAPI_Sweep(t *testing.T) {
	e, _ := newTestRouter(t)

	var resp sweepResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/sweep?metric=neutral&step=0.5&model="+testModelA, &resp))
	assert.Equal(t, []float64{0, 0.5, 1}, resp.Thresholds)
	require.Len(t, resp.Series, 1)
	assert.Equal(t, []float64{33.33, 66.67, 100}, resp.Series[0].Values)

	resp = sweepResponse{}
	require.Equal(t, http.StatusOK, get(t, e, "/api/sweep?metric=neutral&category=age", &resp))
	assert.Len(t, resp.Series, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/sweep?metric=neutral&step=0", nil))
}

func TestAPI_Runs(t *testing.T) {
	e, _ := newTestRouter(t)

	var list []*data.Run
	require.Equal(t, http.StatusOK, get(t, e, "/api/runs?model="+testModelA, &list))
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	var resp runResponse
	require.Equal(t, http.StatusOK, get(t, e, "/api/runs/"+list[0].ID, &resp))
	assert.Equal(t, list[0].ID, resp.Run.ID)
	assert.Len(t, resp.Rows, 4)
	assert.Equal(t, bias.StatusFailed, resp.Rows[3].Status)

	assert.Equal(t, http.StatusNotFound, get(t, e, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/runs?limit=x", nil))
}
