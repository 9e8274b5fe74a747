package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/data"
	"github.com/mchmarny/biasprobe/pkg/model"
)

const (
	sweepStepDefault = 0.01
	sweepStepMin     = 0.001
)

// dashboard serves aggregates recomputed from stored pair scores.
type dashboard struct {
	store     *data.Store
	registry  *model.Registry
	threshold float64
	mode      bias.Mode
}

type storedModel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Runs      int       `json:"runs"`
	LatestRun string    `json:"latest_run"`
	ScoredAt  time.Time `json:"scored_at"`
}

type modelValue struct {
	Model string  `json:"model"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type metricResponse struct {
	Metric    string        `json:"metric"`
	Threshold float64       `json:"threshold"`
	Mode      bias.Mode     `json:"mode"`
	Category  bias.Category `json:"bias_category"`
	Scores    []*modelValue `json:"scores"`
}

type categoriesResponse struct {
	Model      string               `json:"model"`
	Name       string               `json:"name"`
	Threshold  float64              `json:"threshold"`
	Mode       bias.Mode            `json:"mode"`
	Categories []bias.Category      `json:"categories"`
	Scores     map[string][]float64 `json:"scores"`
}

type sweepSeries struct {
	Model  string    `json:"model"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

type sweepResponse struct {
	Metric     string         `json:"metric"`
	Category   bias.Category  `json:"bias_category"`
	Thresholds []float64      `json:"thresholds"`
	Series     []*sweepSeries `json:"series"`
}

type runResponse struct {
	Run  *data.Run         `json:"run"`
	Rows []bias.ScoredPair `json:"rows"`
}

func newRouter(d *dashboard, mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	for _, m := range mw {
		e.Use(m)
	}

	e.GET("/api/models", d.handleModels)
	e.GET("/api/scores", d.handleScores)
	e.GET("/api/metric", d.handleMetric)
	e.GET("/api/categories", d.handleCategories)
	e.GET("/api/sweep", d.handleSweep)
	e.GET("/api/runs", d.handleRuns)
	e.GET("/api/runs/:id", d.handleRun)

	return e
}

func writeError(c *echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bias.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, data.ErrNotFound):
		status = http.StatusNotFound
	default:
		slog.Error("request failed", "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(status, map[string]string{
		"error":  http.StatusText(status),
		"detail": err.Error(),
	})
}

// classification reads threshold and mode query values, falling back to
// the server defaults.
func (d *dashboard) classification(c *echo.Context) (float64, bias.Mode, error) {
	t := d.threshold
	if v := c.QueryParam("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, "", fmt.Errorf("%w: invalid threshold %q", bias.ErrInvalidArgument, v)
		}
		t = f
	}
	m := d.mode
	if v := c.QueryParam("mode"); v != "" {
		m = bias.Mode(v)
	}
	pm, err := bias.ParseMode(string(m))
	if err != nil {
		return 0, "", err
	}
	if pm == bias.ModeThreshold {
		if err := bias.ValidateThreshold(t); err != nil {
			return 0, "", err
		}
	}
	return t, pm, nil
}

func queryCategory(c *echo.Context) (bias.Category, error) {
	v := c.QueryParam("category")
	if v == "" {
		return bias.CategoryOverall, nil
	}
	return parseCategory(v)
}

// queryModels collects repeated or comma separated model values.
func queryModels(c *echo.Context) []string {
	out := make([]string, 0)
	for _, v := range c.Request().URL.Query()["model"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func (d *dashboard) handleModels(c *echo.Context) error {
	ctx := c.Request().Context()
	list, err := d.store.ListModels(ctx)
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*storedModel, 0, len(list))
	for _, m := range list {
		run, err := d.store.LatestRun(ctx, m.Model)
		if err != nil {
			return writeError(c, err)
		}
		out = append(out, &storedModel{
			ID:        m.Model,
			Name:      d.registry.DisplayName(m.Model),
			Runs:      m.Runs,
			LatestRun: run.ID,
			ScoredAt:  run.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (d *dashboard) handleScores(c *echo.Context) error {
	ctx := c.Request().Context()
	t, mode, err := d.classification(c)
	if err != nil {
		return writeError(c, err)
	}

	opts := &aggregateOptions{
		Models:    queryModels(c),
		Threshold: t,
		Mode:      mode,
	}
	if v := c.QueryParam("category"); v != "" {
		cat, err := parseCategory(v)
		if err != nil {
			return writeError(c, err)
		}
		opts.Categories = []bias.Category{cat}
	}

	table, err := aggregate(ctx, d.store, opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, table)
}

func (d *dashboard) handleMetric(c *echo.Context) error {
	ctx := c.Request().Context()
	name, err := parseMetric(c.QueryParam("metric"))
	if err != nil {
		return writeError(c, err)
	}
	t, mode, err := d.classification(c)
	if err != nil {
		return writeError(c, err)
	}
	cat, err := queryCategory(c)
	if err != nil {
		return writeError(c, err)
	}
	ids, err := storedModels(ctx, d.store, queryModels(c))
	if err != nil {
		return writeError(c, err)
	}

	resp := &metricResponse{
		Metric:    name,
		Threshold: t,
		Mode:      mode,
		Category:  cat,
		Scores:    make([]*modelValue, 0, len(ids)),
	}
	for _, id := range ids {
		_, rows, err := latestRows(ctx, d.store, id)
		if err != nil {
			return writeError(c, err)
		}
		table, err := modelTable(id, rows, t, mode)
		if err != nil {
			return writeError(c, err)
		}
		v := bias.NotApplicable
		if r := tableRow(table, cat); r != nil {
			v = metricValue(&r.Metrics, name)
		}
		resp.Scores = append(resp.Scores, &modelValue{
			Model: id,
			Name:  d.registry.DisplayName(id),
			Value: v,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (d *dashboard) handleCategories(c *echo.Context) error {
	ctx := c.Request().Context()
	id := c.QueryParam("model")
	if id == "" {
		return writeError(c, fmt.Errorf("%w: model required", bias.ErrInvalidArgument))
	}
	t, mode, err := d.classification(c)
	if err != nil {
		return writeError(c, err)
	}

	_, rows, err := latestRows(ctx, d.store, id)
	if err != nil {
		return writeError(c, err)
	}
	table, err := modelTable(id, rows, t, mode)
	if err != nil {
		return writeError(c, err)
	}

	resp := &categoriesResponse{
		Model:      id,
		Name:       d.registry.DisplayName(id),
		Threshold:  t,
		Mode:       mode,
		Categories: make([]bias.Category, 0, len(table)),
		Scores:     make(map[string][]float64, len(metricNames)),
	}
	for _, r := range table {
		if r.Category == bias.CategoryOverall {
			continue
		}
		resp.Categories = append(resp.Categories, r.Category)
		for _, name := range metricNames {
			resp.Scores[name] = append(resp.Scores[name], metricValue(&r.Metrics, name))
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// sweepThresholds returns 0 through 1 in increments of step.
func sweepThresholds(step float64) ([]float64, error) {
	if !(step >= sweepStepMin && step <= 1) {
		return nil, fmt.Errorf("%w: step has to be between %v and 1, got %v", bias.ErrInvalidArgument, sweepStepMin, step)
	}
	n := int(math.Floor(1/step + 1e-9))
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, bias.Round(float64(i)*step, 6))
	}
	return out, nil
}

func (d *dashboard) handleSweep(c *echo.Context) error {
	ctx := c.Request().Context()
	name, err := parseMetric(c.QueryParam("metric"))
	if err != nil {
		return writeError(c, err)
	}
	cat, err := queryCategory(c)
	if err != nil {
		return writeError(c, err)
	}
	step := sweepStepDefault
	if v := c.QueryParam("step"); v != "" {
		if step, err = strconv.ParseFloat(v, 64); err != nil {
			return writeError(c, fmt.Errorf("%w: invalid step %q", bias.ErrInvalidArgument, v))
		}
	}
	thresholds, err := sweepThresholds(step)
	if err != nil {
		return writeError(c, err)
	}
	ids, err := storedModels(ctx, d.store, queryModels(c))
	if err != nil {
		return writeError(c, err)
	}

	resp := &sweepResponse{
		Metric:     name,
		Category:   cat,
		Thresholds: thresholds,
		Series:     make([]*sweepSeries, 0, len(ids)),
	}
	for _, id := range ids {
		_, rows, err := latestRows(ctx, d.store, id)
		if err != nil {
			return writeError(c, err)
		}
		list, err := bias.ClassifyAll(rows, 0, bias.ModeThreshold)
		if err != nil {
			return writeError(c, err)
		}
		if len(bias.FilterCategory(list, cat)) == 0 {
			continue
		}

		s := &sweepSeries{
			Model:  id,
			Name:   d.registry.DisplayName(id),
			Values: make([]float64, 0, len(thresholds)),
		}
		for _, t := range thresholds {
			list, err := bias.ClassifyAll(rows, t, bias.ModeThreshold)
			if err != nil {
				return writeError(c, err)
			}
			m, err := bias.Aggregate(bias.FilterCategory(list, cat))
			if err != nil {
				return writeError(c, err)
			}
			s.Values = append(s.Values, metricValue(m, name))
		}
		resp.Series = append(resp.Series, s)
	}
	return c.JSON(http.StatusOK, resp)
}

func (d *dashboard) handleRuns(c *echo.Context) error {
	limit := defaultRunLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return writeError(c, fmt.Errorf("%w: invalid limit %q", bias.ErrInvalidArgument, v))
		}
		limit = n
	}
	list, err := d.store.ListRuns(c.Request().Context(), c.QueryParam("model"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (d *dashboard) handleRun(c *echo.Context) error {
	ctx := c.Request().Context()
	run, err := d.store.GetRun(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	rows, err := d.store.GetScores(ctx, run.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &runResponse{Run: run, Rows: rows})
}
