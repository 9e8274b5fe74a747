package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/data"
)

const (
	metricNeutral        = "neutral_score"
	metricBias           = "bias_score"
	metricNonbias        = "nonbias_score"
	metricStereotype     = "stereotype_score"
	metricAntistereotype = "antistereotype_score"

	metricSuffix = "_score"
)

var metricNames = []string{metricNeutral, metricBias, metricNonbias, metricStereotype, metricAntistereotype}

// parseMetric accepts a metric name with or without its _score suffix, or
// with the _pct suffix used by the aggregate columns.
func parseMetric(v string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(v))
	n = strings.TrimSuffix(n, "_pct")
	if !strings.HasSuffix(n, metricSuffix) {
		n += metricSuffix
	}
	if !slices.Contains(metricNames, n) {
		return "", fmt.Errorf("%w: metric must be one of neutral, bias, nonbias, stereotype or antistereotype, got %q",
			bias.ErrInvalidArgument, v)
	}
	return n, nil
}

func metricValue(m *bias.Metrics, name string) float64 {
	switch name {
	case metricNeutral:
		return m.Neutral
	case metricBias:
		return m.Bias
	case metricNonbias:
		return m.Nonbias
	case metricStereotype:
		return m.Stereotype
	case metricAntistereotype:
		return m.Antistereotype
	default:
		return bias.NotApplicable
	}
}

// parseCategory accepts an enumerated bias category or overall.
func parseCategory(v string) (bias.Category, error) {
	if c := bias.Category(strings.TrimSpace(v)); c == bias.CategoryOverall {
		return c, nil
	}
	return bias.ParseCategory(v)
}

// latestRows returns the rows of the newest run of model.
func latestRows(ctx context.Context, store *data.Store, model string) (*data.Run, []bias.ScoredPair, error) {
	run, rows, err := store.LatestScores(ctx, model)
	if err != nil {
		return nil, nil, fmt.Errorf("reading scores of %s: %w", model, err)
	}
	return run, rows, nil
}

// modelTable builds the aggregate table of a model's stored rows. A run
// without any scored pair yields a nil table.
func modelTable(model string, rows []bias.ScoredPair, threshold float64, mode bias.Mode) ([]*bias.AggregateRow, error) {
	if !slices.ContainsFunc(rows, func(r bias.ScoredPair) bool { return r.Status.Scored() }) {
		return nil, nil
	}
	return bias.BuildTable(model, rows, threshold, mode)
}

// storedModels returns ids, or every model with a stored run when ids is
// empty.
func storedModels(ctx context.Context, store *data.Store, ids []string) ([]string, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	list, err := store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.Model)
	}
	return out, nil
}

// tableRow returns the row of cat, nil when the category had no pairs.
func tableRow(table []*bias.AggregateRow, cat bias.Category) *bias.AggregateRow {
	if cat == "" {
		cat = bias.CategoryOverall
	}
	for _, r := range table {
		if r.Category == cat {
			return r
		}
	}
	return nil
}

// filterTable keeps the rows of the given categories. No categories keeps
// the whole table.
func filterTable(table []*bias.AggregateRow, cats []bias.Category) []*bias.AggregateRow {
	if len(cats) == 0 {
		return table
	}
	out := make([]*bias.AggregateRow, 0, len(cats))
	for _, r := range table {
		if slices.Contains(cats, r.Category) {
			out = append(out, r)
		}
	}
	return out
}
