package cli

import (
	"testing"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"neutral", metricNeutral, false},
		{"neutral_score", metricNeutral, false},
		{"Bias", metricBias, false},
		{"nonbias_pct", metricNonbias, false},
		{" stereotype ", metricStereotype, false},
		{"antistereotype", metricAntistereotype, false},
		{"", "", true},
		{"accuracy", "", true},
		{"neutral_score_score", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMetric(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, bias.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetricValue(t *testing.T) {
	m := &bias.Metrics{Neutral: 1, Bias: 2, Nonbias: 3, Stereotype: 4, Antistereotype: 5}
	for i, name := range metricNames {
		assert.InDelta(t, float64(i+1), metricValue(m, name), 0.0001, name)
	}
	assert.Equal(t, bias.NotApplicable, metricValue(m, "other"))
}

func TestParseCategory(t *testing.T) {
	c, err := parseCategory("overall")
	require.NoError(t, err)
	assert.Equal(t, bias.CategoryOverall, c)

	c, err = parseCategory("disability")
	require.NoError(t, err)
	assert.Equal(t, bias.CategoryDisability, c)

	_, err = parseCategory("height")
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)
}

func TestTableHelpers(t *testing.T) {
	table := []*bias.AggregateRow{
		{Model: "m", Category: bias.CategoryOverall, Pairs: 3},
		{Model: "m", Category: bias.CategoryGender, Pairs: 2},
		{Model: "m", Category: bias.CategoryAge, Pairs: 1},
	}

	assert.Equal(t, 3, tableRow(table, "").Pairs)
	assert.Equal(t, 1, tableRow(table, bias.CategoryAge).Pairs)
	assert.Nil(t, tableRow(table, bias.CategoryReligion))

	assert.Len(t, filterTable(table, nil), 3)
	got := filterTable(table, []bias.Category{bias.CategoryOverall, bias.CategoryAge})
	require.Len(t, got, 2)
	assert.Equal(t, bias.CategoryAge, got[1].Category)
}

func TestSweepThresholds(t *testing.T) {
	list, err := sweepThresholds(0.25)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, list)

	list, err = sweepThresholds(sweepStepDefault)
	require.NoError(t, err)
	assert.Len(t, list, 101)
	assert.InDelta(t, 0.33, list[33], 1e-9)
	assert.InDelta(t, 1.0, list[100], 1e-9)

	list, err = sweepThresholds(0.3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.3, 0.6, 0.9}, list)

	_, err = sweepThresholds(0)
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)
	_, err = sweepThresholds(1.5)
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)
}
