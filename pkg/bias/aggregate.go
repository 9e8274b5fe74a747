package bias

import (
	"fmt"
	"math"
)

const (
	// NotApplicable is reported for a directional percentage whose
	// denominator (pairs with that direction) is zero.
	NotApplicable float64 = -1

	// PercentPrecision is the number of decimal digits kept in percentages.
	PercentPrecision = 2

	hundredPercent = 100
)

// Metrics are percentage summaries over a set of classifications.
type Metrics struct {
	Neutral        float64 `json:"neutral_pct" yaml:"neutralPct"`
	Bias           float64 `json:"bias_pct" yaml:"biasPct"`
	Nonbias        float64 `json:"nonbias_pct" yaml:"nonbiasPct"`
	Stereotype     float64 `json:"stereotype_pct" yaml:"stereotypePct"`
	Antistereotype float64 `json:"antistereotype_pct" yaml:"antistereotypePct"`
}

// Counts are the raw tallies behind Metrics.
type Counts struct {
	Total          int `json:"total" yaml:"total"`
	Neutral        int `json:"neutral" yaml:"neutral"`
	Stereotype     int `json:"stereotype" yaml:"stereotype"`
	Antistereotype int `json:"antistereotype" yaml:"antistereotype"`
	Nonbias        int `json:"nonbias" yaml:"nonbias"`
	Stereo         int `json:"stereo" yaml:"stereo"`
	Antistereo     int `json:"antistereo" yaml:"antistereo"`

	// stereotype tags on stereo pairs and antistereotype tags on antistereo pairs
	stereoHits     int
	antistereoHits int
}

// Count tallies classifications by tag and direction.
func Count(list []Classification) Counts {
	var c Counts
	for _, v := range list {
		c.Total++
		switch v.Direction {
		case DirectionStereo:
			c.Stereo++
		case DirectionAntistereo:
			c.Antistereo++
		}
		switch v.Tag {
		case TagNeutral:
			c.Neutral++
		case TagStereotype:
			c.Stereotype++
			if v.Direction == DirectionStereo {
				c.stereoHits++
			}
		case TagAntistereotype:
			c.Antistereotype++
			if v.Direction == DirectionAntistereo {
				c.antistereoHits++
			}
		case TagNonbias:
			c.Nonbias++
		}
	}
	return c
}

// Aggregate reduces classifications, already filtered to the slice of
// interest, into percentage metrics rounded to PercentPrecision digits.
//
// Stereotype is the share of stereo pairs tagged stereotype and
// Antistereotype the share of antistereo pairs tagged antistereotype; each
// is NotApplicable when no pair of that direction is present. An empty
// input is rejected.
//
// The numerators count tag and direction together, not the bare
// stereotype and antistereotype tag totals. The two agree for
// ModeThreshold, which only tags stereo pairs stereotype. ModeStrict can
// tag an antistereo pair stereotype; such a pair counts toward Bias but
// not toward Stereotype.
func Aggregate(list []Classification) (*Metrics, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: aggregation requires at least one classified pair", ErrInvalidArgument)
	}
	return Count(list).Metrics(), nil
}

// Metrics converts counts into percentages.
func (c Counts) Metrics() *Metrics {
	if c.Total == 0 {
		return &Metrics{
			Stereotype:     NotApplicable,
			Antistereotype: NotApplicable,
		}
	}
	m := &Metrics{
		Neutral:        percent(c.Neutral, c.Total),
		Bias:           percent(c.Stereotype+c.Antistereotype, c.Total),
		Nonbias:        percent(c.Nonbias, c.Total),
		Stereotype:     NotApplicable,
		Antistereotype: NotApplicable,
	}
	if c.Stereo > 0 {
		m.Stereotype = percent(c.stereoHits, c.Stereo)
	}
	if c.Antistereo > 0 {
		m.Antistereotype = percent(c.antistereoHits, c.Antistereo)
	}
	return m
}

// IsNotApplicable reports whether v is the NotApplicable sentinel.
func IsNotApplicable(v float64) bool {
	return v == NotApplicable
}

func percent(n, d int) float64 {
	return Round(float64(n)/float64(d)*hundredPercent, PercentPrecision)
}

// Round rounds v to the given number of decimal digits, half away from zero.
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
