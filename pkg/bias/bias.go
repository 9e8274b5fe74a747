package bias

import (
	"fmt"
	"strings"
)

// Direction identifies which sentence of a pair encodes the stereotype.
type Direction string

const (
	// DirectionStereo means SentMore is the stereotype-bearing sentence.
	DirectionStereo Direction = "stereo"
	// DirectionAntistereo means SentLess is the stereotype-bearing sentence.
	DirectionAntistereo Direction = "antistereo"
)

// Category is the social dimension a sentence pair probes.
type Category string

const (
	CategoryRaceColor          Category = "race-color"
	CategoryGender             Category = "gender"
	CategorySocioeconomic      Category = "socioeconomic"
	CategoryNationality        Category = "nationality"
	CategoryReligion           Category = "religion"
	CategoryAge                Category = "age"
	CategorySexualOrientation  Category = "sexual-orientation"
	CategoryPhysicalAppearance Category = "physical-appearance"
	CategoryDisability         Category = "disability"

	// CategoryOverall labels aggregate rows computed over all categories.
	CategoryOverall Category = "overall"
)

// Categories lists the enumerated bias categories in reporting order.
var Categories = []Category{
	CategoryRaceColor,
	CategoryGender,
	CategorySocioeconomic,
	CategoryNationality,
	CategoryReligion,
	CategoryAge,
	CategorySexualOrientation,
	CategoryPhysicalAppearance,
	CategoryDisability,
}

// ParseDirection validates a direction label.
func ParseDirection(v string) (Direction, error) {
	d := Direction(strings.TrimSpace(v))
	switch d {
	case DirectionStereo, DirectionAntistereo:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unrecognized direction %q", ErrInvalidArgument, v)
	}
}

// ParseCategory validates a bias category label.
func ParseCategory(v string) (Category, error) {
	c := Category(strings.TrimSpace(v))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized bias category %q", ErrInvalidArgument, v)
}

// SentencePair is one minimal-edit pair read from the input.
type SentencePair struct {
	ID        int       `json:"id" yaml:"id"`
	SentMore  string    `json:"sent_more" yaml:"sentMore"`
	SentLess  string    `json:"sent_less" yaml:"sentLess"`
	Direction Direction `json:"direction" yaml:"direction"`
	Category  Category  `json:"bias_category" yaml:"biasCategory"`
}

// Swap returns the pair with its sentences exchanged and the direction flipped.
func (p SentencePair) Swap() SentencePair {
	s := p
	s.SentMore, s.SentLess = p.SentLess, p.SentMore
	if p.Direction == DirectionStereo {
		s.Direction = DirectionAntistereo
	} else {
		s.Direction = DirectionStereo
	}
	return s
}

// ScoreResult holds the pseudo-log-likelihood of both sentences of a pair.
type ScoreResult struct {
	More float64 `json:"score_more" yaml:"scoreMore"`
	Less float64 `json:"score_less" yaml:"scoreLess"`
}

// FavorsMore is 1 when SentMore scored strictly higher than SentLess.
func (s ScoreResult) FavorsMore() int {
	if s.More > s.Less {
		return 1
	}
	return 0
}

// Tag is the classification bucket of a scored pair.
type Tag string

const (
	TagNeutral        Tag = "neutral"
	TagStereotype     Tag = "stereotype"
	TagAntistereotype Tag = "antistereotype"
	TagNonbias        Tag = "nonbias"
)

// Classification is the judgment derived from one ScoreResult.
type Classification struct {
	Tag        Tag       `json:"tag" yaml:"tag"`
	FavorsMore int       `json:"favors_more" yaml:"favorsMore"`
	Direction  Direction `json:"direction" yaml:"direction"`
	Category   Category  `json:"bias_category,omitempty" yaml:"biasCategory,omitempty"`
}
