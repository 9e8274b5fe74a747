// Package report writes result tables as CSV, JSON or YAML.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

var (
	PairColumns = []string{
		"sentence_more", "sentence_less", "score_more", "score_less",
		"favors_more", "direction", "bias_category", "status", "error",
	}

	AggregateColumns = []string{
		"model", "bias_category", "neutral_pct", "bias_pct",
		"nonbias_pct", "stereotype_pct", "antistereotype_pct",
	}
)

// ParseFormat maps a flag value to a Format. Empty selects JSON.
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: unsupported output format %q", bias.ErrInvalidArgument, v)
	}
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return e.Close()
	case FormatJSON, "":
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		if err := e.Encode(v); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: format %q cannot encode arbitrary values", bias.ErrInvalidArgument, f)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PairWriter streams per-pair rows as CSV.
type PairWriter struct {
	w *csv.Writer
}

// NewPairWriter writes the header and returns a writer for rows.
func NewPairWriter(w io.Writer) (*PairWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(PairColumns); err != nil {
		return nil, fmt.Errorf("writing pair header: %w", err)
	}
	return &PairWriter{w: cw}, nil
}

// Write appends one row. Rows without scores leave the score columns empty.
func (p *PairWriter) Write(r *bias.ScoredPair) error {
	rec := []string{r.Pair.SentMore, r.Pair.SentLess, "", "", "",
		string(r.Pair.Direction), string(r.Pair.Category), string(r.Status), r.Error}
	if r.Status.Scored() {
		rec[2] = formatFloat(r.Score.More)
		rec[3] = formatFloat(r.Score.Less)
		rec[4] = strconv.Itoa(r.Score.FavorsMore())
	}
	if err := p.w.Write(rec); err != nil {
		return fmt.Errorf("writing pair %d: %w", r.Pair.ID, err)
	}
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (p *PairWriter) Flush() error {
	p.w.Flush()
	return p.w.Error()
}

// WritePairs writes the full per-pair table.
func WritePairs(w io.Writer, rows []bias.ScoredPair) error {
	pw, err := NewPairWriter(w)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := pw.Write(&rows[i]); err != nil {
			return err
		}
	}
	return pw.Flush()
}

// WriteAggregates writes the aggregate table. Not applicable directional
// percentages are written as -1.
func WriteAggregates(w io.Writer, rows []*bias.AggregateRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AggregateColumns); err != nil {
		return fmt.Errorf("writing aggregate header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Model,
			string(r.Category),
			formatFloat(r.Neutral),
			formatFloat(r.Bias),
			formatFloat(r.Nonbias),
			formatFloat(r.Stereotype),
			formatFloat(r.Antistereotype),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing aggregate row %s/%s: %w", r.Model, r.Category, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
