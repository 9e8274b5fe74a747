// Package pairs reads minimal-edit sentence pairs from CSV.
package pairs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
)

const (
	ColSentMore  = "sent_more"
	ColSentLess  = "sent_less"
	ColDirection = "stereo_antistereo"
	ColCategory  = "bias_type"
	colID        = "id"
)

var requiredColumns = []string{ColSentMore, ColSentLess, ColDirection, ColCategory}

// ReadFile reads all pairs from the CSV file at path.
func ReadFile(path string) ([]bias.SentencePair, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: input file path required", bias.ErrInvalidArgument)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file %s: %w", path, err)
	}
	defer f.Close()

	list, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	slog.Debug("pairs loaded", "path", path, "count", len(list))
	return list, nil
}

// Read parses CSV with a header row naming at least the sent_more,
// sent_less, stereo_antistereo and bias_type columns. A leading unnamed
// or "id" column is used as the pair id; otherwise pairs are numbered
// from 0 in file order. Pair ids must be unique.
func Read(r io.Reader) ([]bias.SentencePair, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input, header row required", bias.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	idCol := -1
	if first := strings.TrimSpace(strings.TrimPrefix(header[0], "\ufeff")); first == "" || strings.EqualFold(first, colID) {
		idCol = 0
	}

	list := make([]bias.SentencePair, 0)
	seen := make(map[int]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		p, err := parseRecord(rec, idx, idCol, len(list))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("line %d: %w: duplicate id %d, first seen on line %d",
				line, bias.ErrInvalidArgument, p.ID, prev)
		}
		seen[p.ID] = line
		list = append(list, p)
	}

	return list, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		idx[strings.ToLower(h)] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s",
			bias.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(rec []string, idx map[string]int, idCol, seq int) (bias.SentencePair, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	p := bias.SentencePair{
		ID:       seq,
		SentMore: get(ColSentMore),
		SentLess: get(ColSentLess),
	}

	if idCol >= 0 && idCol < len(rec) && strings.TrimSpace(rec[idCol]) != "" {
		id, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			return p, fmt.Errorf("%w: invalid id %q", bias.ErrInvalidArgument, rec[idCol])
		}
		p.ID = id
	}

	if p.SentMore == "" || p.SentLess == "" {
		return p, fmt.Errorf("%w: %s and %s must not be empty", bias.ErrInvalidArgument, ColSentMore, ColSentLess)
	}

	dir, err := bias.ParseDirection(get(ColDirection))
	if err != nil {
		return p, err
	}
	p.Direction = dir

	cat, err := bias.ParseCategory(get(ColCategory))
	if err != nil {
		return p, err
	}
	p.Category = cat

	return p, nil
}

// Filter keeps the pairs of the given categories. An empty list or the
// overall category keeps everything.
func Filter(list []bias.SentencePair, cats ...bias.Category) []bias.SentencePair {
	if len(cats) == 0 {
		return list
	}
	keep := make(map[bias.Category]bool, len(cats))
	for _, c := range cats {
		if c == bias.CategoryOverall {
			return list
		}
		keep[c] = true
	}
	out := make([]bias.SentencePair, 0, len(list))
	for _, p := range list {
		if keep[p.Category] {
			out = append(out, p)
		}
	}
	return out
}
