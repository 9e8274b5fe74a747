package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/config"
	"github.com/mchmarny/biasprobe/pkg/data"
	"github.com/mchmarny/biasprobe/pkg/model"
	"github.com/mchmarny/biasprobe/pkg/net"
	"github.com/mchmarny/biasprobe/pkg/pairs"
	"github.com/mchmarny/biasprobe/pkg/report"
	"github.com/mchmarny/biasprobe/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	allModels     = "all"
	outputDirMode = 0700
	downloadName  = "pairs.csv"
)

// scoreOptions are the resolved inputs of one score invocation.
type scoreOptions struct {
	Input      string
	Models     []string
	Categories []bias.Category
	Workers    int
	Threshold  float64
	Mode       bias.Mode
	OutputDir  string
	NoSave     bool
	NoBatch    bool
}

type runResult struct {
	Run      *data.Run            `json:"run" yaml:"run"`
	Summary  *bias.Summary        `json:"summary,omitempty" yaml:"summary,omitempty"`
	Table    []*bias.AggregateRow `json:"table,omitempty" yaml:"table,omitempty"`
	Failures []*score.Failure     `json:"failures,omitempty" yaml:"failures,omitempty"`
	Output   string               `json:"output,omitempty" yaml:"output,omitempty"`
}

func scoreCmd() *cli.Command {
	var (
		input      string
		models     []string
		categories []string
		workers    int
		threshold  float64
		mode       string
		outputDir  string
		token      string
		noSave     bool
		noBatch    bool
	)

	return &cli.Command{
		Name:  "score",
		Usage: "Score sentence pairs with one or more models and store the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "Sentence pair CSV file path or http(s) URL",
				Required:    true,
				Destination: &input,
			},
			&cli.StringSliceFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "Model id from the registry, repeat for more, 'all' for every model",
				Required:    true,
				Destination: &models,
			},
			&cli.StringSliceFlag{
				Name:        "category",
				Aliases:     []string{"c"},
				Usage:       "Only score pairs of this bias category, repeat for more",
				Destination: &categories,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "Number of pairs scored concurrently (default: from config, 0 = CPU count)",
				Destination: &workers,
			},
			&cli.Float64Flag{
				Name:        "threshold",
				Aliases:     []string{"t"},
				Usage:       "Neutral tolerance in [0, 1] for the result table (default: from config)",
				Destination: &threshold,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "Classification rule [threshold, strict] (default: from config)",
				Destination: &mode,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Usage:       "Directory to write one per-pair CSV file per model",
				Destination: &outputDir,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "Inference service access token (default: from keychain)",
				Sources:     envVar("TOKEN"),
				Destination: &token,
			},
			&cli.BoolFlag{
				Name:        "no-save",
				Usage:       "Do not store the results",
				Destination: &noSave,
			},
			&cli.BoolFlag{
				Name:        "no-batch",
				Usage:       "Send one predict request per masked position",
				Destination: &noBatch,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}

			opts := &scoreOptions{
				Input:     input,
				Models:    models,
				Workers:   cfg.Config.Workers,
				OutputDir: outputDir,
				NoSave:    noSave,
				NoBatch:   noBatch,
			}
			if cmd.IsSet("workers") {
				opts.Workers = workers
			}
			if opts.Threshold, opts.Mode, err = classificationFlags(cmd, cfg.Config, threshold, mode); err != nil {
				return err
			}
			if opts.Categories, err = parseCategories(categories); err != nil {
				return err
			}

			if token == "" {
				if token, err = getToken(cfg.Home); err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}

			var store *data.Store
			if !noSave {
				if store, err = cfg.openStore(ctx); err != nil {
					return err
				}
				defer closeStore(store)
			}

			results, scoreErr := scoreModels(ctx, opts, cfg.Registry, newFactory(cfg.Config, token), store)
			if scoreErr != nil && len(results) == 0 {
				return scoreErr
			}
			if err := writeResults(cmd, cfg.Format, results); err != nil {
				return err
			}
			return scoreErr
		},
	}
}

// writeResults prints the aggregate rows as CSV, or the full results in
// the other formats.
func writeResults(cmd *cli.Command, f report.Format, results []*runResult) error {
	if f == report.FormatCSV {
		table := make([]*bias.AggregateRow, 0)
		for _, r := range results {
			table = append(table, r.Table...)
		}
		return report.WriteAggregates(writer(cmd), table)
	}
	return encode(cmd, f, results)
}

// classificationFlags resolves threshold and mode, preferring flags that
// were set over the config values.
func classificationFlags(cmd *cli.Command, c *config.Config, threshold float64, mode string) (float64, bias.Mode, error) {
	t := c.Threshold
	if cmd.IsSet("threshold") {
		t = threshold
	}
	m := c.Mode
	if cmd.IsSet("mode") {
		m = bias.Mode(mode)
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

func parseCategories(list []string) ([]bias.Category, error) {
	out := make([]bias.Category, 0, len(list))
	for _, v := range list {
		c, err := parseCategory(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func selectModels(reg *model.Registry, ids []string) ([]*model.Info, error) {
	if slices.Contains(ids, allModels) {
		return reg.List(), nil
	}
	list := make([]*model.Info, 0, len(ids))
	for _, id := range ids {
		m, err := reg.Get(id)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: at least one model required", bias.ErrInvalidArgument)
	}
	return list, nil
}

// loadPairs reads the input set from a file or downloads it first when
// input is a URL.
func loadPairs(ctx context.Context, input string) ([]bias.SentencePair, error) {
	path := input
	if net.IsURL(input) {
		dir, err := os.MkdirTemp("", config.AppName)
		if err != nil {
			return nil, fmt.Errorf("creating temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		hc, err := net.GetHTTPClient(net.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
		path = filepath.Join(dir, downloadName)
		if err := net.Download(ctx, hc, input, path); err != nil {
			return nil, fmt.Errorf("downloading %s: %w", input, err)
		}
		slog.Debug("input downloaded", "url", input, "path", path)
	}
	return pairs.ReadFile(path)
}

// scoreModels scores the input with every selected model in turn. The
// store is optional. On error the results completed so far, including a
// partial run of an interrupted model, are returned with it.
func scoreModels(ctx context.Context, opts *scoreOptions, reg *model.Registry, f *model.Factory, store *data.Store) ([]*runResult, error) {
	infos, err := selectModels(reg, opts.Models)
	if err != nil {
		return nil, err
	}

	list, err := loadPairs(ctx, opts.Input)
	if err != nil {
		return nil, err
	}
	list = pairs.Filter(list, opts.Categories...)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no sentence pairs to score in %s", bias.ErrInvalidArgument, opts.Input)
	}
	slog.Info("pairs loaded", "input", opts.Input, "pairs", len(list))

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, outputDirMode); err != nil {
			return nil, fmt.Errorf("creating output dir %s: %w", opts.OutputDir, err)
		}
	}

	results := make([]*runResult, 0, len(infos))
	for _, m := range infos {
		r, err := scoreModel(ctx, opts, m, list, f, store)
		if r != nil {
			results = append(results, r)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func scoreModel(ctx context.Context, opts *scoreOptions, m *model.Info, list []bias.SentencePair, f *model.Factory, store *data.Store) (*runResult, error) {
	log := slog.With("model", m.ID)
	log.Info("scoring", "pairs", len(list), "workers", opts.Workers)

	scorer, err := f.Scorer(ctx, m, score.WithBatching(!opts.NoBatch))
	if err != nil {
		return nil, err
	}
	runner, err := score.NewRunner(scorer, opts.Workers)
	if err != nil {
		return nil, err
	}

	// an interrupted run still returns the rows completed so far
	rep, runErr := runner.Run(ctx, list)
	if rep == nil {
		return nil, fmt.Errorf("scoring with %s: %w", m.ID, runErr)
	}
	rows := rep.Results()

	res := &runResult{
		Run: &data.Run{
			Model:      m.ID,
			ModelName:  m.Name,
			Input:      opts.Input,
			Total:      rep.Total,
			Scored:     rep.Scored,
			Degenerate: rep.Degenerate,
			Failed:     len(rep.Failures),
			Duration:   rep.Duration,
		},
		Failures: rep.Failures,
	}
	for _, fl := range rep.Failures {
		log.Warn("pair not scored", "id", fl.ID, "status", fl.Status, "error", fl.Error)
	}

	saveCtx := ctx
	if runErr != nil {
		log.Warn("scoring interrupted, keeping completed pairs", "completed", len(rows), "total", rep.Total)
		saveCtx = context.WithoutCancel(ctx)
	}

	if rep.Scored > 0 {
		if res.Summary, err = bias.Summarize(rows); err != nil {
			return nil, err
		}
		if res.Table, err = bias.BuildTable(m.ID, rows, opts.Threshold, opts.Mode); err != nil {
			return nil, err
		}
		if store != nil {
			if err := store.SaveRun(saveCtx, res.Run, rows); err != nil {
				return nil, fmt.Errorf("saving run of %s: %w", m.ID, err)
			}
		}
	} else {
		log.Warn("no pairs scored, run not saved")
	}

	if opts.OutputDir != "" && len(rows) > 0 {
		if res.Output, err = writePairFile(opts.OutputDir, m.ID, rows); err != nil {
			return nil, err
		}
	}

	if runErr != nil {
		return res, fmt.Errorf("scoring with %s: %w", m.ID, runErr)
	}

	log.Info("scored",
		"scored", rep.Scored,
		"degenerate", rep.Degenerate,
		"failed", len(rep.Failures),
		"duration", rep.Duration,
	)
	return res, nil
}

func writePairFile(dir, modelID string, rows []bias.ScoredPair) (path string, retErr error) {
	path = filepath.Join(dir, strings.ReplaceAll(modelID, "/", "_")+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if err := report.WritePairs(f, rows); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
