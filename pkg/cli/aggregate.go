package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/data"
	"github.com/mchmarny/biasprobe/pkg/report"
	"github.com/urfave/cli/v3"
)

type aggregateOptions struct {
	Models     []string
	RunID      string
	Categories []bias.Category
	Threshold  float64
	Mode       bias.Mode
}

func aggregateCmd() *cli.Command {
	var (
		models     []string
		runID      string
		categories []string
		threshold  float64
		mode       string
	)

	return &cli.Command{
		Name:    "aggregate",
		Aliases: []string{"agg"},
		Usage:   "Compute per-category bias percentages from stored scores",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "Model id, repeat for more (default: every stored model)",
				Destination: &models,
			},
			&cli.StringFlag{
				Name:        "run",
				Usage:       "Aggregate this run instead of the latest run of each model",
				Destination: &runID,
			},
			&cli.StringSliceFlag{
				Name:        "category",
				Aliases:     []string{"c"},
				Usage:       "Only report this bias category (or overall), repeat for more",
				Destination: &categories,
			},
			&cli.Float64Flag{
				Name:        "threshold",
				Aliases:     []string{"t"},
				Usage:       "Neutral tolerance in [0, 1] (default: from config)",
				Destination: &threshold,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "Classification rule [threshold, strict] (default: from config)",
				Destination: &mode,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}

			opts := &aggregateOptions{
				Models: models,
				RunID:  runID,
			}
			if opts.Threshold, opts.Mode, err = classificationFlags(cmd, cfg.Config, threshold, mode); err != nil {
				return err
			}
			if opts.Categories, err = parseCategories(categories); err != nil {
				return err
			}

			store, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			table, err := aggregate(ctx, store, opts)
			if err != nil {
				return err
			}

			if cfg.Format == report.FormatCSV {
				return report.WriteAggregates(writer(cmd), table)
			}
			return encode(cmd, cfg.Format, table)
		},
	}
}

// aggregate builds the tables of the selected models, one after another.
func aggregate(ctx context.Context, store *data.Store, opts *aggregateOptions) ([]*bias.AggregateRow, error) {
	if opts.RunID != "" {
		run, err := store.GetRun(ctx, opts.RunID)
		if err != nil {
			return nil, err
		}
		rows, err := store.GetScores(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		table, err := bias.BuildTable(run.Model, rows, opts.Threshold, opts.Mode)
		if err != nil {
			return nil, err
		}
		return filterTable(table, opts.Categories), nil
	}

	ids, err := storedModels(ctx, store, opts.Models)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no stored runs, score a model first", bias.ErrInvalidArgument)
	}

	out := make([]*bias.AggregateRow, 0)
	for _, id := range ids {
		_, rows, err := latestRows(ctx, store, id)
		if err != nil {
			return nil, err
		}
		table, err := modelTable(id, rows, opts.Threshold, opts.Mode)
		if err != nil {
			return nil, err
		}
		if table == nil {
			slog.Warn("latest run has no scored pairs", "model", id)
			continue
		}
		out = append(out, filterTable(table, opts.Categories)...)
	}
	return out, nil
}
