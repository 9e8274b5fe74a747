package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"
)

const defaultRunLimit = 20

func runsCmd() *cli.Command {
	var (
		model string
		limit int
	)

	return &cli.Command{
		Name:  "runs",
		Usage: "List stored scoring runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "Only list runs of this model",
				Destination: &model,
			},
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "Maximum number of runs to list (0 = all)",
				Value:       defaultRunLimit,
				Destination: &limit,
			},
		},
		Commands: []*cli.Command{
			deleteRunCmd(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}
			store, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			list, err := store.ListRuns(ctx, model, limit)
			if err != nil {
				return err
			}
			return encode(cmd, cfg.Format, list)
		},
	}
}

func deleteRunCmd() *cli.Command {
	var (
		id  string
		yes bool
	)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a stored run and its pair scores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Run id",
				Required:    true,
				Destination: &id,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "Do not ask for confirmation",
				Destination: &yes,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}
			w := writer(cmd)

			if !yes {
				fmt.Fprintf(w, "This will permanently delete run %s\n", id)
				fmt.Fprint(w, "Are you sure? [y/N]: ")
				answer, err := bufio.NewReader(reader(cmd)).ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				if strings.ToLower(strings.TrimSpace(answer)) != "y" {
					fmt.Fprintln(w, "Aborted.")
					return nil
				}
			}

			store, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := store.DeleteRun(ctx, id); err != nil {
				return err
			}
			slog.Info("run deleted", "id", id)
			return nil
		},
	}
}
