package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/model"
	"github.com/urfave/cli/v3"
)

func modelsCmd() *cli.Command {
	var family string

	return &cli.Command{
		Name:  "models",
		Usage: "List the models that can be scored",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "family",
				Usage:       "Only list models of this family [bert, albert, roberta, xlm-roberta, distilbert]",
				Destination: &family,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}
			list, err := listModels(cfg.Registry, family)
			if err != nil {
				return err
			}
			return encode(cmd, cfg.Format, list)
		},
	}
}

func listModels(reg *model.Registry, family string) ([]*model.Info, error) {
	if family == "" {
		return reg.List(), nil
	}
	f := model.Family(family)
	if !slices.Contains(model.Families, f) {
		return nil, fmt.Errorf("%w: unsupported family %q", bias.ErrInvalidArgument, family)
	}
	return reg.ByFamily(f), nil
}
