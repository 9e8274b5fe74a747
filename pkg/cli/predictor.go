package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/biasprobe/pkg/config"
	"github.com/mchmarny/biasprobe/pkg/model"
	"github.com/mchmarny/biasprobe/pkg/net"
	"github.com/mchmarny/biasprobe/pkg/predictor"
	"github.com/mchmarny/biasprobe/pkg/score"
)

// newFactory dispatches each model family to its configured inference
// endpoint. Families without an override use the default endpoint.
func newFactory(cfg *config.Config, token string) *model.Factory {
	f := model.NewFactory(remoteConstructor(cfg.Predictor.Endpoint, cfg, token))
	for family, ep := range cfg.Predictor.Endpoints {
		if ep == "" {
			continue
		}
		f.Register(model.Family(family), remoteConstructor(ep, cfg, token))
	}
	return f
}

func remoteConstructor(endpoint string, cfg *config.Config, token string) model.Constructor {
	return func(ctx context.Context, m *model.Info) (score.Predictor, error) {
		hc, err := net.GetOAuthClient(ctx, token, cfg.Predictor.Timeout)
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}

		c, err := predictor.New(endpoint, m.ID, hc, predictor.WithMaxBatch(cfg.Predictor.MaxBatch))
		if err != nil {
			return nil, err
		}
		if err := c.Probe(ctx); err != nil {
			return nil, err
		}

		slog.Debug("predictor ready", "model", m.ID, "family", m.Family, "endpoint", endpoint)
		return c, nil
	}
}
