package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
)

const (
	serverAddrDefault    = "127.0.0.1:8080"
	serverTimeoutDefault = 300 * time.Second
	serverMaxHeaderBytes = 1 << 20
)

func serverCmd() *cli.Command {
	var (
		addr    string
		timeout time.Duration
	)

	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Serve the dashboard JSON API over stored scores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "Listen address",
				Value:       serverAddrDefault,
				Sources:     envVar("ADDR"),
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "Read and write timeout",
				Value:       serverTimeoutDefault,
				Destination: &timeout,
			},
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

			e := newRouter(&dashboard{
				store:     store,
				registry:  cfg.Registry,
				threshold: cfg.Config.Threshold,
				mode:      cfg.Config.Mode,
			}, middleware.RequestLogger(), middleware.Recover())

			slog.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = timeout
					srv.ReadTimeout = timeout
					srv.WriteTimeout = timeout
					srv.MaxHeaderBytes = serverMaxHeaderBytes
					return nil
				},
			}
			if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
