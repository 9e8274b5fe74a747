package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mchmarny/biasprobe/pkg/config"
	"github.com/mchmarny/biasprobe/pkg/data"
	"github.com/mchmarny/biasprobe/pkg/logging"
	"github.com/mchmarny/biasprobe/pkg/model"
	"github.com/mchmarny/biasprobe/pkg/report"
	"github.com/urfave/cli/v3"
)

const envPrefix = "BIASPROBE_"

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

type appConfigKey struct{}

// appConfig is resolved once per invocation in the root Before hook and
// shared with every command through the context.
type appConfig struct {
	Home     string
	Config   *config.Config
	Registry *model.Registry
	Format   report.Format
	DBDriver string
	DBDSN    string
}

// globalFlags are the values bound to the root command flags.
type globalFlags struct {
	debug    bool
	logLevel string
	format   string
	home     string
	dbDriver string
	dbDSN    string
}

// Execute creates and runs the CLI application.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

func envVar(name string) cli.ValueSourceChain {
	return cli.EnvVars(envPrefix + name)
}

func newApp() *cli.Command {
	g := &globalFlags{}

	return &cli.Command{
		Name:                  config.AppName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Measure social bias of masked language models on CrowS-Pairs style sentence pairs",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "Prints verbose logs (optional, default: false)",
				Sources:     envVar("DEBUG"),
				Destination: &g.debug,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level [debug, info, warn, error]",
				Value:       "info",
				Sources:     envVar("LOG_LEVEL"),
				Destination: &g.logLevel,
			},
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"o"},
				Usage:       "Output format [json, yaml, csv]",
				Value:       string(report.FormatJSON),
				Destination: &g.format,
			},
			&cli.StringFlag{
				Name:        "home",
				Usage:       "Directory holding the config file, token and default database (default: ~/.biasprobe)",
				Sources:     envVar("HOME"),
				Destination: &g.home,
			},
			&cli.StringFlag{
				Name:        "db-driver",
				Usage:       "Result store driver [sqlite, postgres] (default: from config)",
				Sources:     envVar("DB_DRIVER"),
				Destination: &g.dbDriver,
			},
			&cli.StringFlag{
				Name:        "db",
				Usage:       "Sqlite file path or postgres connection string (default: from config)",
				Sources:     envVar("DB"),
				Destination: &g.dbDSN,
			},
		},
		Commands: []*cli.Command{
			authCmd(),
			scoreCmd(),
			aggregateCmd(),
			runsCmd(),
			modelsCmd(),
			serverCmd(),
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			level := g.logLevel
			if g.debug {
				level = "debug"
			}
			logging.SetDefaultCLILogger(level)

			cfg, err := resolveConfig(g)
			if err != nil {
				return ctx, err
			}
			return context.WithValue(ctx, appConfigKey{}, cfg), nil
		},
	}
}

func resolveConfig(g *globalFlags) (*appConfig, error) {
	f, err := report.ParseFormat(g.format)
	if err != nil {
		return nil, err
	}

	home := g.home
	if home == "" {
		if home, _, err = config.GetOrCreateHomeDir(config.AppName); err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
	}

	cfg, err := config.ReadOrCreate(home)
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg.ModelsFile)
	if err != nil {
		return nil, err
	}

	ac := &appConfig{
		Home:     home,
		Config:   cfg,
		Registry: reg,
		Format:   f,
		DBDriver: cfg.Database.Driver,
		DBDSN:    cfg.Database.DSN,
	}
	if g.dbDriver != "" {
		ac.DBDriver = g.dbDriver
	}
	if g.dbDSN != "" {
		ac.DBDSN = g.dbDSN
	}
	if ac.DBDriver == "" {
		ac.DBDriver = data.DriverSQLite
	}
	if ac.DBDSN == "" && ac.DBDriver == data.DriverSQLite {
		ac.DBDSN = filepath.Join(home, data.DataFileName)
	}
	return ac, nil
}

func loadRegistry(path string) (*model.Registry, error) {
	if path == "" {
		return model.Default()
	}
	reg, err := model.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading model registry: %w", err)
	}
	slog.Debug("model registry loaded", "path", path, "models", reg.Len())
	return reg, nil
}

func getConfig(ctx context.Context) (*appConfig, error) {
	cfg, ok := ctx.Value(appConfigKey{}).(*appConfig)
	if !ok || cfg == nil {
		return nil, errors.New("app config not initialized")
	}
	return cfg, nil
}

// openStore connects to the configured result store. Callers close it.
func (a *appConfig) openStore(ctx context.Context) (*data.Store, error) {
	s, err := data.Open(ctx, a.DBDriver, a.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	return s, nil
}

func closeStore(s *data.Store) {
	if err := s.Close(); err != nil {
		slog.Error("error closing result store", "error", err)
	}
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *cli.Command, f report.Format, v any) error {
	return report.Encode(writer(cmd), f, v)
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
