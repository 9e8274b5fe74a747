package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "biasprobe"
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	DefaultEndpoint  = "http://localhost:8000"
	DefaultTimeout   = 60 * time.Second
	DefaultThreshold = 0.05
	DefaultMaxBatch  = 64
)

// Database selects the result store.
type Database struct {
	Driver string `yaml:"driver"`
	// DSN is a sqlite file path or a postgres connection string. Empty
	// selects the data file in the app home dir.
	DSN string `yaml:"dsn"`
}

// Predictor configures the remote inference service.
type Predictor struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBatch int           `yaml:"maxBatch"`
	// Endpoints overrides Endpoint per model family.
	Endpoints map[string]string `yaml:"endpoints,omitempty"`
}

// Config represents app config object.
type Config struct {
	Predictor  Predictor `yaml:"predictor"`
	Database   Database  `yaml:"database"`
	Workers    int       `yaml:"workers"`
	Threshold  float64   `yaml:"threshold"`
	Mode       bias.Mode `yaml:"mode"`
	ModelsFile string    `yaml:"modelsFile,omitempty"`
}

// Default returns the config written on first use.
func Default() *Config {
	return &Config{
		Predictor: Predictor{
			Endpoint: DefaultEndpoint,
			Timeout:  DefaultTimeout,
			MaxBatch: DefaultMaxBatch,
		},
		Database: Database{
			Driver: "sqlite",
		},
		Threshold: DefaultThreshold,
		Mode:      bias.ModeThreshold,
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := bias.ValidateThreshold(c.Threshold); err != nil {
		return err
	}
	if _, err := bias.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", bias.ErrInvalidArgument)
	}
	return nil
}

// EndpointFor returns the endpoint serving a model family.
func (c *Config) EndpointFor(family string) string {
	if ep, ok := c.Predictor.Endpoints[family]; ok && ep != "" {
		return ep
	}
	return c.Predictor.Endpoint
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
// Values missing from the file keep their defaults.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
