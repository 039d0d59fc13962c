package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ACTIONQ_MANAGER_POOL_SIZE.
const EnvPrefix = "ACTIONQ_"

// Config is the process configuration for an actionqueue host.
type Config struct {
	Manager ManagerConfig `yaml:"manager" envPrefix:"MANAGER_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	// Kinds maps an action kind to its flags, e.g. "open: creational".
	Kinds map[string]string `yaml:"kinds"`
}

type ManagerConfig struct {
	PoolSize       int           `yaml:"pool_size" env:"POOL_SIZE"`
	MaxParallelism int           `yaml:"max_parallelism" env:"MAX_PARALLELISM"`
	DisposeTimeout time.Duration `yaml:"dispose_timeout" env:"DISPOSE_TIMEOUT"`
}

type LoggingConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Level   string `yaml:"level" env:"LEVEL"`
	Format  string `yaml:"format" env:"FORMAT"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	Path string `yaml:"path" env:"PATH"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Manager: ManagerConfig{
			MaxParallelism: 1,
			DisposeTimeout: queue.DefaultDisposeTimeout,
		},
		Logging: LoggingConfig{
			Backend: BackendGlog,
			Level:   "info",
			Format:  FormatJSON,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads path when it is not empty, applies ACTIONQ_ environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, actionqueue.NewError(actionqueue.ErrConfigInvalid, fmt.Sprintf("read config %s", path), err, nil)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML on top of the defaults without looking at the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return actionqueue.NewError(actionqueue.ErrConfigInvalid, "decode config", err, nil)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return actionqueue.NewError(actionqueue.ErrConfigInvalid, "parse environment", err, nil)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string
	if c.Manager.PoolSize < 0 {
		problems = append(problems, "manager.pool_size must be >= 0")
	}
	if c.Manager.MaxParallelism < 1 {
		problems = append(problems, "manager.max_parallelism must be >= 1")
	}
	if c.Manager.DisposeTimeout <= 0 {
		problems = append(problems, "manager.dispose_timeout must be > 0")
	}
	switch c.Logging.Backend {
	case BackendGlog, BackendZerolog, BackendFmt:
	default:
		problems = append(problems, fmt.Sprintf("logging.backend %q is not one of glog, zerolog, fmt", c.Logging.Backend))
	}
	switch c.Logging.Format {
	case FormatJSON, FormatConsole:
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of json, console", c.Logging.Format))
	}
	if !validLevel(c.Logging.Level) {
		problems = append(problems, fmt.Sprintf("logging.level %q is unknown", c.Logging.Level))
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		problems = append(problems, "metrics.path must start with /")
	}

	kinds := make([]string, 0, len(c.Kinds))
	for kind := range c.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		if strings.TrimSpace(kind) == "" {
			problems = append(problems, "kinds: empty kind name")
			continue
		}
		if _, err := actionqueue.ParseFlags(c.Kinds[kind]); err != nil {
			problems = append(problems, fmt.Sprintf("kinds.%s: %v", kind, err))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return actionqueue.NewError(actionqueue.ErrConfigInvalid, "invalid configuration: "+strings.Join(problems, "; "), nil, map[string]any{
		"problems": problems,
	})
}

// FlagTable resolves the kinds section into a flag table.
func (c Config) FlagTable() (*actionqueue.FlagTable, error) {
	table := actionqueue.NewFlagTable(nil)
	for kind, raw := range c.Kinds {
		flags, err := actionqueue.ParseFlags(raw)
		if err != nil {
			return nil, err
		}
		if err := table.Register(kind, flags); err != nil {
			return nil, err
		}
	}
	return table, nil
}
