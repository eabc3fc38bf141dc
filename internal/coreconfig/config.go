// Package coreconfig loads the engine's runtime configuration by layering
// defaults, an optional YAML file, and environment variables, in that
// precedence order — the same layering shape the
// teacher's own internal/config package uses for its (much larger) runtime
// settings, scaled down to this module's concerns: continuation limits,
// store backend selection, and logging verbosity.
package coreconfig

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects which internal/infra/task implementation the engine runs
// against.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

const (
	DefaultMaxContinuationRounds = 4
	DefaultProviderRetryLimit    = 2
	DefaultBackend               = BackendSQLite
	DefaultSQLitePath            = "state/task-runs.db"
)

// Config is the engine's runtime configuration.
type Config struct {
	MaxContinuationRounds int     `yaml:"max_continuation_rounds"`
	ProviderRetryLimit    int     `yaml:"provider_retry_limit"`
	Backend               Backend `yaml:"backend"`
	SQLitePath            string  `yaml:"sqlite_path"`
	PostgresDSN           string  `yaml:"postgres_dsn"`
	RedisURL              string  `yaml:"redis_url"`
	Verbose               bool    `yaml:"verbose"`
	MetricsEnabled        bool    `yaml:"metrics_enabled"`
}

// fileConfig mirrors Config but with pointer fields so the YAML file layer
// can distinguish "not set" from "set to the zero value," the same
// technique the teacher's RuntimeFileConfig uses.
type fileConfig struct {
	MaxContinuationRounds *int    `yaml:"max_continuation_rounds"`
	ProviderRetryLimit    *int    `yaml:"provider_retry_limit"`
	Backend               *string `yaml:"backend"`
	SQLitePath            *string `yaml:"sqlite_path"`
	PostgresDSN           *string `yaml:"postgres_dsn"`
	RedisURL              *string `yaml:"redis_url"`
	Verbose               *bool   `yaml:"verbose"`
	MetricsEnabled        *bool   `yaml:"metrics_enabled"`
}

// EnvLookup resolves an environment variable, mirroring
// internal/config.EnvLookup so tests can substitute a fake without
// touching the real process environment.
type EnvLookup func(string) (string, bool)

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	configPath string
}

// WithConfigPath reads configuration from a specific YAML file instead of
// the default ./taskcore.yaml.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithEnv supplies a custom environment lookup, used in tests.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader injects a custom file reader, used in tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = reader }
}

func defaultEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

// Load builds a Config by merging defaults, an optional YAML file, then
// environment variables, each layer overriding the previous one only for
// the fields it actually sets.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: defaultEnvLookup,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Config{
		MaxContinuationRounds: DefaultMaxContinuationRounds,
		ProviderRetryLimit:    DefaultProviderRetryLimit,
		Backend:               DefaultBackend,
		SQLitePath:            DefaultSQLitePath,
	}

	if err := applyFile(&cfg, options); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg, options)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, opts loadOptions) error {
	path := opts.configPath
	if path == "" {
		path = "taskcore.yaml"
	}
	data, err := opts.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("coreconfig: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("coreconfig: parse %s: %w", path, err)
	}

	if parsed.MaxContinuationRounds != nil {
		cfg.MaxContinuationRounds = *parsed.MaxContinuationRounds
	}
	if parsed.ProviderRetryLimit != nil {
		cfg.ProviderRetryLimit = *parsed.ProviderRetryLimit
	}
	if parsed.Backend != nil {
		cfg.Backend = Backend(strings.TrimSpace(*parsed.Backend))
	}
	if parsed.SQLitePath != nil {
		cfg.SQLitePath = *parsed.SQLitePath
	}
	if parsed.PostgresDSN != nil {
		cfg.PostgresDSN = *parsed.PostgresDSN
	}
	if parsed.RedisURL != nil {
		cfg.RedisURL = *parsed.RedisURL
	}
	if parsed.Verbose != nil {
		cfg.Verbose = *parsed.Verbose
	}
	if parsed.MetricsEnabled != nil {
		cfg.MetricsEnabled = *parsed.MetricsEnabled
	}
	return nil
}

func applyEnv(cfg *Config, opts loadOptions) {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = defaultEnvLookup
	}

	if v, ok := lookup("TASKCORE_MAX_CONTINUATION_ROUNDS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxContinuationRounds = n
		}
	}
	if v, ok := lookup("TASKCORE_PROVIDER_RETRY_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProviderRetryLimit = n
		}
	}
	if v, ok := lookup("TASKCORE_BACKEND"); ok && v != "" {
		cfg.Backend = Backend(strings.TrimSpace(v))
	}
	if v, ok := lookup("TASKCORE_SQLITE_PATH"); ok && v != "" {
		cfg.SQLitePath = v
	}
	if v, ok := lookup("TASKCORE_POSTGRES_DSN"); ok && v != "" {
		cfg.PostgresDSN = v
	}
	if v, ok := lookup("TASKCORE_REDIS_URL"); ok && v != "" {
		cfg.RedisURL = v
	}
	if v, ok := lookup("TASKCORE_VERBOSE"); ok && v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v, ok := lookup("TASKCORE_METRICS_ENABLED"); ok && v != "" {
		cfg.MetricsEnabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func validate(cfg Config) error {
	switch cfg.Backend {
	case BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("coreconfig: unknown backend %q (want sqlite, postgres, or redis)", cfg.Backend)
	}
	if cfg.Backend == BackendPostgres && cfg.PostgresDSN == "" {
		return fmt.Errorf("coreconfig: backend=postgres requires postgres_dsn")
	}
	if cfg.Backend == BackendRedis && cfg.RedisURL == "" {
		return fmt.Errorf("coreconfig: backend=redis requires redis_url")
	}
	if cfg.MaxContinuationRounds < 1 {
		return fmt.Errorf("coreconfig: max_continuation_rounds must be >= 1, got %d", cfg.MaxContinuationRounds)
	}
	if cfg.ProviderRetryLimit < 0 {
		return fmt.Errorf("coreconfig: provider_retry_limit must be >= 0, got %d", cfg.ProviderRetryLimit)
	}
	return nil
}
