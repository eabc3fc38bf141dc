package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskcore/internal/coreconfig"
	"taskcore/internal/corelog"
	"taskcore/internal/coremetrics"
	"taskcore/internal/domain/task"
	"taskcore/internal/engine"
	"taskcore/internal/infra/task/pgstore"
	"taskcore/internal/infra/task/redisstore"
	"taskcore/internal/infra/task/sqlitestore"
)

var (
	cfgFile        string
	backendFlag    string
	sqlitePathFlag string
	postgresDSN    string
	redisURL       string
	verboseFlag    bool
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskcore",
		Short:         "Operate the task continuation engine",
		Long:          "taskcore creates and drives task runs, triages recoverable tasks after a crash, and inspects a task's event and artifact history.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to taskcore.yaml (default ./taskcore.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "store backend: sqlite, postgres, or redis (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&sqlitePathFlag, "sqlite-path", "", "sqlite database file path")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "redis connection URL")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("sqlite_path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("postgres_dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	viper.BindPFlag("redis_url", rootCmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("taskcore")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRecoverCommand())
	rootCmd.AddCommand(newInspectCommand())

	return rootCmd
}

// loadConfig layers coreconfig.Load's defaults/file/env precedence with the
// root command's own flags taking the final word, since a flag the operator
// typed on this invocation should win over whatever taskcore.yaml says.
func loadConfig() (coreconfig.Config, error) {
	opts := []coreconfig.Option{}
	if cfgFile != "" {
		opts = append(opts, coreconfig.WithConfigPath(cfgFile))
	}
	cfg, err := coreconfig.Load(opts...)
	if err != nil {
		return coreconfig.Config{}, err
	}

	if backendFlag != "" {
		cfg.Backend = coreconfig.Backend(backendFlag)
	}
	if sqlitePathFlag != "" {
		cfg.SQLitePath = sqlitePathFlag
	}
	if postgresDSN != "" {
		cfg.PostgresDSN = postgresDSN
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if verboseFlag {
		cfg.Verbose = true
	}
	return cfg, nil
}

// openStore opens the task.Store backend selected by cfg.Backend.
func openStore(ctx context.Context, cfg coreconfig.Config) (task.Store, error) {
	switch cfg.Backend {
	case coreconfig.BackendPostgres:
		return pgstore.Open(ctx, cfg.PostgresDSN)
	case coreconfig.BackendRedis:
		return redisstore.Open(ctx, cfg.RedisURL)
	case coreconfig.BackendSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = coreconfig.DefaultSQLitePath
		}
		return sqlitestore.Open(path)
	default:
		return nil, fmt.Errorf("taskcore: unknown backend %q", cfg.Backend)
	}
}

// buildEngine wires a Store, logger, and metrics into an *engine.Engine
// according to the loaded configuration. Callers are responsible for
// closing the returned Store via Engine.Store().Close() when done.
func buildEngine(ctx context.Context, cfg coreconfig.Config) (*engine.Engine, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("taskcore: open store: %w", err)
	}

	logger := corelog.NewConsole(cfg.Verbose)

	var metrics *coremetrics.EngineMetrics
	if cfg.MetricsEnabled {
		metrics = coremetrics.NewEngineMetrics()
	}

	engineCfg := engine.EngineConfig{
		MaxContinuationRounds: cfg.MaxContinuationRounds,
		ProviderRetryLimit:    cfg.ProviderRetryLimit,
		Logger:                logger,
		Metrics:               metrics,
	}
	return engine.New(store, engineCfg), nil
}
