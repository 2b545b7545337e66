package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/routeflow/internal/config"
	"github.com/aretw0/routeflow/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "routeflow",
	Short: "Routeflow executes and tracks resumable cross-chain routes",
	Long: `Routeflow drives multi-step swap and bridge routes to completion and keeps
their progress in a durable store so they can be inspected and resumed.

Configuration is read from ROUTEFLOW_* environment variables; flags override it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("store", "", "Route store backend: memory, file or redis (env ROUTEFLOW_STORE)")
	rootCmd.PersistentFlags().String("store-dir", "", "Directory of the file store (env ROUTEFLOW_STORE_DIR)")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address (env ROUTEFLOW_REDIS_ADDR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (env ROUTEFLOW_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json (env ROUTEFLOW_LOG_FORMAT)")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("store-dir") {
		cfg.StoreDir, _ = flags.GetString("store-dir")
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		format = logging.FormatText
	}
	return logging.New(level, logging.WithFormat(format))
}

// mustSetup loads the configuration and opens the configured store, exiting
// on failure.
func mustSetup(cmd *cobra.Command) (config.Config, *slog.Logger, *backend) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	b, err := openBackend(cfg, logger)
	if err != nil {
		fmt.Printf("Error opening %s store: %v\n", cfg.Store, err)
		os.Exit(1)
	}
	return cfg, logger, b
}
