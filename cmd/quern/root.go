package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quern-dev/quern"
	"github.com/quern-dev/quern/internal/config"
	"github.com/quern-dev/quern/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "quern",
	Short: "Quern is a Redis-backed background job queue",
	Long: `Quern runs background jobs on Redis: producers enqueue named jobs,
workers claim and execute them with retries, and results are retained
for inspection. This binary hosts the worker, the HTTP API and
operational helpers; applications embed the library to register tasks.`,
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
	rootCmd.PersistentFlags().String("config", "", "Path to quern.yaml (default: ./quern.yaml, $HOME/.quern/quern.yaml)")
}

// loadConfig resolves the --config flag and loads the effective configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newApp builds a connected-ready App from config, with the standard logger.
func newApp(cfg *config.Config) (*quern.App, error) {
	logger := logging.New(logging.ParseLevel(cfg.Server.LogLevel))
	return quern.New(
		quern.WithRedisSettings(cfg.RedisSettings()),
		quern.WithDefaultJobExpires(cfg.DefaultJobExpires),
		quern.WithDefaultKeepResult(cfg.KeepResult),
		quern.WithLogger(logger),
	)
}
