package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fleetsim/internal/config"
	"fleetsim/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fleetsim",
	Short: "Industrial MQTT telemetry simulator",
	Long:  "fleetsim publishes synthetic device telemetry to MQTT brokers and is operated over an MQTT control plane or its HTTP API.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to fleetsim YAML configuration")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig reads --config, or falls back to defaults plus environment overrides.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: os.Stderr,
	})
}
