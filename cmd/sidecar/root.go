package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/sidecar/internal/config"
	"github.com/aretw0/sidecar/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sidecar",
	Short: "Sidecar spawns a backend worker and discovers the port it bound",
	Long: `Sidecar runs a lightweight HTTP worker on an OS-assigned port and lets a host
learn that port race-free: the worker announces SIDECAR_PORT:<port> on stdout and
in a temp file, and the host polls for it on a bounded schedule.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default ./sidecar.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// setup loads the configuration, applies the persistent flags and builds the logger.
// Logs always go to stderr; stdout carries the announcement and command output.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewWithFormat(level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// fallbackLogger is used when the configuration itself could not be loaded.
func fallbackLogger() *slog.Logger {
	return logging.New(slog.LevelInfo)
}
