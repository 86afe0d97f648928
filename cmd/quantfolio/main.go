package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quantfolio/quantfolio/internal/config"
)

const (
	appName = "quantfolio"
	version = "v1.2.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Portfolio construction and risk analysis service",
		Version: version,
		Long: `QuantFolio computes optimized portfolio allocations (risk parity,
hierarchical risk parity, efficient frontier) and Monte Carlo risk statistics
from historical return series.

Run 'quantfolio serve' to expose the JSON API, or use the one-shot
subcommands against a local input file.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newOptimizeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newAnalyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setupLogging configures zerolog: console writer on a TTY, JSON otherwise.
func setupLogging(cmd *cobra.Command) {
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level := "info"
	if v, err := cmd.Flags().GetString("log-level"); err == nil && v != "" {
		level = v
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

// loadConfig reads the --config flag, falling back to defaults, and lets the
// config file's log level win unless --log-level was set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	}
	return cfg, nil
}

// signalContext cancels on SIGINT/SIGTERM for graceful shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
