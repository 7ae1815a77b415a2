package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/config"
)

var (
	configPath   string
	logLevel     string
	logFormat    string
	outputFormat string
	storeDriver  string
	storeDSN     string

	// cfg is loaded by the root command before any subcommand runs.
	cfg    = config.Default()
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "surfaces",
	Short: "Benchmark objective surfaces and collect search data",
	Long: `Surfaces evaluates mathematical test functions and machine learning
hyperparameter objectives, collects their values over search grids and stores
the samples for later analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if cmd.Flags().Changed("store-driver") {
			loaded.Store.Driver = storeDriver
		}
		if cmd.Flags().Changed("store-dsn") {
			loaded.Store.DSN = storeDSN
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := checkFormat(outputFormat); err != nil {
			return err
		}
		cfg = loaded

		logger = newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store-driver", "", "Sample store driver (sqlite, postgres, fs)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store-dsn", "", "Sample store DSN (file path, postgres URL or directory)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", formatText, "Output format (text, json, yaml)")
}

// newLogger builds the slog handler for the configured level and format.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
