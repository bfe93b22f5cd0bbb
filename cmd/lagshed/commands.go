package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alexshd/lagshed"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	logLevel        string
	thresholdMs     float64
	intervalMs      int
	smoothingFactor float64

	monitor *lagshed.Monitor

	rootCmd = &cobra.Command{
		Use:           "lagshed",
		Short:         "Scheduling-lag based load shedding",
		Long:          "lagshed estimates how far the Go scheduler is falling behind and sheds work once the lag passes a threshold.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logLevel)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// started at import; configured in place
			monitor = lagshed.Default()
			if err := monitor.Apply(cfg); err != nil {
				return err
			}
			slog.Info("Monitor configured",
				"threshold_ms", cfg.ThresholdMs,
				"interval_ms", cfg.IntervalMs,
				"smoothing_factor", cfg.SmoothingFactor)
			return nil
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file (threshold_ms, interval_ms, smoothing_factor)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.Float64Var(&thresholdMs, "threshold", lagshed.DefaultThresholdMs, "Lag in ms above which work is shed")
	pf.IntVar(&intervalMs, "interval", lagshed.DefaultIntervalMs, "Sampling interval in ms")
	pf.Float64Var(&smoothingFactor, "smoothing", lagshed.DefaultSmoothingFactor, "Smoothing factor in (0,1]")

	rootCmd.AddCommand(serveCmd, stressCmd)
}

// loadConfig starts from the config file, if any, and applies flags the user
// set explicitly on top.
func loadConfig(cmd *cobra.Command) (lagshed.Config, error) {
	cfg := lagshed.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = lagshed.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.ThresholdMs = thresholdMs
	}
	if flags.Changed("interval") {
		cfg.IntervalMs = intervalMs
	}
	if flags.Changed("smoothing") {
		cfg.SmoothingFactor = smoothingFactor
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("flags: %w", err)
	}
	return cfg, nil
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      l,
			TimeFormat: "15:04:05",
		}),
	))
}
