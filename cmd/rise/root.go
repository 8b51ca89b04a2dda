package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "rise",
	Short: "Hierarchical team orchestration with learned tool selection",
	Long: `Rise routes a request through a coordinator, planner, validator and
supervisor to a roster of teams. Each team ranks its tools with a Q-table
that learns from the outcome of every call.

Configuration is read from ~/.config/rise/config.yaml, merged with a
project .rise.yaml found in the current directory or a parent.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG user config merged with .rise.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(qtableCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honours --config and --log-level.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the command logger. quiet sends console output nowhere,
// which the TUI needs to keep the screen clean.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	opts := logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File}
	if quiet {
		opts.Console = io.Discard
	}
	l, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return l, nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func fail(message string, err error) error {
	printStatus("✗", fmt.Sprintf("%s: %v", message, err), color.FgRed)
	return err
}

func componentLogger(l *logging.Logger, name string) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return logging.Component(l.Logger, name)
}
