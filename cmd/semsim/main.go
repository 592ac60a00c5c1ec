// Package main provides the CLI entry point for semsim.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ukaji3/semsim-go/pkg/semsim/config"
	"github.com/ukaji3/semsim-go/pkg/semsim/logging"
)

var (
	configPath string
	logLevel   string
	logDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "semsim",
		Short: "Score semantic similarity of paired texts in Excel files",
		Long: `semsim embeds a reference and a candidate text per row of an xlsx sheet
and writes their cosine similarity back to a workbook.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $SEMSIM_CONFIG or semsim.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Also write logs to a dated file in this directory")

	rootCmd.AddCommand(newScoreCmd(), newServeCmd(), newJobsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. The returned closer
// must be closed when the command finishes. Commands that do not embed text
// pass validate=false.
func setup(validate bool) (*config.Config, *log.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	var (
		logger *log.Logger
		closer io.Closer = io.NopCloser(nil)
	)
	if logDir != "" {
		logger, closer, err = logging.NewFile(logDir, cfg.Log.Level)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		logger = logging.New(os.Stderr, cfg.Log.Level)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, closer, nil
}
