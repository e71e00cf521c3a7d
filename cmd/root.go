// Package cmd implements the kbstore command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/staffv/kbstore/internal/config"
	"github.com/staffv/kbstore/internal/log"
	"github.com/staffv/kbstore/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "kbstore",
	Short: "Knowledge base retrieval store for chat assistants",
	Long: `kbstore stores knowledge entries from scraped pages, uploaded documents
and manual input, and serves them back through hybrid lexical and vector
search. Each entry remembers where it came from; every caller invocation
is recorded in an append-only interaction log.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration, builds the logger and wires the service.
// The returned cleanup closes the connection pool.
func setup(ctx context.Context) (*service.Service, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, cfg, svc.Close, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
