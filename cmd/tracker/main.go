package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riskibarqy/rank-tracker/internal/app"
	"github.com/riskibarqy/rank-tracker/internal/config"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	format := logging.FormatJSON
	if cfg.AppEnv == config.EnvDev {
		format = logging.FormatConsole
	}
	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  format,
		Service: cfg.ServiceName,
		Version: cfg.ServiceVersion,
	})
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("rank tracker starting",
		"env", cfg.AppEnv,
		"store", cfg.SnapshotStore,
		"ingestion_interval", cfg.IngestionInterval,
		"reports", len(cfg.Reports),
	)
	if err := tracker.Run(ctx); err != nil {
		logger.Error("rank tracker exited with error", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
