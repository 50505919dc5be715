package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"repdays/internal/app"
	"repdays/internal/config"
	"repdays/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pipeline configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	ctx := context.Background()
	shutdown, err := infrastructure.InitializeTracing(cfg.Tracing)
	if err != nil {
		logger.Warn("Failed to initialize tracing", slog.String("error", err.Error()))
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				logger.Warn("Tracing shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	if err := app.New(cfg, logger).Cluster(ctx); err != nil {
		logger.Error("Period selection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Period selection complete")
}
