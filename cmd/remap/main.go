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
	dbPath := flag.String("db", "", "rewrite a single database instead of the whole input directory")
	parallel := flag.Int("parallel", 1, "number of databases rewritten concurrently")
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

	a := app.New(cfg, logger)
	a.Parallel = *parallel

	if *dbPath != "" {
		err = a.RemapDatabase(ctx, *dbPath)
	} else {
		err = a.Remap(ctx)
	}
	if err != nil {
		logger.Error("Database rewrite failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Database rewrite complete")
}
