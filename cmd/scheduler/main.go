package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverline/support-ingest/internal/app"
	"github.com/riverline/support-ingest/internal/config"
	"github.com/riverline/support-ingest/internal/pkg/logger"
	"github.com/riverline/support-ingest/internal/scheduler"
	"github.com/riverline/support-ingest/internal/store"
)

// Long-running ingestion daemon: runs the pipeline on the configured
// interval, with a Redis run lock preventing overlap across instances.
func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	lock := store.NewRunLock(a.Redis, cfg.Source.ID, cfg.Scheduler.LockTTL())
	sched := scheduler.New(a.Pipeline, lock, cfg.Scheduler.Interval(), cfg.Scheduler.LockTTL(), cfg.Scheduler.RunOnStartup)

	logger.Info("Starting ingestion scheduler",
		"source_id", cfg.Source.ID,
		"sink", cfg.Sink.Type,
		"interval", cfg.Scheduler.Interval().String())

	sched.Start(ctx)
	logger.Info("Scheduler shut down")
}
