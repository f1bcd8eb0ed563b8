package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverline/support-ingest/internal/app"
	"github.com/riverline/support-ingest/internal/config"
	"github.com/riverline/support-ingest/internal/pipeline"
	"github.com/riverline/support-ingest/internal/pkg/logger"
)

// One-shot ingestion run: load config, wire the pipeline, run once, print a
// summary. Configuration comes from CONFIG_PATH (YAML) plus env overrides.
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

	result, err := a.Pipeline.Run(ctx)
	printSummary(result)
	if a.Snowflake != nil {
		if total, countErr := a.Snowflake.TotalRecordCount(ctx); countErr == nil {
			fmt.Printf("Sink Total Records: %d\n", total)
		}
	}
	if err != nil {
		logger.Error("Run failed", "error", err.Error())
		os.Exit(1)
	}
}

func printSummary(result pipeline.RunResult) {
	fmt.Println("==================================================")
	fmt.Println("Ingestion Run Summary")
	fmt.Println("==================================================")
	fmt.Printf("Run ID:             %s\n", result.RunID)
	fmt.Printf("Source:             %s\n", result.SourceID)
	fmt.Printf("Batches Processed:  %d\n", result.BatchesProcessed)
	fmt.Printf("Records Processed:  %d\n", result.RecordsProcessed)
	fmt.Printf("Inserted:           %d\n", result.Inserted)
	fmt.Printf("Duplicates:         %d\n", result.Duplicates)
	fmt.Printf("Invalid:            %d\n", result.Invalid)
	fmt.Printf("Avg Quality Score:  %.3f\n", result.AvgQualityScore)
	fmt.Printf("Duration:           %.1fs\n", result.Duration().Seconds())
	fmt.Printf("Throughput:         %.1f records/sec\n", result.Throughput)
	if result.Watermark != nil {
		fmt.Printf("Watermark:          %s (%s)\n",
			result.Watermark.LastProcessedAt.Format(time.RFC3339),
			result.Watermark.LastProcessedID)
	}
}
