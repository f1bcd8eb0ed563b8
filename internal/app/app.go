// Package app wires configuration into a runnable pipeline. Both commands
// share this assembly.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/riverline/support-ingest/internal/config"
	"github.com/riverline/support-ingest/internal/pipeline"
	"github.com/riverline/support-ingest/internal/pkg/logger"
	"github.com/riverline/support-ingest/internal/repository/postgres"
	"github.com/riverline/support-ingest/internal/snowflake"
	"github.com/riverline/support-ingest/internal/source"
	"github.com/riverline/support-ingest/internal/store"
	"github.com/riverline/support-ingest/internal/validator"
)

// App holds the wired pipeline and the resources behind it. Snowflake is set
// only when the snowflake sink is configured.
type App struct {
	Config    *config.Config
	Pipeline  *pipeline.Pipeline
	Redis     *redis.Client
	Snowflake *snowflake.Client

	closers []func() error
}

// Close releases sink and store connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// New builds the pipeline from config: source, sink, watermark store,
// validator.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	redisClient, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.Redis = redisClient
	a.closers = append(a.closers, redisClient.Close)

	src, err := buildSource(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, metrics, err := a.buildSink(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	v := validator.New(
		cfg.Validator.MinTextLength,
		cfg.Validator.MaxTextLength,
		cfg.Validator.QualityThreshold,
	)

	watermarks := store.NewRedisWatermarkStore(redisClient)
	if cfg.Source.ResetWatermark {
		if err := watermarks.Delete(ctx, cfg.Source.ID); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Watermark reset, next run reprocesses from the beginning",
			"source_id", cfg.Source.ID)
	}

	a.Pipeline = pipeline.New(src, sink, metrics, watermarks, v, pipeline.Options{
		SourceID:   cfg.Source.ID,
		BatchSize:  cfg.Pipeline.BatchSize,
		Workers:    cfg.Pipeline.Workers,
		StrictSink: cfg.Pipeline.StrictSink,
	})
	return a, nil
}

func buildSource(ctx context.Context, cfg *config.Config) (pipeline.Source, error) {
	switch cfg.Source.Type {
	case "csv":
		return source.NewCSVSource(cfg.Source.Path), nil
	case "s3":
		return source.NewS3Source(ctx, cfg.Source.S3Bucket, cfg.Source.S3Key, cfg.Source.S3Region, cfg.Source.AWSProfile)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

func (a *App) buildSink(ctx context.Context, cfg *config.Config) (pipeline.Sink, pipeline.MetricsSink, error) {
	switch cfg.Sink.Type {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Postgres.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		repo := postgres.NewInteractionRepo(db)
		return repo, repo, nil
	case "snowflake":
		sfCfg := snowflake.Config{
			Account:   cfg.Snowflake.Account,
			User:      cfg.Snowflake.User,
			Password:  cfg.Snowflake.Password,
			Database:  cfg.Snowflake.Database,
			Schema:    cfg.Snowflake.Schema,
			Warehouse: cfg.Snowflake.Warehouse,
		}
		if cs := cfg.Snowflake.ConnectionString; cs != "" {
			// Console connection strings rarely carry a warehouse.
			parsed := snowflake.ParseConnectionString(cs)
			if parsed.Warehouse == "" {
				parsed.Warehouse = cfg.Snowflake.Warehouse
			}
			sfCfg = parsed
		}
		client, err := snowflake.NewClient(sfCfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping snowflake: %w", err)
		}
		a.Snowflake = client
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}
}
