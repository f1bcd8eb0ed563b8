package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
pipeline:
  batch_size: 5000
  workers: 8
  strict_sink: true

validator:
  min_text_length: 10
  max_text_length: 500
  quality_threshold: 0.7

source:
  id: "twitter_support"
  type: "s3"
  s3_bucket: "riverline-drops"
  s3_key: "exports/support.csv"
  s3_region: "eu-west-1"

sink:
  type: "snowflake"

snowflake:
  account: "ACME-XY12345"
  user: "ingest"
  password: "secret"
  warehouse: "INGEST_WH"

redis:
  addr: "redis.internal:6379"

scheduler:
  interval_minutes: 30
  run_on_startup: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Pipeline.BatchSize)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.True(t, cfg.Pipeline.StrictSink)

	assert.Equal(t, 10, cfg.Validator.MinTextLength)
	assert.Equal(t, 500, cfg.Validator.MaxTextLength)
	assert.Equal(t, 0.7, cfg.Validator.QualityThreshold)

	assert.Equal(t, "twitter_support", cfg.Source.ID)
	assert.Equal(t, "s3", cfg.Source.Type)
	assert.Equal(t, "riverline-drops", cfg.Source.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.Source.S3Region)

	assert.Equal(t, "snowflake", cfg.Sink.Type)
	assert.Equal(t, "ACME-XY12345", cfg.Snowflake.Account)
	// Defaults fill in the unset database/schema
	assert.Equal(t, "RIVERLINE", cfg.Snowflake.Database)
	assert.Equal(t, "SUPPORT", cfg.Snowflake.Schema)

	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Scheduler.IntervalMinutes)
	assert.True(t, cfg.Scheduler.RunOnStartup)

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("{}"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Pipeline.BatchSize)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.False(t, cfg.Pipeline.StrictSink)
	assert.Equal(t, 5, cfg.Validator.MinTextLength)
	assert.Equal(t, 1000, cfg.Validator.MaxTextLength)
	assert.Equal(t, 0.8, cfg.Validator.QualityThreshold)
	assert.Equal(t, "csv", cfg.Source.Type)
	assert.Equal(t, "twitter_csv", cfg.Source.ID)
	assert.Equal(t, "postgres", cfg.Sink.Type)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 360, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 60, cfg.Scheduler.LockTTLMinutes)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("source:\n  path: \"data/local.csv\"\n"), 0644)
	require.NoError(t, err)

	t.Setenv("DATA_SOURCE_PATH", "/mnt/drops/support.csv")
	t.Setenv("BATCH_SIZE", "2500")
	t.Setenv("DATABASE_URL", "postgres://ingest:pw@db:5432/riverline")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("SINK_TYPE", "snowflake")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/mnt/drops/support.csv", cfg.Source.Path)
	assert.Equal(t, 2500, cfg.Pipeline.BatchSize)
	assert.Equal(t, "postgres://ingest:pw@db:5432/riverline", cfg.Postgres.DatabaseURL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "snowflake", cfg.Sink.Type)
}

func TestLoadFromEnvSnowflakeConnectionString(t *testing.T) {
	t.Setenv("SNOWFLAKE_CONNECTION_STRING", "scheme=https;ACCOUNT=ACME-XY12345;USER=ingest;PASSWORD=pw;DB=RIVERLINE.SUPPORT;")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "scheme=https;ACCOUNT=ACME-XY12345;USER=ingest;PASSWORD=pw;DB=RIVERLINE.SUPPORT;", cfg.Snowflake.ConnectionString)
}

func TestLoadFromEnvResetWatermark(t *testing.T) {
	t.Setenv("RESET_WATERMARK", "true")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.True(t, cfg.Source.ResetWatermark)

	t.Setenv("RESET_WATERMARK", "maybe")
	cfg, err = LoadFromEnv("")
	require.NoError(t, err)
	assert.False(t, cfg.Source.ResetWatermark, "unparseable values leave the default")
}

func TestLoadFromEnvBadBatchSizeIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("{}"), 0644)
	require.NoError(t, err)

	t.Setenv("BATCH_SIZE", "not-a-number")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Pipeline.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Pipeline:  PipelineConfig{BatchSize: 100},
		Validator: ValidatorConfig{QualityThreshold: 0.8},
		Sink:      SinkConfig{Type: "postgres"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Sink.Type = "mongodb"
	assert.Error(t, cfg.Validate())

	cfg.Sink.Type = "postgres"
	cfg.Validator.QualityThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Validator.QualityThreshold = 0.8
	cfg.Pipeline.BatchSize = -1
	assert.Error(t, cfg.Validate())
}
