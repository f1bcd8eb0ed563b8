package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion pipeline.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Validator ValidatorConfig `yaml:"validator"`
	Source    SourceConfig    `yaml:"source"`
	Sink      SinkConfig      `yaml:"sink"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	BatchSize  int  `yaml:"batch_size"`
	Workers    int  `yaml:"workers"`
	StrictSink bool `yaml:"strict_sink"` // escalate sink errors to fatal
}

// ValidatorConfig holds quality scoring thresholds.
type ValidatorConfig struct {
	MinTextLength    int     `yaml:"min_text_length"`
	MaxTextLength    int     `yaml:"max_text_length"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// SourceConfig identifies where raw interactions come from.
// Type is "csv" (local file) or "s3" (object in a bucket).
type SourceConfig struct {
	ID             string `yaml:"id"` // watermark key, e.g. "twitter_csv"
	Type           string `yaml:"type"`
	Path           string `yaml:"path"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Key          string `yaml:"s3_key"`
	S3Region       string `yaml:"s3_region"`
	AWSProfile     string `yaml:"aws_profile"`     // empty uses default credential chain
	ResetWatermark bool   `yaml:"reset_watermark"` // drop the watermark on startup, full reload
}

// SinkConfig selects the analytical store implementation.
type SinkConfig struct {
	Type string `yaml:"type"` // "snowflake" or "postgres"
}

// SnowflakeConfig holds credentials for the columnar analytical store.
// ConnectionString carries the key=value string handed out by the Snowflake
// console and takes precedence over the individual fields when set.
type SnowflakeConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Account          string `yaml:"account"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema"`
	Warehouse        string `yaml:"warehouse"`
}

// PostgresConfig holds the managed-Postgres sink connection.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// RedisConfig holds the watermark store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig holds settings for interval-driven runs.
type SchedulerConfig struct {
	IntervalMinutes int  `yaml:"interval_minutes"`
	RunOnStartup    bool `yaml:"run_on_startup"`
	LockTTLMinutes  int  `yaml:"lock_ttl_minutes"`
}

// Interval returns the run interval as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// LockTTL returns the run-lock TTL as a duration.
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Validate checks cross-field constraints that defaults can't repair.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Validator.QualityThreshold < 0 || c.Validator.QualityThreshold > 1 {
		return fmt.Errorf("validator.quality_threshold must be in [0,1], got %v", c.Validator.QualityThreshold)
	}
	switch c.Sink.Type {
	case "snowflake", "postgres":
	default:
		return fmt.Errorf("sink.type must be snowflake or postgres, got %q", c.Sink.Type)
	}
	return nil
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 10000
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Validator.MinTextLength == 0 {
		cfg.Validator.MinTextLength = 5
	}
	if cfg.Validator.MaxTextLength == 0 {
		cfg.Validator.MaxTextLength = 1000
	}
	if cfg.Validator.QualityThreshold == 0 {
		cfg.Validator.QualityThreshold = 0.8
	}
	if cfg.Source.ID == "" {
		cfg.Source.ID = "twitter_csv"
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "csv"
	}
	if cfg.Source.Path == "" {
		cfg.Source.Path = "data/customer_support_twitter.csv"
	}
	if cfg.Source.S3Region == "" {
		cfg.Source.S3Region = "us-west-2"
	}
	if cfg.Sink.Type == "" {
		cfg.Sink.Type = "postgres"
	}
	if cfg.Snowflake.Database == "" {
		cfg.Snowflake.Database = "RIVERLINE"
	}
	if cfg.Snowflake.Schema == "" {
		cfg.Snowflake.Schema = "SUPPORT"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Scheduler.IntervalMinutes == 0 {
		cfg.Scheduler.IntervalMinutes = 360
	}
	if cfg.Scheduler.LockTTLMinutes == 0 {
		cfg.Scheduler.LockTTLMinutes = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if os.IsNotExist(err) {
			cfg = Default()
		} else if err != nil {
			return nil, err
		}
	}

	// Override with environment variables if present
	if v := os.Getenv("DATA_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("DATA_SOURCE_ID"); v != "" {
		cfg.Source.ID = v
	}
	if v := os.Getenv("RESET_WATERMARK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Source.ResetWatermark = b
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); v != "" {
		cfg.Snowflake.ConnectionString = v
	}
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}
	if v := os.Getenv("SNOWFLAKE_WAREHOUSE"); v != "" {
		cfg.Snowflake.Warehouse = v
	}
	if v := os.Getenv("SINK_TYPE"); v != "" {
		cfg.Sink.Type = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
