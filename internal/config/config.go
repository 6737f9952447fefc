// Package config assembles the process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/util"

	"github.com/go-playground/validator"
)

type AWS struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to Record.SourceKey when reading material.
	Prefix string
}

type RabbitMQ struct {
	User     string
	Password string
	Host     string
	Port     string `validate:"omitempty,numeric"`
	Queue    string `validate:"required"`
	// MaxRetries is the number of redeliveries before a message is parked
	// on the dead-letter queue.
	MaxRetries int `validate:"min=0"`
}

// URL returns the AMQP connection string.
func (r RabbitMQ) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type Config struct {
	Store       string `validate:"required,oneof=pgx memory"`
	DatabaseURL string
	Migrate     bool

	// Countries is a comma separated list; empty selects every profile.
	Countries    string
	PageSize     int `validate:"min=1,max=10000"`
	Workers      int `validate:"min=1,max=64"`
	PageRetries  int `validate:"min=1,max=20"`
	RetryBackoff time.Duration
	LeaseTTL     time.Duration
	LeaseWait    bool

	Debug         bool
	DiagnosticLog string

	Material    string `validate:"required,oneof=none s3 fs"`
	// MaterialDir is the root of SourceKey paths when Material is fs.
	MaterialDir string
	AWS         AWS

	RabbitMQ    RabbitMQ
	LinkageCron string
	MetricsPort string `validate:"omitempty,numeric"`
	APIKey      string
}

// Load reads the configuration from the environment (and .env, see
// util.LoadEnv) and validates it.
func Load() (Config, error) {
	cfg := Config{
		Store:       util.GetEnvString("STORE", "pgx"),
		DatabaseURL: util.GetEnv("DATABASE_URL"),
		Migrate:     util.GetEnvBool("MIGRATE", false),

		Countries:    util.GetEnv("COUNTRIES"),
		PageSize:     util.GetEnvInt("PAGE_SIZE", 500),
		Workers:      util.GetEnvInt("WORKERS", 4),
		PageRetries:  util.GetEnvInt("PAGE_RETRIES", 3),
		RetryBackoff: util.GetEnvDuration("RETRY_BACKOFF", 500*time.Millisecond),
		LeaseTTL:     util.GetEnvDuration("LEASE_TTL", 5*time.Minute),
		LeaseWait:    util.GetEnvBool("LEASE_WAIT", false),

		Debug:         util.GetEnvBool("DEBUG", false),
		DiagnosticLog: util.GetEnv("DIAGNOSTIC_LOG"),

		Material:    util.GetEnvString("MATERIAL_SOURCE", "none"),
		MaterialDir: util.GetEnv("MATERIAL_DIR"),
		AWS: AWS{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
			Prefix:    util.GetEnv("AWS_PREFIX"),
		},

		RabbitMQ: RabbitMQ{
			User:       util.GetEnv("RABBITMQ_USER"),
			Password:   util.GetEnv("RABBITMQ_PASSWORD"),
			Host:       util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:       util.GetEnvString("RABBITMQ_PORT", "5672"),
			Queue:      util.GetEnvString("RABBITMQ_QUEUE", "linkage_queue"),
			MaxRetries: util.GetEnvInt("RABBITMQ_MAX_RETRIES", 10),
		},
		LinkageCron: util.GetEnv("LINKAGE_CRON"),
		MetricsPort: util.GetEnvString("METRICS_PORT", "9090"),
		APIKey:      util.GetEnv("API_KEY"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateConfig, Config{})
	return v
}

// validateConfig covers the rules that span several fields.
func validateConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.Store == "pgx" && cfg.DatabaseURL == "" {
		sl.ReportError(cfg.DatabaseURL, "DatabaseURL", "DatabaseURL", "required_for_pgx", "")
	}
	if cfg.Migrate && cfg.Store != "pgx" {
		sl.ReportError(cfg.Migrate, "Migrate", "Migrate", "pgx_only", "")
	}
	if cfg.Material == "s3" && cfg.AWS.Bucket == "" {
		sl.ReportError(cfg.AWS.Bucket, "Bucket", "Bucket", "required_for_s3", "")
	}
	if cfg.Material == "fs" && cfg.MaterialDir == "" {
		sl.ReportError(cfg.MaterialDir, "MaterialDir", "MaterialDir", "required_for_fs", "")
	}
	if cfg.LeaseTTL < time.Second {
		sl.ReportError(cfg.LeaseTTL, "LeaseTTL", "LeaseTTL", "min", "1s")
	}
	if cfg.RetryBackoff < 0 {
		sl.ReportError(cfg.RetryBackoff, "RetryBackoff", "RetryBackoff", "min", "0")
	}
}

// Validate checks field ranges and cross-field requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
