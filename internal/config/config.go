package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"donorledger"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"donorledger"`
		Migrate  bool   `envconfig:"DB_MIGRATE" default:"true"`
	}

	// Store selects the ledger backend: "postgres" or "memory".
	Store string `envconfig:"LEDGER_STORE" default:"postgres"`

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	Stripe struct {
		SecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
		WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
		// LookupCacheTTL bounds how long payment intent lookups are reused.
		LookupCacheTTL time.Duration `envconfig:"STRIPE_LOOKUP_CACHE_TTL" default:"10m"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"json"`
		File   string `envconfig:"LOG_FILE"`
	}

	Otel struct {
		Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
		Endpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4318"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("unknown LEDGER_STORE %q", cfg.Store)
	}

	return &cfg, nil
}
