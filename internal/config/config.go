package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL      string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBConnectRetries int           `env:"DB_CONNECT_RETRIES" envDefault:"3"`
	DBRetryInterval  time.Duration `env:"DB_RETRY_INTERVAL" envDefault:"2s"`
	MigrateOnStart   bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	// ServiceKey authorizes scan triggers and the automation read API.
	ServiceKey string `env:"SERVICE_KEY,required,notEmpty"`

	InboundWebhookSecret      string        `env:"INBOUND_WEBHOOK_SECRET"`
	OutboundWebhookSecret     string        `env:"OUTBOUND_WEBHOOK_SECRET"`
	OutboundWebhookTimeout    time.Duration `env:"OUTBOUND_WEBHOOK_TIMEOUT" envDefault:"10s"`
	OutboundWebhookMaxRetries uint64        `env:"OUTBOUND_WEBHOOK_MAX_RETRIES" envDefault:"2"`
	OutboundWebhookBackoff    time.Duration `env:"OUTBOUND_WEBHOOK_BACKOFF" envDefault:"500ms"`

	AMQPURL   string `env:"AMQP_URL"`
	ScanQueue string `env:"SCAN_QUEUE" envDefault:"automation_scans"`

	RedisURL     string        `env:"REDIS_URL"`
	ScanLockTTL  time.Duration `env:"SCAN_LOCK_TTL" envDefault:"5m"`
	ScanInterval time.Duration `env:"SCAN_INTERVAL" envDefault:"15m"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the OS environment is authoritative
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
