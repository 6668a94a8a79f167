package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Order number backends
const (
	OrderNumberPostgres = "postgres"
	OrderNumberRedis    = "redis"
)

// Config holds runtime configuration for the service desk.
type Config struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	Env       string `envconfig:"APP_ENV" default:"development"`

	StoreDriver        string `envconfig:"STORE_DRIVER" default:"postgres"`
	OrderNumberBackend string `envconfig:"ORDER_NUMBER_BACKEND" default:"postgres"`
	RedisAddr          string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	// CatalogFixture is loaded into the memory store at startup and is the
	// default input of the seed command
	CatalogFixture string `envconfig:"CATALOG_FIXTURE" default:"configs/catalog.yaml"`

	DB     DBConfig     `envconfig:"DB"`
	Kafka  KafkaConfig  `envconfig:"KAFKA"`
	Outbox OutboxConfig `envconfig:"OUTBOX"`
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"postgres"`
	Password string `envconfig:"PASSWORD" default:"postgres"`
	Name     string `envconfig:"NAME" default:"servicedesk"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
}

// KafkaConfig holds the event bus configuration
type KafkaConfig struct {
	Enabled       bool     `envconfig:"ENABLED" default:"true"`
	Brokers       []string `envconfig:"BROKERS" default:"localhost:9092"`
	OrdersTopic   string   `envconfig:"ORDERS_TOPIC" default:"service-orders"`
	ConsumerGroup string   `envconfig:"CONSUMER_GROUP" default:"service-desk"`
}

// OutboxConfig tunes the outbox and dead-letter processors
type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"10"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
}

// Load reads the configuration from environment variables and returns a Config struct.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot start with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.OrderNumberBackend {
	case OrderNumberPostgres, OrderNumberRedis:
	default:
		return fmt.Errorf("unknown ORDER_NUMBER_BACKEND %q", c.OrderNumberBackend)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must be set when Kafka is enabled")
	}

	if c.Outbox.PollInterval <= 0 || c.Outbox.BatchSize <= 0 || c.Outbox.MaxRetries <= 0 {
		return fmt.Errorf("outbox interval, batch size and max retries must be positive")
	}

	return nil
}

// IsProduction returns true when the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
