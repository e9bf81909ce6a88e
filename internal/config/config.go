package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./hexaledger.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	UseRedis  bool          `env:"USE_REDIS" envDefault:"true"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	UseKafka     bool     `env:"USE_KAFKA" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"catalog-events"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"hexaledger"`

	ClickHouseAddr     string `env:"CLICKHOUSE_ADDR"`
	ClickHouseDatabase string `env:"CLICKHOUSE_DATABASE" envDefault:"default"`

	OutboxPeriod     time.Duration `env:"OUTBOX_PERIOD" envDefault:"1s"`
	OutboxLimit      int           `env:"OUTBOX_LIMIT" envDefault:"10"`
	OutboxMaxRetries int           `env:"OUTBOX_MAX_RETRIES" envDefault:"8"`
	OutboxLease      time.Duration `env:"OUTBOX_LEASE" envDefault:"30s"`

	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"50ms"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
	MaxQueueDepth int           `env:"MAX_QUEUE_DEPTH" envDefault:"10000"`
	FlushTimeout  time.Duration `env:"FLUSH_TIMEOUT" envDefault:"5s"`
	CommitWait    time.Duration `env:"COMMIT_WAIT" envDefault:"3s"`

	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load lee la configuración del entorno y comprueba los valores mínimos.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig es Load para main: una configuración inválida no tiene arreglo en caliente.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// DSN devuelve la cadena de conexión del driver elegido.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" || c.DBDriver == "postgresql" || c.DBDriver == "pgx" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "sqlite3":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres", "postgresql", "pgx":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.BatchSize <= 0 || c.MaxQueueDepth < c.BatchSize {
		return fmt.Errorf("MAX_QUEUE_DEPTH (%d) must be >= BATCH_SIZE (%d) > 0", c.MaxQueueDepth, c.BatchSize)
	}
	if c.OutboxLimit <= 0 {
		return fmt.Errorf("OUTBOX_LIMIT must be positive")
	}
	return nil
}
