package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection and pool configuration.
type Config struct {
	// DSN, when set (from DATABASE_URL), is used verbatim and the discrete
	// Host/Port/... fields below are ignored.
	DSN string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConnString returns the pgx-compatible connection string for this config.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Validate checks the configuration for obviously broken settings.
func (c Config) Validate() error {
	if c.DSN == "" && c.Host == "" {
		return fmt.Errorf("%w: DATABASE_URL or DB_HOST is required", errMissingRequiredConfig)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("DB_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

// LoadConfigFromEnv loads database configuration from the environment with
// production-ready defaults. DATABASE_URL, when present, takes precedence
// over the discrete DB_* variables.
func LoadConfigFromEnv() (Config, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg := Config{
			DSN:             dsn,
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: envDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		}
		return cfg, cfg.Validate()
	}

	port, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	cfg := Config{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            port,
		User:            envOr("DB_USER", "swarm"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        envOr("DB_NAME", "swarm"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: envDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
	}

	return cfg, cfg.Validate()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
