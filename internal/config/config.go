// Package config defines the service configuration and its loader. Fields
// are populated from a TOML file and then overridden by AUCTION_* environment
// variables.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP listener parameters.
type ServerConfig struct {
	Port int `toml:"port"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the optional Redis event-bus parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// Default returns the configuration used when no file or env overrides are
// present: in-memory storage, no event bus, port 8080.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Storage:  StorageConfig{Backend: "memory"},
		LogLevel: "info",
	}
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
			return fmt.Errorf("config: postgres backend selected but connection parameters are incomplete")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis event bus enabled but addr is empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	return nil
}
