// Package config provides shared configuration types for dbal.
// This package is decoupled from CLI concerns so that applications
// embedding the data-access layer can load the same dbal.yaml.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/dbal/pkg/adapter"
)

// ConnectionConfig holds database connection configuration.
type ConnectionConfig struct {
	Driver string `koanf:"driver"` // mysql, postgres, sqlite, duckdb, memory

	// File-based databases (SQLite, DuckDB)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema      string `koanf:"schema"`
	TablePrefix string `koanf:"table_prefix"`
	Charset     string `koanf:"charset"`
	Collation   string `koanf:"collation"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// MigrationsConfig locates goose migration files.
type MigrationsConfig struct {
	Dir   string `koanf:"dir"`
	Table string `koanf:"table"`
}

// TransactionConfig holds retry and isolation settings.
type TransactionConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	Isolation   string        `koanf:"isolation"`
}

// Config is the contents of dbal.yaml.
type Config struct {
	Connection  ConnectionConfig  `koanf:"connection"`
	Migrations  MigrationsConfig  `koanf:"migrations"`
	Transaction TransactionConfig `koanf:"transaction"`
	LogLevel    string            `koanf:"log_level"`
	Output      string            `koanf:"output"`
}

// Validate checks if the connection configuration is valid.
// It uses the adapter registry to determine which drivers are available.
func (c *ConnectionConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("connection driver is required")
	}

	// Use adapter registry as single source of truth
	if !adapter.IsRegistered(strings.ToLower(c.Driver)) {
		return &adapter.UnknownAdapterError{
			Type:      c.Driver,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if c.Transaction.MaxAttempts < 1 {
		return fmt.Errorf("transaction.max_attempts must be at least 1, got %d", c.Transaction.MaxAttempts)
	}
	if c.Transaction.RetryDelay < 0 {
		return fmt.Errorf("transaction.retry_delay must not be negative")
	}
	switch c.Output {
	case "", "auto", "table", "json", "yaml", "csv":
	default:
		return fmt.Errorf("unknown output format %q (want auto, table, json, yaml or csv)", c.Output)
	}
	return nil
}

// AdapterConfig converts the connection settings into an adapter.Config.
func (c *ConnectionConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:        strings.ToLower(c.Driver),
		Path:        c.Path,
		Host:        c.Host,
		Port:        c.Port,
		Database:    c.Database,
		Username:    c.User,
		Password:    c.Password,
		Schema:      c.Schema,
		TablePrefix: c.TablePrefix,
		Charset:     c.Charset,
		Collation:   c.Collation,
		Options:     c.Options,
	}
}
