package config

import (
	"time"

	"github.com/leapstack-labs/dbal/pkg/dialect"
	"github.com/leapstack-labs/dbal/pkg/schema"
	"github.com/leapstack-labs/dbal/pkg/txn"
)

// Default configuration values.
const (
	DefaultDriver        = "sqlite"
	DefaultPath          = "dbal.db"
	DefaultMigrationsDir = "migrations"
	DefaultOutput        = "auto"
	DefaultLogLevel      = "warn"
)

// Default values taken from the components they configure.
var (
	DefaultMaxAttempts     = txn.DefaultMaxAttempts
	DefaultRetryDelay      = txn.DefaultRetryDelay
	DefaultMigrationsTable = schema.DefaultGooseTable
)

var defaultPorts = map[string]int{
	dialect.MySQL:    3306,
	dialect.Postgres: 5432,
}

// Defaults returns the flattened default values, keyed like dbal.yaml.
func Defaults() map[string]any {
	return map[string]any{
		"connection.driver":        DefaultDriver,
		"connection.path":          DefaultPath,
		"migrations.dir":           DefaultMigrationsDir,
		"migrations.table":         DefaultMigrationsTable,
		"transaction.max_attempts": DefaultMaxAttempts,
		"transaction.retry_delay":  DefaultRetryDelay.String(),
		"log_level":                DefaultLogLevel,
		"output":                   DefaultOutput,
	}
}

// DefaultSchemaForDriver returns the default schema for a driver.
// It looks up the dialect in the registry; unknown drivers have none.
func DefaultSchemaForDriver(driver string) string {
	if d, ok := dialect.Get(driver); ok {
		return d.DefaultSchema
	}
	return ""
}

// ApplyConnectionDefaults fills driver-dependent defaults.
func ApplyConnectionDefaults(c *ConnectionConfig) {
	if c == nil {
		return
	}
	if c.Port == 0 {
		c.Port = defaultPorts[c.Driver]
	}
	if c.Schema == "" && c.Driver == dialect.Postgres {
		c.Schema = DefaultSchemaForDriver(c.Driver)
	}
}

// ApplyDefaults fills every unset value. The layered loader seeds koanf
// with Defaults, so here it only catches values explicitly set to empty.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Connection.Driver == "" {
		c.Connection.Driver = DefaultDriver
	}
	if c.Connection.Path == "" && c.Connection.Host == "" {
		c.Connection.Path = DefaultPath
	}
	ApplyConnectionDefaults(&c.Connection)
	if c.Migrations.Dir == "" {
		c.Migrations.Dir = DefaultMigrationsDir
	}
	if c.Migrations.Table == "" {
		c.Migrations.Table = DefaultMigrationsTable
	}
	if c.Transaction.MaxAttempts == 0 {
		c.Transaction.MaxAttempts = DefaultMaxAttempts
	}
	if c.Transaction.RetryDelay == 0 {
		c.Transaction.RetryDelay = DefaultRetryDelay
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// RetryDelayOrDefault is a convenience accessor.
func (t TransactionConfig) RetryDelayOrDefault() time.Duration {
	if t.RetryDelay <= 0 {
		return DefaultRetryDelay
	}
	return t.RetryDelay
}
