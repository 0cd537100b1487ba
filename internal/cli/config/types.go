// Package config provides configuration management for the dbal CLI.
//
// This package extends the shared configuration types from internal/config
// with CLI-specific fields and layered loading (defaults, dbal.yaml,
// DBAL_ environment variables and flags).
package config

import (
	sharedcfg "github.com/leapstack-labs/dbal/internal/config"
)

// ConnectionConfig is an alias for the shared connection configuration.
type ConnectionConfig = sharedcfg.ConnectionConfig

// MigrationsConfig is an alias for the shared migrations configuration.
type MigrationsConfig = sharedcfg.MigrationsConfig

// TransactionConfig is an alias for the shared transaction configuration.
type TransactionConfig = sharedcfg.TransactionConfig

// Config holds all CLI configuration options.
type Config struct {
	sharedcfg.Config `koanf:",squash"`

	Verbose bool `koanf:"verbose"`

	// ProjectRoot is the directory holding dbal.yaml, or the working
	// directory when there is none. Relative paths resolve against it.
	ProjectRoot string `koanf:"-"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	return c.Config.Validate()
}
