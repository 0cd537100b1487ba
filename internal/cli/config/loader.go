package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	sharedcfg "github.com/leapstack-labs/dbal/internal/config"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix is the prefix of environment variables read by the loader.
// Nested keys are separated by a double underscore, so
// DBAL_CONNECTION__TABLE_PREFIX sets connection.table_prefix.
const EnvPrefix = "DBAL_"

// flagKeys maps flag names onto config keys. Flags missing from the map
// use their name with dashes turned into underscores.
var flagKeys = map[string]string{
	"driver":          "connection.driver",
	"path":            "connection.path",
	"host":            "connection.host",
	"port":            "connection.port",
	"user":            "connection.user",
	"password":        "connection.password",
	"database":        "connection.database",
	"schema":          "connection.schema",
	"table-prefix":    "connection.table_prefix",
	"migrations-dir":  "migrations.dir",
	"max-attempts":    "transaction.max_attempts",
	"retry-delay":     "transaction.retry_delay",
	"isolation-level": "transaction.isolation",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or an in-memory marker.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// envKey transforms DBAL_CONNECTION__TABLE_PREFIX into connection.table_prefix.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// flagKey maps a changed flag onto its config key.
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// LoadConfig loads configuration from defaults, the config file,
// environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Load defaults
	defaults := sharedcfg.Defaults()
	defaults["verbose"] = false
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	projectRoot := cwd
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	} else if root := sharedcfg.FindProjectRoot(cwd); root != "" {
		projectRoot = root
		configFileUsed = sharedcfg.FindConfigFile(root)
	}
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (DBAL_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	var flagPath, flagMigrations string
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}

		// Paths given on the command line are relative to the working directory.
		if flags.Changed("path") {
			flagPath, _ = flags.GetString("path")
			flagPath = resolvePathRelativeTo(flagPath, cwd)
		}
		if flags.Changed("migrations-dir") {
			flagMigrations, _ = flags.GetString("migrations-dir")
			flagMigrations = resolvePathRelativeTo(flagMigrations, cwd)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Fill values left empty, then resolve paths
	sharedcfg.ApplyDefaults(&cfg.Config)
	cfg.ProjectRoot = projectRoot
	if flagPath != "" {
		cfg.Connection.Path = flagPath
	} else {
		cfg.Connection.Path = resolvePathRelativeTo(cfg.Connection.Path, projectRoot)
	}
	if flagMigrations != "" {
		cfg.Migrations.Dir = flagMigrations
	} else {
		cfg.Migrations.Dir = resolvePathRelativeTo(cfg.Migrations.Dir, projectRoot)
	}

	expandConnectionEnvVars(&cfg.Connection)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandConnectionEnvVars expands environment variables in sensitive connection fields.
func expandConnectionEnvVars(c *ConnectionConfig) {
	c.Password = expandEnvVars(c.Password)
	c.User = expandEnvVars(c.User)
	c.Host = expandEnvVars(c.Host)
	c.Database = expandEnvVars(c.Database)
}
