package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register adapters via init()
	_ "github.com/leapstack-labs/dbal/pkg/adapters/memory"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/sqlite"
)

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		conn      ConnectionConfig
		errSubstr string
	}{
		{name: "empty driver", conn: ConnectionConfig{}, errSubstr: "connection driver is required"},
		{name: "sqlite", conn: ConnectionConfig{Driver: "sqlite"}},
		{name: "uppercase postgres", conn: ConnectionConfig{Driver: "Postgres"}},
		{name: "memory", conn: ConnectionConfig{Driver: "memory"}},
		{name: "unknown driver", conn: ConnectionConfig{Driver: "oracle"}, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conn.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConnectionConfig_ValidateUnknownListsAvailable(t *testing.T) {
	err := (&ConnectionConfig{Driver: "oracle"}).Validate()

	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "oracle", unknown.Type)
	assert.Contains(t, unknown.Available, "sqlite")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := Config{Connection: ConnectionConfig{Driver: "sqlite"}}
		ApplyDefaults(&c)
		return c
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero attempts", mutate: func(c *Config) { c.Transaction.MaxAttempts = 0 }, errSubstr: "max_attempts"},
		{name: "negative delay", mutate: func(c *Config) { c.Transaction.RetryDelay = -time.Second }, errSubstr: "retry_delay"},
		{name: "bad output", mutate: func(c *Config) { c.Output = "xml" }, errSubstr: `unknown output format "xml"`},
		{name: "yaml output", mutate: func(c *Config) { c.Output = "yaml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestApplyConnectionDefaults(t *testing.T) {
	tests := []struct {
		name       string
		in         ConnectionConfig
		wantPort   int
		wantSchema string
	}{
		{name: "mysql port", in: ConnectionConfig{Driver: "mysql"}, wantPort: 3306},
		{name: "postgres port and schema", in: ConnectionConfig{Driver: "postgres"}, wantPort: 5432, wantSchema: "public"},
		{name: "explicit values kept", in: ConnectionConfig{Driver: "postgres", Port: 6543, Schema: "app"}, wantPort: 6543, wantSchema: "app"},
		{name: "sqlite has neither", in: ConnectionConfig{Driver: "sqlite"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			ApplyConnectionDefaults(&c)
			assert.Equal(t, tt.wantPort, c.Port)
			assert.Equal(t, tt.wantSchema, c.Schema)
		})
	}

	ApplyConnectionDefaults(nil)
}

func TestApplyDefaults(t *testing.T) {
	var c Config
	ApplyDefaults(&c)

	assert.Equal(t, DefaultDriver, c.Connection.Driver)
	assert.Equal(t, DefaultPath, c.Connection.Path)
	assert.Equal(t, DefaultMigrationsDir, c.Migrations.Dir)
	assert.Equal(t, "goose_db_version", c.Migrations.Table)
	assert.Equal(t, 3, c.Transaction.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, c.Transaction.RetryDelay)
	assert.Equal(t, DefaultOutput, c.Output)
	assert.Equal(t, DefaultLogLevel, c.LogLevel)
}

func TestAdapterConfig(t *testing.T) {
	c := ConnectionConfig{
		Driver:      "MySQL",
		Host:        "db.internal",
		Port:        3306,
		Database:    "shop",
		User:        "app",
		Password:    "secret",
		TablePrefix: "wp_",
		Charset:     "utf8mb4",
		Collation:   "utf8mb4_unicode_ci",
		Options:     map[string]string{"parseTime": "true"},
	}

	got := c.AdapterConfig()
	assert.Equal(t, adapter.Config{
		Type:        "mysql",
		Host:        "db.internal",
		Port:        3306,
		Database:    "shop",
		Username:    "app",
		Password:    "secret",
		TablePrefix: "wp_",
		Charset:     "utf8mb4",
		Collation:   "utf8mb4_unicode_ci",
		Options:     map[string]string{"parseTime": "true"},
	}, got)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("connection:\n  driver: sqlite\n"), 0o600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(root))
	assert.Empty(t, FindConfigFile(nested))

	alt := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(alt, ConfigFileNameAlt), []byte("output: json\n"), 0o600))
	assert.Equal(t, filepath.Join(alt, ConfigFileNameAlt), FindConfigFile(alt))
}

func TestFindProjectRootStopsAfterMaxLevels(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("output: json\n"), 0o600))

	parts := []string{root}
	for i := 0; i < MaxUpwardSearchLevels; i++ {
		parts = append(parts, "d")
	}
	deep := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Empty(t, FindProjectRoot(deep))
	assert.Equal(t, root, FindProjectRoot(filepath.Dir(deep)))
}
