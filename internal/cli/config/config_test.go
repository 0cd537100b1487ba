package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedcfg "github.com/leapstack-labs/dbal/internal/config"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/dbal/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "dbal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("driver", "", "")
	flags.String("path", "", "")
	flags.Int("port", 0, "")
	flags.String("table-prefix", "", "")
	flags.String("migrations-dir", "", "")
	flags.Duration("retry-delay", 0, "")
	flags.BoolP("verbose", "v", false, "")
	flags.StringP("output", "o", "", "")
	return flags
}

// TestExpandEnvVars tests the expandEnvVars function.
func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
		{name: "mixed set and unset", input: "${TEST_VAR_ONE}:${UNSET_VAR}", expected: "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestEnvAndFlagKeys(t *testing.T) {
	assert.Equal(t, "connection.table_prefix", envKey("DBAL_CONNECTION__TABLE_PREFIX"))
	assert.Equal(t, "log_level", envKey("DBAL_LOG_LEVEL"))
	assert.Equal(t, "connection.table_prefix", flagKey("table-prefix"))
	assert.Equal(t, "migrations.dir", flagKey("migrations-dir"))
	assert.Equal(t, "log_level", flagKey("log-level"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Empty(t, GetConfigFileUsed())
	assert.Equal(t, "sqlite", cfg.Connection.Driver)
	assert.Equal(t, "dbal.db", filepath.Base(cfg.Connection.Path))
	assert.True(t, filepath.IsAbs(cfg.Connection.Path))
	assert.Equal(t, "migrations", filepath.Base(cfg.Migrations.Dir))
	assert.Equal(t, 3, cfg.Transaction.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Transaction.RetryDelay)
	assert.Equal(t, "auto", cfg.Output)
	assert.False(t, cfg.Verbose)
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	cfgPath := writeConfig(t, dir, `connection:
  driver: postgres
  host: localhost
  database: shop
  user: app
  password: ${TEST_DB_PASSWORD}
  table_prefix: wp_
migrations:
  dir: db/migrations
transaction:
  max_attempts: 5
  retry_delay: 2s
  isolation: serializable
output: json
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "postgres", cfg.Connection.Driver)
	assert.Equal(t, 5432, cfg.Connection.Port)
	assert.Equal(t, "public", cfg.Connection.Schema)
	assert.Equal(t, "secret123", cfg.Connection.Password)
	assert.Equal(t, "wp_", cfg.Connection.TablePrefix)
	assert.Equal(t, filepath.Join(dir, "db", "migrations"), cfg.Migrations.Dir)
	assert.Equal(t, 5, cfg.Transaction.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Transaction.RetryDelay)
	assert.Equal(t, "serializable", cfg.Transaction.Isolation)
	assert.Equal(t, "json", cfg.Output)
}

func TestLoadConfig_SearchesUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	writeConfig(t, root, "connection:\n  driver: sqlite\n  path: data/app.db\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	wantRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(cfg.ProjectRoot)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotRoot)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "data", "app.db"), cfg.Connection.Path)
}

func TestLoadConfig_EmptyValuesFallBackToDefaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `connection:
  driver: mysql
  host: db.internal
  database: app
  port: 0
migrations:
  dir: ""
transaction:
  max_attempts: 0
output: ""
log_level: ""
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, 3306, cfg.Connection.Port)
	assert.Equal(t, filepath.Join(dir, "migrations"), cfg.Migrations.Dir)
	assert.Equal(t, 3, cfg.Transaction.MaxAttempts)
	assert.Equal(t, "auto", cfg.Output)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_UpwardSearchIsBounded(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	writeConfig(t, root, "output: json\n")
	parts := []string{root}
	for i := 0; i < sharedcfg.MaxUpwardSearchLevels; i++ {
		parts = append(parts, "d")
	}
	deep := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(deep, 0o755))
	t.Chdir(deep)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Empty(t, GetConfigFileUsed())
	assert.Equal(t, "auto", cfg.Output)
}

func TestLoadConfig_Precedence(t *testing.T) {
	content := `connection:
  driver: sqlite
  table_prefix: file_
`

	t.Run("env overrides file", func(t *testing.T) {
		ResetConfig()
		cfgPath := writeConfig(t, t.TempDir(), content)
		t.Setenv("DBAL_CONNECTION__TABLE_PREFIX", "env_")
		t.Setenv("DBAL_TRANSACTION__MAX_ATTEMPTS", "7")

		cfg, err := LoadConfig(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, "env_", cfg.Connection.TablePrefix)
		assert.Equal(t, 7, cfg.Transaction.MaxAttempts)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		ResetConfig()
		cfgPath := writeConfig(t, t.TempDir(), content)
		t.Setenv("DBAL_CONNECTION__TABLE_PREFIX", "env_")

		flags := testFlags()
		require.NoError(t, flags.Set("table-prefix", "flag_"))
		require.NoError(t, flags.Set("retry-delay", "250ms"))
		require.NoError(t, flags.Set("verbose", "true"))

		cfg, err := LoadConfig(cfgPath, flags)
		require.NoError(t, err)
		assert.Equal(t, "flag_", cfg.Connection.TablePrefix)
		assert.Equal(t, 250*time.Millisecond, cfg.Transaction.RetryDelay)
		assert.True(t, cfg.Verbose)
	})

	t.Run("unset flag falls back to env", func(t *testing.T) {
		ResetConfig()
		cfgPath := writeConfig(t, t.TempDir(), content)
		t.Setenv("DBAL_CONNECTION__TABLE_PREFIX", "env_")

		cfg, err := LoadConfig(cfgPath, testFlags())
		require.NoError(t, err)
		assert.Equal(t, "env_", cfg.Connection.TablePrefix)
	})

	t.Run("flag paths are relative to the working directory", func(t *testing.T) {
		ResetConfig()
		cfgPath := writeConfig(t, t.TempDir(), content)
		cwd := t.TempDir()
		t.Chdir(cwd)

		flags := testFlags()
		require.NoError(t, flags.Set("path", "local.db"))
		require.NoError(t, flags.Set("migrations-dir", "sql"))

		cfg, err := LoadConfig(cfgPath, flags)
		require.NoError(t, err)
		got, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(got, "local.db"), cfg.Connection.Path)
		assert.Equal(t, filepath.Join(got, "sql"), cfg.Migrations.Dir)
	})
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{name: "unknown driver", content: "connection:\n  driver: oracle\n", errSubstr: "unknown adapter type"},
		{name: "bad output", content: "output: xml\n", errSubstr: "unknown output format"},
		{name: "malformed yaml", content: "connection: [\n", errSubstr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			cfgPath := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadConfig(cfgPath, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		ResetConfig()
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		assert.Error(t, err)
	})
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}
