// Package cli provides the command-line interface for dbal.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/dbal/internal/cli/commands"
	"github.com/leapstack-labs/dbal/internal/cli/config"
	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/spf13/cobra"

	// Register the bundled adapters.
	_ "github.com/leapstack-labs/dbal/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/memory"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/dbal/pkg/adapters/sqlite"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "dbal",
		Short: "dbal - database abstraction layer toolkit",
		Long: `dbal talks to MySQL, PostgreSQL, SQLite and DuckDB through one connection
port and dialect-aware query, schema and transaction components.

The CLI inspects the configured database, runs ad-hoc SQL, applies SQL file
migrations and records the application schema version.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", slog.String("path", configFile))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: dbal.yaml searched upward from the working directory)")
	flags.String("driver", "", "Database driver ("+strings.Join(adapter.ListAdapters(), "|")+")")
	flags.String("path", "", "Database file for sqlite and duckdb (\":memory:\" for in-memory)")
	flags.String("host", "", "Database host")
	flags.Int("port", 0, "Database port")
	flags.String("user", "", "Database user")
	flags.String("database", "", "Database name")
	flags.String("table-prefix", "", "Prefix prepended to every table name")
	flags.String("migrations-dir", "", "Path to SQL migrations directory")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.BoolP("verbose", "v", false, "Verbose output (debug logging)")
	flags.StringP("output", "o", "", "Output format ("+strings.Join(output.Modes(), "|")+")")

	// Register completion for output and driver flags
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return adapter.ListAdapters(), cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewTablesCommand())
	rootCmd.AddCommand(commands.NewDescribeCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewSchemaVersionCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger builds the CLI logger: text records on stderr at the
// configured level, debug when verbose.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: unknown log level %q, using warn\n", cfg.LogLevel)
			level = slog.LevelWarn
		}
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for dbal.

To load completions:

Bash:
  $ source <(dbal completion bash)

Zsh:
  $ dbal completion zsh > "${fpath[1]}/_dbal"

Fish:
  $ dbal completion fish | source

PowerShell:
  PS> dbal completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
