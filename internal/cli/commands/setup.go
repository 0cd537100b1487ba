package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dbal/internal/cli/config"
	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/database"
	"github.com/leapstack-labs/dbal/pkg/schema"
	"github.com/leapstack-labs/dbal/pkg/txn"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	DB       *database.DB
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open database and a
// renderer. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutDB(cmd)

	db, err := openDatabase(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.DB = db

	cleanup := func() {
		if err := db.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutDB creates a CommandContext without a database.
// Useful for commands that don't need database access.
func NewCommandContextWithoutDB(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, loading defaults when the
// root command did not run (commands executed on their own in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func openDatabase(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	opts := []database.Option{
		database.WithLogger(logger),
		database.WithTxnOptions(txn.WithRetry(cfg.Transaction.MaxAttempts, cfg.Transaction.RetryDelayOrDefault())),
	}
	if cfg.Migrations.Table != "" {
		opts = append(opts, database.WithSchemaOptions(schema.WithGooseTable(cfg.Migrations.Table)))
	}
	if cfg.Transaction.Isolation != "" {
		opts = append(opts, database.WithIsolation(cfg.Transaction.Isolation))
	}

	db, err := database.Open(cmd.Context(), cfg.Connection.AdapterConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Connection.Driver, err)
	}
	return db, nil
}
