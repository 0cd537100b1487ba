package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/database"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert SQL file migrations",
		Long: `Apply or revert goose-annotated SQL migrations.

Migration files are read from migrations.dir (flag --migrations-dir) and
their version is tracked in migrations.table.`,
		Example: `  dbal migrate up
  dbal migrate down
  dbal migrate status -o json`,
	}

	cmd.AddCommand(
		newMigrateSubcommand("up", "Apply every pending migration", migrateUp),
		newMigrateSubcommand("down", "Revert the most recent migration", migrateDown),
		newMigrateSubcommand("status", "Show the current migration version", migrateStatus),
	)
	return cmd
}

type migrateFunc func(ctx context.Context, db *database.DB, dir string, r *output.Renderer) error

func newMigrateSubcommand(use, short string, fn migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			dir := cmdCtx.Cfg.Migrations.Dir
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("migrations directory does not exist: %s\nHint: Create the directory or use --migrations-dir to specify a different path", dir)
			}
			return fn(cmd.Context(), cmdCtx.DB, dir, cmdCtx.Renderer)
		},
	}
}

func migrateUp(ctx context.Context, db *database.DB, dir string, r *output.Renderer) error {
	if err := db.Schema().MigrateFS(ctx, os.DirFS(dir), "."); err != nil {
		return err
	}
	return migrateStatus(ctx, db, dir, r)
}

func migrateDown(ctx context.Context, db *database.DB, dir string, r *output.Renderer) error {
	if err := db.Schema().RollbackFS(ctx, os.DirFS(dir), "."); err != nil {
		return err
	}
	return migrateStatus(ctx, db, dir, r)
}

// migrationStatus is the structured form of migrate output.
type migrationStatus struct {
	Version       int64  `json:"version" yaml:"version"`
	SchemaVersion string `json:"schema_version" yaml:"schema_version"`
}

func migrateStatus(ctx context.Context, db *database.DB, dir string, r *output.Renderer) error {
	version, err := db.Schema().FSVersion(ctx, os.DirFS(dir))
	if err != nil {
		return err
	}
	schemaVersion, err := db.Schema().GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	st := migrationStatus{Version: version, SchemaVersion: schemaVersion}
	return r.Object(st,
		[]string{"version", "schema_version"},
		[][]string{{strconv.FormatInt(st.Version, 10), st.SchemaVersion}})
}

// NewSchemaVersionCommand creates the schema-version command.
func NewSchemaVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema-version",
		Short: "Show or set the recorded schema version",
		Long: `Show or set the application schema version recorded in the
schema meta table. The version survives dropping application tables.`,
		Example: `  dbal schema-version
  dbal schema-version set 2.4.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return showSchemaVersion(cmd.Context(), cmdCtx.DB, cmdCtx.Renderer)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <version>",
		Short: "Record a new schema version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := cmdCtx.DB.Schema().SetSchemaVersion(cmd.Context(), args[0]); err != nil {
				return err
			}
			return showSchemaVersion(cmd.Context(), cmdCtx.DB, cmdCtx.Renderer)
		},
	})
	return cmd
}

func showSchemaVersion(ctx context.Context, db *database.DB, r *output.Renderer) error {
	v, err := db.Schema().GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	return r.Object(map[string]string{"schema_version": v}, []string{"schema_version"}, [][]string{{v}})
}
