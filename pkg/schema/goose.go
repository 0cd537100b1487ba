package schema

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/pressly/goose/v3"
)

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// gooseLogger routes goose output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// withGoose configures goose for this manager and runs fn with the pool.
// SQLite file migrations need a file-backed database: goose uses its own
// session from the pool.
func (m *Manager) withGoose(fsys fs.FS, fn func(db *sql.DB) error) error {
	provider, ok := m.conn.(adapter.SQLDBProvider)
	if !ok || provider.SQLDB() == nil {
		return fmt.Errorf("file migrations need a database/sql backed connection: %w", core.ErrUnsupported)
	}
	d := m.dialect()
	if d.GooseDialect == "" {
		return fmt.Errorf("file migrations for %s: %w", d.Name, core.ErrUnsupported)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger: m.logger})
	prevTable := goose.TableName()
	goose.SetTableName(m.conn.QualifyTable(m.gooseTable))
	defer goose.SetTableName(prevTable)

	if err := goose.SetDialect(d.GooseDialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn(provider.SQLDB())
}

// MigrateFS applies every pending goose migration found in dir of fsys.
func (m *Manager) MigrateFS(ctx context.Context, fsys fs.FS, dir string) error {
	return m.withGoose(fsys, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, dir); err != nil {
			return &core.SchemaError{Op: "migrate files", Table: m.gooseTable, Err: err}
		}
		return nil
	})
}

// RollbackFS reverts the most recent goose migration.
func (m *Manager) RollbackFS(ctx context.Context, fsys fs.FS, dir string) error {
	return m.withGoose(fsys, func(db *sql.DB) error {
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return &core.SchemaError{Op: "rollback files", Table: m.gooseTable, Err: err}
		}
		return nil
	})
}

// FSVersion returns the current goose migration version.
func (m *Manager) FSVersion(ctx context.Context, fsys fs.FS) (int64, error) {
	var version int64
	err := m.withGoose(fsys, func(db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return &core.SchemaError{Op: "file migration version", Table: m.gooseTable, Err: err}
		}
		version = v
		return nil
	})
	return version, err
}
