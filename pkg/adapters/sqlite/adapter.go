package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/dialect"
	"modernc.org/sqlite"
)

// Primary result codes that signal contention.
const (
	codeBusy   = 5
	codeLocked = 6
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:     logger,
			SQLDialect: dialect.MustGet(dialect.SQLite),
		},
	}
}

// Name returns the registry name of the adapter.
func (a *Adapter) Name() string {
	return "sqlite"
}

// Connect opens the database file at cfg.Path.
// Use ":memory:" (or an empty path) for an in-memory database; the pinned
// session keeps it alive until Close.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("opening sqlite database", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	if cfg.Charset == "" {
		cfg.Charset = "UTF-8"
	}
	if err := a.Attach(ctx, db, cfg); err != nil {
		_ = db.Close()
		return err
	}

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := a.Exec(ctx, pragma); err != nil {
			_ = a.Close()
			return fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}
	return nil
}

// IsTransient reports SQLITE_BUSY and SQLITE_LOCKED failures.
func (a *Adapter) IsTransient(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == codeBusy || code == codeLocked
	}
	return false
}

var (
	_ adapter.Adapter                = (*Adapter)(nil)
	_ adapter.TransientErrorDetector = (*Adapter)(nil)
	_ adapter.SQLDBProvider          = (*Adapter)(nil)
)
