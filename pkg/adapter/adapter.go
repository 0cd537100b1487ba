// Package adapter defines the Connection port of the data-access layer and
// shared plumbing for database/sql based adapters.
//
// Everything above this package (query builder, schema manager, transaction
// manager) talks to a Connection and never to a driver directly. Concrete
// adapters live in pkg/adapters/ subdirectories and register themselves
// with this package's registry from init().
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// Config holds the configuration for connecting to a database.
type Config struct {
	// Type specifies the adapter name (e.g., "mysql", "postgres", "sqlite")
	Type string

	// Path is the file path for file-based databases (SQLite, DuckDB).
	// Use ":memory:" for an in-memory database.
	Path string

	// Network databases
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema is the default schema to use
	Schema string

	// TablePrefix is prepended to every logical table name.
	TablePrefix string

	// Charset and Collation are reported to DDL helpers.
	Charset   string
	Collation string

	// Options contains additional driver-specific options
	Options map[string]string
}

// Result is the outcome of a statement that returns no rows.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Connection is the port every backend implements. It is an opaque handle
// to one engine session: statements issued through it run on the same
// physical connection, which is what makes BEGIN/SAVEPOINT emulation work.
type Connection interface {
	// Exec executes a parameterized statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) (Result, error)

	// Query executes a parameterized statement and returns its rows in engine order.
	Query(ctx context.Context, query string, args ...any) ([]core.Row, error)

	// Dialect returns the SQL dialect of the backend.
	Dialect() *dialect.Dialect

	// QualifyTable turns a logical table name into the physical one.
	QualifyTable(name string) string

	// Charset and Collation report the connection's text encoding defaults.
	Charset() string
	Collation() string

	// Close releases the session.
	Close() error
}

// Adapter is a Connection that can be opened from a Config.
type Adapter interface {
	Connection

	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Name returns the registry name of the adapter.
	Name() string
}

// TransientErrorDetector is implemented by adapters that can recognise
// lock-wait and deadlock failures from typed driver errors.
type TransientErrorDetector interface {
	IsTransient(err error) bool
}

// SQLDBProvider is implemented by adapters backed by a database/sql pool.
// Tools that manage their own sessions (goose) need the pool itself.
type SQLDBProvider interface {
	SQLDB() *sql.DB
}
