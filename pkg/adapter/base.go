package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query and table qualification implementations.
//
// All statements run on one pinned *sql.Conn so that session state
// (open transaction, savepoints, FK checks) is shared between calls.
type BaseSQLAdapter struct {
	DB         *sql.DB
	Conn       *sql.Conn
	Cfg        Config
	Logger     *slog.Logger
	SQLDialect *dialect.Dialect
}

// Attach pins a session from db and records the config.
// Concrete adapters call it after opening and pinging the pool.
func (b *BaseSQLAdapter) Attach(ctx context.Context, db *sql.DB, cfg Config) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin connection: %w", err)
	}
	b.DB = db
	b.Conn = conn
	b.Cfg = cfg
	if b.Logger == nil {
		b.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Close closes the pinned session and the pool.
func (b *BaseSQLAdapter) Close() error {
	if b.DB == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing database connection")
	}
	if b.Conn != nil {
		_ = b.Conn.Close()
		b.Conn = nil
	}
	err := b.DB.Close()
	b.DB = nil
	return err
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if b.Conn == nil {
		return Result{}, fmt.Errorf("database connection not established")
	}
	b.logStatement(query, args)

	res, err := b.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute SQL: %w", err)
	}

	var out Result
	// Drivers without support (pgx) return an error here; treat it as zero.
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, query string, args ...any) ([]core.Row, error) {
	if b.Conn == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	b.logStatement(query, args)

	rows, err := b.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return ScanRows(rows)
}

// Dialect returns the SQL dialect of the adapter.
func (b *BaseSQLAdapter) Dialect() *dialect.Dialect {
	return b.SQLDialect
}

// QualifyTable prepends the configured table prefix. Names that already
// carry the prefix are returned unchanged, and a schema qualifier is kept
// in front of the prefixed name.
func (b *BaseSQLAdapter) QualifyTable(name string) string {
	return QualifyName(b.Cfg.TablePrefix, name)
}

// Charset returns the configured charset.
func (b *BaseSQLAdapter) Charset() string { return b.Cfg.Charset }

// Collation returns the configured collation.
func (b *BaseSQLAdapter) Collation() string { return b.Cfg.Collation }

// SQLDB returns the underlying pool.
func (b *BaseSQLAdapter) SQLDB() *sql.DB { return b.DB }

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.Conn != nil
}

func (b *BaseSQLAdapter) logStatement(query string, args []any) {
	if b.Logger == nil {
		return
	}
	b.Logger.Debug("executing statement",
		slog.String("sql", query),
		slog.Int("bindings", len(args)))
}

// QualifyName applies a table prefix to a possibly schema-qualified name.
func QualifyName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	schema, table := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		schema, table = name[:i+1], name[i+1:]
	}
	if strings.HasPrefix(table, prefix) {
		return name
	}
	return schema + prefix + table
}

// ScanRows drains rows into ordered core rows. Text returned as []byte is
// converted to string unless the column type is binary.
func ScanRows(rows *sql.Rows) ([]core.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	binary := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			binary[i] = isBinaryType(ct.DatabaseTypeName())
		}
	}

	var out []core.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		vals := make([]core.Value, len(cols))
		for i, v := range values {
			if bs, ok := v.([]byte); ok && !binary[i] {
				v = string(bs)
			}
			vals[i] = core.ValueOf(v)
		}
		out = append(out, core.NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}
