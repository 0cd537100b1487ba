// Package duckdb provides a DuckDB database adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/dialect"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:     logger,
			SQLDialect: dialect.MustGet(dialect.DuckDB),
		},
	}
}

// Name returns the registry name of the adapter.
func (a *Adapter) Name() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildDuckDBDSN(cfg)

	a.Logger.Debug("opening duckdb database", slog.String("dsn", dsn))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return a.Attach(ctx, db, cfg)
}

// buildDuckDBDSN appends driver options (threads, memory_limit, access_mode)
// as DSN query parameters. An empty path opens an in-memory database.
func buildDuckDBDSN(cfg adapter.Config) string {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}
	if len(cfg.Options) == 0 {
		return path
	}

	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Set(k, cfg.Options[k])
	}
	return path + "?" + q.Encode()
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.SQLDBProvider = (*Adapter)(nil)
)
