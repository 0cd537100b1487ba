// Package database bundles one Connection with the components built on it:
// a query builder factory, a schema manager and a transaction manager.
//
// Repository code takes a *DB and never touches a driver, so the same code
// runs against any registered adapter.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/query"
	"github.com/leapstack-labs/dbal/pkg/schema"
	"github.com/leapstack-labs/dbal/pkg/txn"
)

// DB is the entry point of the data-access layer.
type DB struct {
	conn   adapter.Connection
	logger *slog.Logger
	schema *schema.Manager
	tx     *txn.Manager
}

type options struct {
	logger     *slog.Logger
	schemaOpts []schema.Option
	txnOpts    []txn.Option
	isolation  string
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSchemaOptions passes options to the schema manager.
func WithSchemaOptions(opts ...schema.Option) Option {
	return func(o *options) { o.schemaOpts = append(o.schemaOpts, opts...) }
}

// WithTxnOptions passes options to the transaction manager.
func WithTxnOptions(opts ...txn.Option) Option {
	return func(o *options) { o.txnOpts = append(o.txnOpts, opts...) }
}

// WithIsolation sets the session isolation level when the DB is opened.
func WithIsolation(level string) Option {
	return func(o *options) { o.isolation = level }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Open connects the adapter named by cfg.Type and wraps it.
func Open(ctx context.Context, cfg adapter.Config, opts ...Option) (*DB, error) {
	o := buildOptions(opts)
	conn, err := adapter.Open(ctx, cfg, o.logger)
	if err != nil {
		return nil, err
	}
	db := newDB(conn, o)
	if o.isolation != "" {
		if err := db.tx.SetIsolationLevel(ctx, o.isolation); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set isolation level: %w", err)
		}
	}
	o.logger.Debug("database opened", slog.String("driver", cfg.Type))
	return db, nil
}

// New wraps an already connected Connection.
func New(conn adapter.Connection, opts ...Option) *DB {
	return newDB(conn, buildOptions(opts))
}

func newDB(conn adapter.Connection, o options) *DB {
	return &DB{
		conn:   conn,
		logger: o.logger,
		schema: schema.NewManager(conn, append([]schema.Option{schema.WithLogger(o.logger)}, o.schemaOpts...)...),
		tx:     txn.NewManager(conn, append([]txn.Option{txn.WithLogger(o.logger)}, o.txnOpts...)...),
	}
}

// Conn returns the underlying connection.
func (db *DB) Conn() adapter.Connection { return db.conn }

// Table starts a builder on a logical table.
func (db *DB) Table(name string) *query.Builder {
	return query.Table(db.conn, name, query.WithLogger(db.logger))
}

// Query starts a builder without a table. Set one with From; mostly used
// for subqueries.
func (db *DB) Query() *query.Builder {
	return query.New(db.conn, query.WithLogger(db.logger))
}

// Schema returns the schema manager.
func (db *DB) Schema() *schema.Manager { return db.schema }

// Tx returns the transaction manager.
func (db *DB) Tx() *txn.Manager { return db.tx }

// Transaction runs fn in a transaction. It is shorthand for Tx().Run.
func (db *DB) Transaction(ctx context.Context, fn txn.Func) error {
	return db.tx.Run(ctx, fn)
}

// Close rolls back any transaction left open and closes the connection.
func (db *DB) Close() error {
	for db.tx.InTransaction() {
		db.logger.Warn("closing with an open transaction, rolling back", slog.Int("level", db.tx.Level()))
		_ = db.tx.Rollback(context.Background())
	}
	return db.conn.Close()
}
