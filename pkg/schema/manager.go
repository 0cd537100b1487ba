// Package schema manages DDL and schema versioning over an
// adapter.Connection.
//
// Existence checks always query the engine catalog. DDL helpers are
// idempotent where the operation allows it: creating something that exists
// or dropping something that does not is skipped, not attempted.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// Default bookkeeping table names (before prefixing).
const (
	DefaultMetaTable       = "schema_meta"
	DefaultMigrationsTable = "schema_migrations"
	DefaultGooseTable      = "goose_db_version"
)

// Column describes a column to create.
type Column struct {
	Name          string
	Type          string // engine type, e.g. "VARCHAR(255)", "BIGINT UNSIGNED"
	Nullable      bool
	Default       any // nil means no default; core.Raw is emitted verbatim
	AutoIncrement bool
	PrimaryKey    bool
	Unique        bool
}

// Index describes an index. Type is one of index, unique, fulltext, spatial.
type Index struct {
	Name    string
	Columns []string
	Type    string
}

// ForeignKey describes a named foreign key constraint.
type ForeignKey struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
	OnUpdate  string
}

// TableOptions carries table-level settings for CreateTable.
type TableOptions struct {
	// MySQL table options. Charset and Collation default to the connection's.
	Engine    string
	RowFormat string
	Charset   string
	Collation string

	// PrimaryKey lists the primary key columns when not declared per column.
	PrimaryKey []string

	Indexes     []Index
	ForeignKeys []ForeignKey
}

// ColumnInfo is a column as reported by the catalog.
type ColumnInfo struct {
	Name     string     `json:"name" yaml:"name"`
	Type     string     `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
	Default  core.Value `json:"default" yaml:"default"`
	Key      string     `json:"key,omitempty" yaml:"key,omitempty"`
}

// IndexInfo is an index as reported by the catalog.
type IndexInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique" yaml:"unique"`
	Type    string   `json:"type" yaml:"type"`
}

// Manager performs DDL against one connection.
type Manager struct {
	conn   adapter.Connection
	logger *slog.Logger

	metaTable       string
	migrationsTable string
	gooseTable      string

	mu         sync.Mutex
	migrations []Migration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetaTable sets the table holding the schema version.
func WithMetaTable(name string) Option {
	return func(m *Manager) { m.metaTable = name }
}

// WithMigrationsTable sets the migration ledger table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) { m.migrationsTable = name }
}

// WithGooseTable sets the version table used for file migrations.
func WithGooseTable(name string) Option {
	return func(m *Manager) { m.gooseTable = name }
}

// NewManager creates a schema manager for conn.
func NewManager(conn adapter.Connection, opts ...Option) *Manager {
	m := &Manager{
		conn:            conn,
		metaTable:       DefaultMetaTable,
		migrationsTable: DefaultMigrationsTable,
		gooseTable:      DefaultGooseTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

func (m *Manager) dialect() *dialect.Dialect {
	return m.conn.Dialect()
}

// table returns the physical, quoted name of a logical table.
func (m *Manager) table(name string) string {
	return m.dialect().Quote(m.conn.QualifyTable(name))
}

// exec runs a DDL statement, wrapping failures in a SchemaError.
func (m *Manager) exec(ctx context.Context, op, table, column, constraint, sql string) error {
	m.logger.Debug("executing ddl", slog.String("op", op), slog.String("table", table), slog.String("sql", sql))
	if _, err := m.conn.Exec(ctx, sql); err != nil {
		return &core.SchemaError{Op: op, Table: table, Column: column, Constraint: constraint, Err: err}
	}
	return nil
}

// count runs a catalog query returning a single "cnt" column.
func (m *Manager) count(ctx context.Context, op, table, query string, args ...any) (bool, error) {
	if query == "" {
		return false, &core.SchemaError{Op: op, Table: table, Err: core.ErrUnsupported}
	}
	rows, err := m.conn.Query(ctx, query, args...)
	if err != nil {
		return false, &core.SchemaError{Op: op, Table: table, Err: err}
	}
	if len(rows) == 0 {
		return false, nil
	}
	n, _ := rows[0].Value("cnt").Int64()
	return n > 0, nil
}

// TableExists reports whether the table exists.
func (m *Manager) TableExists(ctx context.Context, table string) (bool, error) {
	return m.count(ctx, "table exists", table, m.dialect().Catalog.TableExists, m.conn.QualifyTable(table))
}

// ColumnExists reports whether the table has the column.
func (m *Manager) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return m.count(ctx, "column exists", table, m.dialect().Catalog.ColumnExists, m.conn.QualifyTable(table), column)
}

// IndexExists reports whether the table has the named index.
func (m *Manager) IndexExists(ctx context.Context, table, index string) (bool, error) {
	return m.count(ctx, "index exists", table, m.dialect().Catalog.IndexExists, m.conn.QualifyTable(table), index)
}

// ForeignKeyExists reports whether the table has the named foreign key.
func (m *Manager) ForeignKeyExists(ctx context.Context, table, name string) (bool, error) {
	return m.count(ctx, "foreign key exists", table, m.dialect().Catalog.ForeignKeyExists, m.conn.QualifyTable(table), name)
}

// GetTables lists the physical tables of the current schema.
func (m *Manager) GetTables(ctx context.Context) ([]string, error) {
	rows, err := m.conn.Query(ctx, m.dialect().Catalog.Tables)
	if err != nil {
		return nil, &core.SchemaError{Op: "get tables", Err: err}
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value("name").Text())
	}
	return out, nil
}

// GetColumns describes the columns of a table in ordinal order.
func (m *Manager) GetColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := m.conn.Query(ctx, m.dialect().Catalog.Columns, m.conn.QualifyTable(table))
	if err != nil {
		return nil, &core.SchemaError{Op: "get columns", Table: table, Err: err}
	}
	out := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, ColumnInfo{
			Name:     r.Value("name").Text(),
			Type:     r.Value("type").Text(),
			Nullable: strings.EqualFold(r.Value("nullable").Text(), "YES"),
			Default:  r.Value("default_value"),
			Key:      r.Value("key_role").Text(),
		})
	}
	return out, nil
}

// GetIndexes describes the indexes of a table, grouping index columns.
func (m *Manager) GetIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	rows, err := m.conn.Query(ctx, m.dialect().Catalog.Indexes, m.conn.QualifyTable(table))
	if err != nil {
		return nil, &core.SchemaError{Op: "get indexes", Table: table, Err: err}
	}
	var out []IndexInfo
	pos := map[string]int{}
	for _, r := range rows {
		name := r.Value("name").Text()
		i, ok := pos[name]
		if !ok {
			nonUnique, _ := r.Value("non_unique").Int64()
			out = append(out, IndexInfo{Name: name, Unique: nonUnique == 0, Type: r.Value("index_type").Text()})
			i = len(out) - 1
			pos[name] = i
		}
		out[i].Columns = append(out[i].Columns, r.Value("column_name").Text())
	}
	return out, nil
}

var (
	unsafeType  = regexp.MustCompile(`;|--|/\*|\*/`)
	optionValue = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	fkActions   = map[string]bool{"CASCADE": true, "SET NULL": true, "SET DEFAULT": true, "RESTRICT": true, "NO ACTION": true}
	indexTypes  = map[string]bool{"index": true, "unique": true, "fulltext": true, "spatial": true}
	nonIdent    = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

func validateType(t string) error {
	if strings.TrimSpace(t) == "" {
		return fmt.Errorf("column type is required")
	}
	if unsafeType.MatchString(t) {
		return fmt.Errorf("invalid column type %q", t)
	}
	return nil
}

func normalizeAction(a string) (string, error) {
	a = strings.Join(strings.Fields(strings.ToUpper(a)), " ")
	if a == "" {
		return "", nil
	}
	if !fkActions[a] {
		return "", fmt.Errorf("invalid referential action %q", a)
	}
	return a, nil
}

// sanitizeName reduces a generated identifier to [A-Za-z0-9_].
func sanitizeName(s string) string {
	return nonIdent.ReplaceAllString(s, "_")
}
