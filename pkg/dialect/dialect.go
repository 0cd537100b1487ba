// Package dialect provides SQL dialect descriptors used for statement generation.
//
// A Dialect is pure data plus a few formatting helpers: identifier quoting,
// placeholder formatting, upsert syntax, and the catalog queries that back
// schema introspection. Built-in dialects (mysql, postgres, sqlite, duckdb)
// register themselves in init(); adapters look them up by name.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/core"
)

// UpsertStyle selects the conflict clause emitted for upserts.
type UpsertStyle int

const (
	// UpsertOnDuplicateKey emits INSERT ... ON DUPLICATE KEY UPDATE (MySQL).
	UpsertOnDuplicateKey UpsertStyle = iota
	// UpsertOnConflict emits INSERT ... ON CONFLICT (...) DO UPDATE SET (Postgres, SQLite, DuckDB).
	UpsertOnConflict
)

// ModifyStyle selects how an existing column definition is changed.
type ModifyStyle int

const (
	// ModifyUnsupported means the engine cannot change a column in place.
	ModifyUnsupported ModifyStyle = iota
	// ModifyColumnClause emits ALTER TABLE t MODIFY COLUMN <definition>.
	ModifyColumnClause
	// ModifyAlterColumn emits ALTER TABLE t ALTER COLUMN c TYPE ..., SET/DROP NOT NULL, SET/DROP DEFAULT.
	ModifyAlterColumn
)

// Catalog holds the introspection queries of a dialect.
// Every query takes the table name as its first parameter (except Tables)
// and the object name as its second. Existence queries return a single
// "cnt" column; listing queries use the aliases documented per field.
type Catalog struct {
	TableExists      string
	ColumnExists     string
	IndexExists      string
	ForeignKeyExists string

	// Tables returns a "name" column.
	Tables string
	// Columns returns name, type, nullable (YES/NO), default_value, key_role.
	Columns string
	// Indexes returns name, column_name, non_unique (0/1), index_type; one row per indexed column.
	Indexes string
}

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name          string
	Identifiers   core.IdentifierConfig
	Placeholder   core.PlaceholderStyle
	DefaultSchema string

	// Upsert
	Upsert               UpsertStyle
	UpsertRequiresTarget bool
	ExcludedFormat       string // fmt pattern receiving the quoted column

	// Statement forms
	OffsetOnlyLimit string // LIMIT value emitted when only OFFSET is set; empty allows bare OFFSET
	TruncateFormat  string // fmt pattern receiving the quoted table

	// DDL capabilities
	AutoIncrement         string // column attribute, empty when unsupported
	SupportsTableOptions  bool   // ENGINE, ROW_FORMAT, CHARSET, COLLATE
	SupportsAfterColumn   bool   // ADD COLUMN ... AFTER c
	SupportsAddForeignKey bool   // ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY
	SupportsCheck         bool   // ALTER TABLE ... ADD CONSTRAINT ... CHECK
	Modify                ModifyStyle
	DropForeignKeyFormat  string // fmt pattern receiving quoted table and constraint; empty when unsupported
	DropIndexOnTable      bool   // DROP INDEX i ON t
	IndexTypes            []string
	DisableForeignKeys    string
	EnableForeignKeys     string
	DropCascade           bool

	// Transactions
	Isolation map[string]string // normalized level -> statement

	// GooseDialect is the dialect name understood by goose.SetDialect.
	GooseDialect string

	Catalog Catalog
}

// FormatPlaceholder returns the placeholder for the 1-based parameter index n.
func (d *Dialect) FormatPlaceholder(n int) string {
	return d.Placeholder.Format(n)
}

// QuoteName quotes a single identifier segment, doubling embedded quote characters.
func (d *Dialect) QuoteName(name string) string {
	q, end, esc := d.Identifiers.Quote, d.Identifiers.QuoteEnd, d.Identifiers.Escape
	if end == "" {
		end = q
	}
	if esc == "" {
		esc = end + end
	}
	return q + strings.ReplaceAll(name, end, esc) + end
}

// Quote quotes an identifier reference.
//
// Qualified references (table.column) are quoted segment by segment, a
// trailing "*" is left bare, and "expr AS alias" is split so both sides
// are quoted independently.
func (d *Dialect) Quote(ident string) string {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return ident
	}
	if expr, alias, ok := splitAlias(ident); ok {
		return d.Quote(expr) + " AS " + d.QuoteName(alias)
	}
	if ident == "*" {
		return ident
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" && i == len(parts)-1 {
			continue
		}
		parts[i] = d.QuoteName(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes each identifier and joins them with ", ".
func (d *Dialect) QuoteAll(idents []string) string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return strings.Join(out, ", ")
}

// Excluded returns the raw reference to the incoming value of column inside
// an upsert update clause.
func (d *Dialect) Excluded(column string) core.Raw {
	return core.Raw(fmt.Sprintf(d.ExcludedFormat, d.Quote(column)))
}

// Truncate returns the statement emptying the quoted table.
func (d *Dialect) Truncate(quotedTable string) string {
	return fmt.Sprintf(d.TruncateFormat, quotedTable)
}

// SupportsIndexType reports whether CREATE INDEX accepts the given type.
func (d *Dialect) SupportsIndexType(t string) bool {
	t = strings.ToLower(t)
	if t == "" || t == "index" || t == "unique" {
		return true
	}
	for _, it := range d.IndexTypes {
		if it == t {
			return true
		}
	}
	return false
}

// IsolationStatement returns the statement setting the session isolation level.
func (d *Dialect) IsolationStatement(level string) (string, error) {
	stmt, ok := d.Isolation[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		return "", fmt.Errorf("isolation level %q on %s: %w", level, d.Name, core.ErrUnsupported)
	}
	return stmt, nil
}

// Literal renders a DDL default value. DDL cannot carry bound parameters,
// so strings are single-quoted with embedded quotes doubled.
func Literal(v any) string {
	val := core.ValueOf(v)
	switch val.Kind() {
	case core.KindNull:
		return "NULL"
	case core.KindRaw:
		return val.Text()
	case core.KindBool:
		if b, _ := val.Int64(); b == 1 {
			return "1"
		}
		return "0"
	case core.KindInt:
		n, _ := val.Int64()
		return strconv.FormatInt(n, 10)
	case core.KindFloat:
		return val.Text()
	default:
		return "'" + strings.ReplaceAll(val.Text(), "'", "''") + "'"
	}
}

// splitAlias splits "expr AS alias" on the last case-insensitive " as ".
func splitAlias(ident string) (expr, alias string, ok bool) {
	lower := strings.ToLower(ident)
	i := strings.LastIndex(lower, " as ")
	if i <= 0 {
		return "", "", false
	}
	expr = strings.TrimSpace(ident[:i])
	alias = strings.TrimSpace(ident[i+4:])
	if expr == "" || alias == "" {
		return "", "", false
	}
	return expr, alias, true
}
