// Package query provides the fluent statement builder.
//
// A Builder accumulates statement state and compiles it into SQL
// text plus an ordered binding list for the Connection's dialect. Values are
// always bound; the only way to place text into a statement verbatim is
// core.Raw (or the *Raw methods, whose own bindings are still bound).
package query

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

type statementKind int

const (
	kindSelect statementKind = iota
	kindInsert
	kindInsertBatch
	kindUpsert
	kindUpdate
	kindDelete
	kindTruncate
)

func (k statementKind) String() string {
	switch k {
	case kindInsert:
		return "insert"
	case kindInsertBatch:
		return "insert batch"
	case kindUpsert:
		return "upsert"
	case kindUpdate:
		return "update"
	case kindDelete:
		return "delete"
	case kindTruncate:
		return "truncate"
	default:
		return "select"
	}
}

var operators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true, "IS": true, "IS NOT": true,
}

type selectItem struct {
	expr string
	raw  bool
}

type joinClause struct {
	kind  string
	table string
	alias string
	left  string
	op    string
	right string
}

type conditionKind int

const (
	condBasic conditionKind = iota
	condIn
	condNull
	condBetween
	condRaw
	condGroup
	condSubquery
	condInSubquery
	condExists
)

type condition struct {
	kind     conditionKind
	boolean  string // AND or OR
	negate   bool
	column   string
	op       string
	value    core.Value
	values   []core.Value
	sql      string
	bindings []core.Value
	nested   []condition
	sub      *Builder
}

type orderClause struct {
	column    string
	direction string
	raw       bool
}

// Builder accumulates one statement. It is not safe for concurrent use.
type Builder struct {
	conn   adapter.Connection
	logger *slog.Logger

	kind     statementKind
	columns  []selectItem
	distinct bool
	table    string
	alias    string
	joins    []joinClause
	wheres   []condition
	groups   []string
	havings  []condition
	orders   []orderClause
	limit    int
	offset   int

	values      map[string]any
	batch       []map[string]any
	onDuplicate map[string]any
	conflict    []string

	err error
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// New returns an empty builder bound to conn.
func New(conn adapter.Connection, opts ...Option) *Builder {
	b := &Builder{conn: conn, limit: -1, offset: -1}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	return b
}

// Table is shorthand for New(conn).From(table).
func Table(conn adapter.Connection, table string, opts ...Option) *Builder {
	return New(conn, opts...).From(table)
}

// Sub returns an empty builder sharing this builder's connection, for use
// as a subquery.
func (b *Builder) Sub() *Builder {
	return New(b.conn, WithLogger(b.logger))
}

func (b *Builder) dialect() *dialect.Dialect {
	return b.conn.Dialect()
}

func (b *Builder) fail(format string, args ...any) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return b
}

// Select replaces the select list. Entries may be qualified ("u.name"),
// aliased ("name AS n") or "*".
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = b.columns[:0]
	return b.AddSelect(columns...)
}

// AddSelect appends to the select list.
func (b *Builder) AddSelect(columns ...string) *Builder {
	for _, c := range columns {
		b.columns = append(b.columns, selectItem{expr: c})
	}
	return b
}

// SelectRaw appends a verbatim expression, optionally aliased.
func (b *Builder) SelectRaw(expr core.Raw, alias ...string) *Builder {
	item := string(expr)
	if len(alias) > 0 && alias[0] != "" {
		item += " AS " + b.dialect().QuoteName(alias[0])
	}
	b.columns = append(b.columns, selectItem{expr: item, raw: true})
	return b
}

// Distinct makes the select DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// From sets the source table. The name is qualified by the connection.
func (b *Builder) From(table string, alias ...string) *Builder {
	b.table = table
	b.alias = ""
	if len(alias) > 0 {
		b.alias = alias[0]
	}
	return b
}

// Join adds an INNER JOIN on left op right.
func (b *Builder) Join(table, left, op, right string, alias ...string) *Builder {
	return b.addJoin("INNER JOIN", table, left, op, right, alias)
}

// LeftJoin adds a LEFT JOIN on left op right.
func (b *Builder) LeftJoin(table, left, op, right string, alias ...string) *Builder {
	return b.addJoin("LEFT JOIN", table, left, op, right, alias)
}

// RightJoin adds a RIGHT JOIN on left op right.
func (b *Builder) RightJoin(table, left, op, right string, alias ...string) *Builder {
	return b.addJoin("RIGHT JOIN", table, left, op, right, alias)
}

func (b *Builder) addJoin(kind, table, left, op, right string, alias []string) *Builder {
	op, ok := normalizeOperator(op)
	if !ok {
		return b.fail("invalid join operator %q", op)
	}
	j := joinClause{kind: kind, table: table, left: left, op: op, right: right}
	if len(alias) > 0 {
		j.alias = alias[0]
	}
	b.joins = append(b.joins, j)
	return b
}

// Where adds an AND predicate. A nil value emits a literal NULL; use
// WhereNull for IS NULL semantics. A *Builder value becomes a subquery and
// a slice value with IN/NOT IN becomes a list.
func (b *Builder) Where(column, op string, value any) *Builder {
	return b.where("AND", column, op, value)
}

// OrWhere adds an OR predicate.
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	return b.where("OR", column, op, value)
}

func (b *Builder) where(boolean, column, op string, value any) *Builder {
	normalized, ok := normalizeOperator(op)
	if !ok {
		return b.fail("invalid operator %q", op)
	}
	if sub, ok := value.(*Builder); ok {
		if normalized == "IN" || normalized == "NOT IN" {
			return b.whereInSub(boolean, column, sub, normalized == "NOT IN")
		}
		b.wheres = append(b.wheres, condition{kind: condSubquery, boolean: boolean, column: column, op: normalized, sub: sub})
		return b
	}
	if normalized == "IN" || normalized == "NOT IN" {
		return b.whereIn(boolean, column, value, normalized == "NOT IN")
	}
	b.wheres = append(b.wheres, condition{kind: condBasic, boolean: boolean, column: column, op: normalized, value: core.ValueOf(value)})
	return b
}

// WhereIn adds column IN (values). values is a slice or a *Builder.
// An empty list never matches.
func (b *Builder) WhereIn(column string, values any) *Builder {
	return b.whereIn("AND", column, values, false)
}

// WhereNotIn adds column NOT IN (values). An empty list always matches.
func (b *Builder) WhereNotIn(column string, values any) *Builder {
	return b.whereIn("AND", column, values, true)
}

// OrWhereIn adds an OR column IN (values).
func (b *Builder) OrWhereIn(column string, values any) *Builder {
	return b.whereIn("OR", column, values, false)
}

func (b *Builder) whereIn(boolean, column string, values any, negate bool) *Builder {
	if sub, ok := values.(*Builder); ok {
		return b.whereInSub(boolean, column, sub, negate)
	}
	list, err := toValues(values)
	if err != nil {
		return b.fail("where in %s: %w", column, err)
	}
	b.wheres = append(b.wheres, condition{kind: condIn, boolean: boolean, column: column, values: list, negate: negate})
	return b
}

func (b *Builder) whereInSub(boolean, column string, sub *Builder, negate bool) *Builder {
	b.wheres = append(b.wheres, condition{kind: condInSubquery, boolean: boolean, column: column, sub: sub, negate: negate})
	return b
}

// WhereNull adds column IS NULL.
func (b *Builder) WhereNull(column string) *Builder {
	b.wheres = append(b.wheres, condition{kind: condNull, boolean: "AND", column: column})
	return b
}

// WhereNotNull adds column IS NOT NULL.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, condition{kind: condNull, boolean: "AND", column: column, negate: true})
	return b
}

// OrWhereNull adds OR column IS NULL.
func (b *Builder) OrWhereNull(column string) *Builder {
	b.wheres = append(b.wheres, condition{kind: condNull, boolean: "OR", column: column})
	return b
}

// WhereBetween adds column BETWEEN low AND high.
func (b *Builder) WhereBetween(column string, low, high any) *Builder {
	b.wheres = append(b.wheres, condition{
		kind:    condBetween,
		boolean: "AND",
		column:  column,
		values:  []core.Value{core.ValueOf(low), core.ValueOf(high)},
	})
	return b
}

// WhereNotBetween adds column NOT BETWEEN low AND high.
func (b *Builder) WhereNotBetween(column string, low, high any) *Builder {
	b.wheres = append(b.wheres, condition{
		kind:    condBetween,
		boolean: "AND",
		column:  column,
		negate:  true,
		values:  []core.Value{core.ValueOf(low), core.ValueOf(high)},
	})
	return b
}

// WhereLike adds column LIKE pattern.
func (b *Builder) WhereLike(column, pattern string) *Builder {
	return b.where("AND", column, "LIKE", pattern)
}

// WhereRaw adds a verbatim predicate. Each ? in sql is a placeholder for
// the next binding.
func (b *Builder) WhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw("AND", sql, bindings)
}

// OrWhereRaw adds a verbatim OR predicate.
func (b *Builder) OrWhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw("OR", sql, bindings)
}

func (b *Builder) whereRaw(boolean, sql string, bindings []any) *Builder {
	b.wheres = append(b.wheres, condition{kind: condRaw, boolean: boolean, sql: sql, bindings: valuesOf(bindings)})
	return b
}

// WhereGroup adds a parenthesized AND group built by fn.
func (b *Builder) WhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup("AND", fn)
}

// OrWhereGroup adds a parenthesized OR group built by fn.
func (b *Builder) OrWhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup("OR", fn)
}

func (b *Builder) whereGroup(boolean string, fn func(*Builder)) *Builder {
	g := b.Sub()
	fn(g)
	if g.err != nil {
		return b.fail("%w", g.err)
	}
	if len(g.wheres) > 0 {
		b.wheres = append(b.wheres, condition{kind: condGroup, boolean: boolean, nested: g.wheres})
	}
	return b
}

// WhereSubquery adds column op (subquery).
func (b *Builder) WhereSubquery(column, op string, sub *Builder) *Builder {
	return b.where("AND", column, op, sub)
}

// WhereExists adds EXISTS (subquery).
func (b *Builder) WhereExists(sub *Builder) *Builder {
	b.wheres = append(b.wheres, condition{kind: condExists, boolean: "AND", sub: sub})
	return b
}

// WhereNotExists adds NOT EXISTS (subquery).
func (b *Builder) WhereNotExists(sub *Builder) *Builder {
	b.wheres = append(b.wheres, condition{kind: condExists, boolean: "AND", sub: sub, negate: true})
	return b
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groups = append(b.groups, columns...)
	return b
}

// Having adds an AND HAVING predicate.
func (b *Builder) Having(column, op string, value any) *Builder {
	normalized, ok := normalizeOperator(op)
	if !ok {
		return b.fail("invalid operator %q", op)
	}
	b.havings = append(b.havings, condition{kind: condBasic, boolean: "AND", column: column, op: normalized, value: core.ValueOf(value)})
	return b
}

// HavingRaw adds a verbatim HAVING predicate.
func (b *Builder) HavingRaw(sql string, bindings ...any) *Builder {
	b.havings = append(b.havings, condition{kind: condRaw, boolean: "AND", sql: sql, bindings: valuesOf(bindings)})
	return b
}

// OrderBy appends an ORDER BY column. direction is ASC or DESC; empty means ASC.
func (b *Builder) OrderBy(column, direction string) *Builder {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "ASC"
	}
	if dir != "ASC" && dir != "DESC" {
		return b.fail("invalid order direction %q", direction)
	}
	b.orders = append(b.orders, orderClause{column: column, direction: dir})
	return b
}

// OrderByRaw appends a verbatim ORDER BY expression.
func (b *Builder) OrderByRaw(expr core.Raw) *Builder {
	b.orders = append(b.orders, orderClause{column: string(expr), raw: true})
	return b
}

// Limit sets the row limit. A negative n clears it.
func (b *Builder) Limit(n int) *Builder {
	b.limit = max(n, -1)
	return b
}

// Offset sets the row offset. A negative n clears it.
func (b *Builder) Offset(n int) *Builder {
	b.offset = max(n, -1)
	return b
}

// Paginate sets limit and offset for a 1-based page. Both arguments are
// floored at 1.
func (b *Builder) Paginate(page, perPage int) *Builder {
	page = max(page, 1)
	perPage = max(perPage, 1)
	b.limit = perPage
	b.offset = (page - 1) * perPage
	return b
}

// LimitOffset returns the current limit and offset; -1 means unset.
func (b *Builder) LimitOffset() (limit, offset int) {
	return b.limit, b.offset
}

// OnConflict sets the conflict target used by Upsert on dialects that
// support ON CONFLICT.
func (b *Builder) OnConflict(columns ...string) *Builder {
	b.conflict = append([]string(nil), columns...)
	return b
}

// Excluded returns the raw reference to the value an upsert tried to insert
// into column, for use in Upsert's update map.
func (b *Builder) Excluded(column string) core.Raw {
	return b.dialect().Excluded(column)
}

// Clone returns an independent copy. Subquery builders are shared.
func (b *Builder) Clone() *Builder {
	c := *b
	c.columns = slices.Clone(b.columns)
	c.joins = slices.Clone(b.joins)
	c.wheres = slices.Clone(b.wheres)
	c.groups = slices.Clone(b.groups)
	c.havings = slices.Clone(b.havings)
	c.orders = slices.Clone(b.orders)
	c.conflict = slices.Clone(b.conflict)
	c.batch = slices.Clone(b.batch)
	c.values = cloneMap(b.values)
	c.onDuplicate = cloneMap(b.onDuplicate)
	return &c
}

// Reset clears all state except the connection and logger.
func (b *Builder) Reset() *Builder {
	*b = Builder{conn: b.conn, logger: b.logger, limit: -1, offset: -1}
	return b
}

// setKind switches the statement type and drops payloads of other types.
func (b *Builder) setKind(k statementKind) {
	b.kind = k
	b.values = nil
	b.batch = nil
	b.onDuplicate = nil
}

func normalizeOperator(op string) (string, bool) {
	n := strings.Join(strings.Fields(strings.ToUpper(op)), " ")
	return n, operators[n]
}

func valuesOf(in []any) []core.Value {
	out := make([]core.Value, len(in))
	for i, v := range in {
		out[i] = core.ValueOf(v)
	}
	return out
}

func toValues(v any) ([]core.Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return valuesOf(x), nil
	case []core.Value:
		return x, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]core.Value, rv.Len())
	for i := range out {
		out[i] = core.ValueOf(rv.Index(i).Interface())
	}
	return out, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
