package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// compiler writes one statement. Nested builders compile into the same
// compiler so placeholder numbering and binding order follow token order.
type compiler struct {
	d    *dialect.Dialect
	sb   strings.Builder
	args []any
}

func newCompiler(d *dialect.Dialect) *compiler {
	return &compiler{d: d}
}

func (c *compiler) write(parts ...string) {
	for _, p := range parts {
		c.sb.WriteString(p)
	}
}

// bind emits v. NULL becomes a literal and raw text is emitted verbatim;
// everything else is bound.
func (c *compiler) bind(v core.Value) string {
	switch {
	case v.IsNull():
		return "NULL"
	case v.IsRaw():
		return v.Text()
	}
	c.args = append(c.args, v.Any())
	return c.d.FormatPlaceholder(len(c.args))
}

// bindRaw rewrites each ? outside string literals in sql to the next
// placeholder. Every binding is bound, NULL included, so the caller's
// placeholders line up.
func (c *compiler) bindRaw(sql string, bindings []core.Value) error {
	next := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			c.sb.WriteByte(ch)
		case ch == '?' && !inQuote:
			if next >= len(bindings) {
				return fmt.Errorf("raw expression %q has more placeholders than bindings", sql)
			}
			c.args = append(c.args, bindings[next].Any())
			c.write(c.d.FormatPlaceholder(len(c.args)))
			next++
		default:
			c.sb.WriteByte(ch)
		}
	}
	if next != len(bindings) {
		return fmt.Errorf("raw expression %q has %d placeholders for %d bindings", sql, next, len(bindings))
	}
	return nil
}

func (c *compiler) String() string { return c.sb.String() }

func (b *Builder) compile() (string, []any, error) {
	c := newCompiler(b.dialect())
	if err := b.compileInto(c); err != nil {
		return "", nil, err
	}
	return c.String(), c.args, nil
}

func (b *Builder) compileInto(c *compiler) error {
	if b.err != nil {
		return b.err
	}
	if b.table == "" {
		return core.ErrNoTable
	}
	switch b.kind {
	case kindInsert:
		return b.compileInsert(c, []map[string]any{b.values}, nil)
	case kindInsertBatch:
		return b.compileInsert(c, b.batch, nil)
	case kindUpsert:
		return b.compileInsert(c, []map[string]any{b.values}, b.onDuplicate)
	case kindUpdate:
		return b.compileUpdate(c)
	case kindDelete:
		return b.compileDelete(c)
	case kindTruncate:
		c.write(c.d.Truncate(b.quotedTable()))
		return nil
	default:
		return b.compileSelect(c)
	}
}

func (b *Builder) quotedTable() string {
	return b.dialect().Quote(b.conn.QualifyTable(b.table))
}

func (b *Builder) compileSelect(c *compiler) error {
	c.write("SELECT ")
	if b.distinct {
		c.write("DISTINCT ")
	}
	if len(b.columns) == 0 {
		c.write("*")
	}
	for i, col := range b.columns {
		if i > 0 {
			c.write(", ")
		}
		if col.raw {
			c.write(col.expr)
		} else {
			c.write(c.d.Quote(col.expr))
		}
	}

	c.write(" FROM ", b.quotedTable())
	if b.alias != "" {
		c.write(" AS ", c.d.QuoteName(b.alias))
	}

	for _, j := range b.joins {
		c.write(" ", j.kind, " ", c.d.Quote(b.conn.QualifyTable(j.table)))
		if j.alias != "" {
			c.write(" AS ", c.d.QuoteName(j.alias))
		}
		c.write(" ON ", c.d.Quote(j.left), " ", j.op, " ", c.d.Quote(j.right))
	}

	if err := b.compileWhere(c); err != nil {
		return err
	}

	if len(b.groups) > 0 {
		c.write(" GROUP BY ", c.d.QuoteAll(b.groups))
	}

	if len(b.havings) > 0 {
		c.write(" HAVING ")
		if err := c.conditions(b.havings); err != nil {
			return err
		}
	}

	if len(b.orders) > 0 {
		c.write(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				c.write(", ")
			}
			if o.raw {
				c.write(o.column)
				continue
			}
			c.write(c.d.Quote(o.column), " ", o.direction)
		}
	}

	switch {
	case b.limit >= 0:
		c.write(" LIMIT ", strconv.Itoa(b.limit))
		if b.offset > 0 {
			c.write(" OFFSET ", strconv.Itoa(b.offset))
		}
	case b.offset > 0:
		if c.d.OffsetOnlyLimit != "" {
			c.write(" LIMIT ", c.d.OffsetOnlyLimit)
		}
		c.write(" OFFSET ", strconv.Itoa(b.offset))
	}
	return nil
}

func (b *Builder) compileWhere(c *compiler) error {
	if len(b.wheres) == 0 {
		return nil
	}
	c.write(" WHERE ")
	return c.conditions(b.wheres)
}

func (c *compiler) conditions(conds []condition) error {
	for i, cond := range conds {
		if i > 0 {
			c.write(" ", cond.boolean, " ")
		}
		if err := c.condition(cond); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) condition(cond condition) error {
	switch cond.kind {
	case condBasic:
		c.write(c.d.Quote(cond.column), " ", cond.op, " ", c.bind(cond.value))
	case condIn:
		if len(cond.values) == 0 {
			if cond.negate {
				c.write("1 = 1")
			} else {
				c.write("1 = 0")
			}
			return nil
		}
		c.write(c.d.Quote(cond.column))
		if cond.negate {
			c.write(" NOT")
		}
		c.write(" IN (")
		for i, v := range cond.values {
			if i > 0 {
				c.write(", ")
			}
			c.write(c.bind(v))
		}
		c.write(")")
	case condNull:
		c.write(c.d.Quote(cond.column), " IS ")
		if cond.negate {
			c.write("NOT ")
		}
		c.write("NULL")
	case condBetween:
		c.write(c.d.Quote(cond.column))
		if cond.negate {
			c.write(" NOT")
		}
		c.write(" BETWEEN ", c.bind(cond.values[0]), " AND ", c.bind(cond.values[1]))
	case condRaw:
		return c.bindRaw(cond.sql, cond.bindings)
	case condGroup:
		c.write("(")
		if err := c.conditions(cond.nested); err != nil {
			return err
		}
		c.write(")")
	case condSubquery:
		c.write(c.d.Quote(cond.column), " ", cond.op, " ")
		return c.subquery(cond.sub)
	case condInSubquery:
		c.write(c.d.Quote(cond.column))
		if cond.negate {
			c.write(" NOT")
		}
		c.write(" IN ")
		return c.subquery(cond.sub)
	case condExists:
		if cond.negate {
			c.write("NOT ")
		}
		c.write("EXISTS ")
		return c.subquery(cond.sub)
	}
	return nil
}

func (c *compiler) subquery(sub *Builder) error {
	if sub == nil {
		return fmt.Errorf("nil subquery")
	}
	if sub.err != nil {
		return sub.err
	}
	if sub.table == "" {
		return core.ErrNoTable
	}
	c.write("(")
	if err := sub.compileSelect(c); err != nil {
		return err
	}
	c.write(")")
	return nil
}

// sortedKeys gives map payloads a deterministic column order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Builder) compileInsert(c *compiler, rows []map[string]any, onDuplicate map[string]any) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return core.ErrEmptyPayload
	}
	columns := sortedKeys(rows[0])
	for i, row := range rows[1:] {
		for col := range row {
			if _, ok := rows[0][col]; !ok {
				return fmt.Errorf("row %d has column %q missing from the first row", i+1, col)
			}
		}
	}

	c.write("INSERT INTO ", b.quotedTable(), " (", c.d.QuoteAll(columns), ") VALUES ")
	for i, row := range rows {
		if i > 0 {
			c.write(", ")
		}
		c.write("(")
		for j, col := range columns {
			if j > 0 {
				c.write(", ")
			}
			c.write(c.bind(core.ValueOf(row[col])))
		}
		c.write(")")
	}

	if b.kind != kindUpsert {
		return nil
	}

	updates := onDuplicate
	if len(updates) == 0 {
		updates = make(map[string]any, len(columns))
		for _, col := range columns {
			updates[col] = c.d.Excluded(col)
		}
	}

	switch c.d.Upsert {
	case dialect.UpsertOnDuplicateKey:
		c.write(" ON DUPLICATE KEY UPDATE ")
	default:
		if len(b.conflict) == 0 && c.d.UpsertRequiresTarget {
			return fmt.Errorf("%s upsert requires a conflict target (OnConflict)", c.d.Name)
		}
		c.write(" ON CONFLICT ")
		if len(b.conflict) > 0 {
			c.write("(", c.d.QuoteAll(b.conflict), ") ")
		}
		c.write("DO UPDATE SET ")
	}
	c.assignments(updates)
	return nil
}

func (c *compiler) assignments(values map[string]any) {
	for i, col := range sortedKeys(values) {
		if i > 0 {
			c.write(", ")
		}
		c.write(c.d.Quote(col), " = ", c.bind(core.ValueOf(values[col])))
	}
}

func (b *Builder) compileUpdate(c *compiler) error {
	if len(b.values) == 0 {
		return core.ErrEmptyPayload
	}
	c.write("UPDATE ", b.quotedTable(), " SET ")
	c.assignments(b.values)
	return b.compileWhere(c)
}

func (b *Builder) compileDelete(c *compiler) error {
	c.write("DELETE FROM ", b.quotedTable())
	return b.compileWhere(c)
}
