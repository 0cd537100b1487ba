package query

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/result"
)

// ToSQL compiles the current statement. Each call rebuilds the bindings,
// so repeated calls return identical output.
func (b *Builder) ToSQL() (string, []any, error) {
	sql, args, err := b.compile()
	if err != nil {
		return "", nil, b.queryError(sql, err)
	}
	return sql, args, nil
}

// Bindings returns the bindings of the current statement, or nil when it
// does not compile.
func (b *Builder) Bindings() []any {
	_, args, err := b.compile()
	if err != nil {
		return nil
	}
	return args
}

func (b *Builder) queryError(sql string, err error) error {
	var qe *core.QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &core.QueryError{Op: b.kind.String(), Table: b.table, SQL: sql, Err: err}
}

// Execute runs the current statement: selects return rows, writes return
// their outcome.
func (b *Builder) Execute(ctx context.Context) (*result.ResultSet, error) {
	sql, args, err := b.ToSQL()
	if err != nil {
		return result.Failed(err), err
	}

	if b.kind == kindSelect {
		rows, err := b.conn.Query(ctx, sql, args...)
		if err != nil {
			err = b.queryError(sql, err)
			return result.Failed(err), err
		}
		return result.FromRows(rows), nil
	}

	res, err := b.conn.Exec(ctx, sql, args...)
	if err != nil {
		err = b.queryError(sql, err)
		b.logger.Debug("statement failed", slog.String("op", b.kind.String()), slog.String("error", err.Error()))
		return result.Failed(err), err
	}
	return result.Write(res.RowsAffected, res.LastInsertID), nil
}

// Get runs the statement as a SELECT.
func (b *Builder) Get(ctx context.Context) (*result.ResultSet, error) {
	b.setKind(kindSelect)
	return b.Execute(ctx)
}

// First returns the first matching row, or core.ErrNotFound.
// It forces LIMIT 1 on the builder.
func (b *Builder) First(ctx context.Context) (core.Row, error) {
	b.Limit(1)
	rs, err := b.Get(ctx)
	if err != nil {
		return core.Row{}, err
	}
	return rs.FirstOrFail()
}

// Value returns column from the first matching row, or NULL when no row
// matches.
func (b *Builder) Value(ctx context.Context, column string) (core.Value, error) {
	saved := b.columns
	b.columns = []selectItem{{expr: column}}
	defer func() { b.columns = saved }()

	row, err := b.First(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return core.Null(), nil
	}
	if err != nil {
		return core.Null(), err
	}
	return row.Value(lastSegment(column)), nil
}

// Pluck returns one column of every matching row.
func (b *Builder) Pluck(ctx context.Context, column string) ([]core.Value, error) {
	saved := b.columns
	b.columns = []selectItem{{expr: column}}
	defer func() { b.columns = saved }()

	rs, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return rs.Pluck(lastSegment(column)), nil
}

// Count returns COUNT(*) or COUNT(column) over the matching rows.
func (b *Builder) Count(ctx context.Context, column ...string) (int64, error) {
	target := "*"
	if len(column) > 0 && column[0] != "" && column[0] != "*" {
		target = b.dialect().Quote(column[0])
		if b.distinct {
			target = "DISTINCT " + target
		}
	}
	v, err := b.aggregate(ctx, "COUNT("+target+")")
	if err != nil {
		return 0, err
	}
	n, _ := v.Int64()
	return n, nil
}

// Sum returns SUM(column).
func (b *Builder) Sum(ctx context.Context, column string) (core.Value, error) {
	return b.aggregate(ctx, "SUM("+b.dialect().Quote(column)+")")
}

// Avg returns AVG(column).
func (b *Builder) Avg(ctx context.Context, column string) (core.Value, error) {
	return b.aggregate(ctx, "AVG("+b.dialect().Quote(column)+")")
}

// Min returns MIN(column).
func (b *Builder) Min(ctx context.Context, column string) (core.Value, error) {
	return b.aggregate(ctx, "MIN("+b.dialect().Quote(column)+")")
}

// Max returns MAX(column).
func (b *Builder) Max(ctx context.Context, column string) (core.Value, error) {
	return b.aggregate(ctx, "MAX("+b.dialect().Quote(column)+")")
}

// Exists reports whether any row matches.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	return n > 0, err
}

// aggregate swaps the select list for expr, runs the query and restores
// the prior select state. Limit and offset are cleared for the run so an
// aggregate over a paginated builder covers every matching row.
func (b *Builder) aggregate(ctx context.Context, expr string) (core.Value, error) {
	savedColumns, savedOrders, savedDistinct := b.columns, b.orders, b.distinct
	savedLimit, savedOffset := b.limit, b.offset
	b.columns = []selectItem{{expr: expr + " AS " + b.dialect().QuoteName("aggregate"), raw: true}}
	b.orders = nil
	b.distinct = false
	b.limit, b.offset = -1, -1
	defer func() {
		b.columns, b.orders, b.distinct = savedColumns, savedOrders, savedDistinct
		b.limit, b.offset = savedLimit, savedOffset
	}()

	rs, err := b.Get(ctx)
	if err != nil {
		return core.Null(), err
	}
	return rs.Value("aggregate", nil), nil
}

// Insert inserts one row. Columns are taken in sorted key order.
func (b *Builder) Insert(ctx context.Context, values map[string]any) (*result.ResultSet, error) {
	b.setKind(kindInsert)
	b.values = values
	return b.Execute(ctx)
}

// InsertBatch inserts rows with one multi-row statement. Columns come from
// the first row; keys missing from later rows insert NULL, and a later row
// with a column the first row lacks is a QueryError. An empty batch is a
// successful no-op.
func (b *Builder) InsertBatch(ctx context.Context, rows []map[string]any) (*result.ResultSet, error) {
	b.setKind(kindInsertBatch)
	if len(rows) == 0 {
		return result.New(nil), nil
	}
	b.batch = rows
	return b.Execute(ctx)
}

// Upsert inserts values and, on a uniqueness conflict, applies onDuplicate.
// core.Raw values in onDuplicate are emitted verbatim (see Excluded). An
// empty onDuplicate updates every inserted column with its incoming value.
func (b *Builder) Upsert(ctx context.Context, values, onDuplicate map[string]any) (*result.ResultSet, error) {
	b.setKind(kindUpsert)
	b.values = values
	b.onDuplicate = onDuplicate
	return b.Execute(ctx)
}

// Update sets values on the matching rows.
func (b *Builder) Update(ctx context.Context, values map[string]any) (*result.ResultSet, error) {
	b.setKind(kindUpdate)
	b.values = values
	return b.Execute(ctx)
}

// Increment adds amount to column on the matching rows.
func (b *Builder) Increment(ctx context.Context, column string, amount float64) (*result.ResultSet, error) {
	return b.Update(ctx, map[string]any{column: b.arithmetic(column, "+", amount)})
}

// Decrement subtracts amount from column on the matching rows.
func (b *Builder) Decrement(ctx context.Context, column string, amount float64) (*result.ResultSet, error) {
	return b.Update(ctx, map[string]any{column: b.arithmetic(column, "-", amount)})
}

func (b *Builder) arithmetic(column, op string, amount float64) core.Raw {
	return core.Raw(b.dialect().Quote(column) + " " + op + " " + strconv.FormatFloat(amount, 'f', -1, 64))
}

// Delete removes the matching rows.
func (b *Builder) Delete(ctx context.Context) (*result.ResultSet, error) {
	b.setKind(kindDelete)
	return b.Execute(ctx)
}

// Truncate removes every row of the table.
func (b *Builder) Truncate(ctx context.Context) (*result.ResultSet, error) {
	b.setKind(kindTruncate)
	return b.Execute(ctx)
}

// lastSegment returns the name a column is reported under: the alias when
// present, otherwise the part after the last dot.
func lastSegment(column string) string {
	if i := strings.LastIndex(strings.ToLower(column), " as "); i >= 0 {
		return strings.TrimSpace(column[i+4:])
	}
	if i := strings.LastIndex(column, "."); i >= 0 {
		return column[i+1:]
	}
	return strings.TrimSpace(column)
}
