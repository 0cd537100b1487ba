// Package result provides ResultSet, the backend-agnostic view of what a
// statement produced: an immutable snapshot of ordered rows plus the
// outcome of writes.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/dbal/pkg/core"
)

// ResultSet is a snapshot of rows with a resettable read cursor.
// The zero value is an empty, successful result.
type ResultSet struct {
	rows     []core.Row
	cursor   int
	affected int64
	lastID   int64
	errMsg   string
}

// New normalizes a raw backend result. Accepted shapes are nil, core.Row,
// []core.Row, map[string]any, []map[string]any, structs and slices of
// either. Unsupported shapes yield an empty result recording the problem.
func New(raw any) *ResultSet {
	rows, err := normalize(raw)
	if err != nil {
		return &ResultSet{errMsg: err.Error()}
	}
	return &ResultSet{rows: rows}
}

// FromRows wraps rows that are already normalized.
func FromRows(rows []core.Row) *ResultSet {
	return &ResultSet{rows: rows}
}

// Write records the outcome of a statement that returned no rows.
func Write(affected, lastInsertID int64) *ResultSet {
	return &ResultSet{affected: affected, lastID: lastInsertID}
}

// Failed records an engine failure.
func Failed(err error) *ResultSet {
	rs := &ResultSet{}
	if err != nil {
		rs.errMsg = err.Error()
	}
	return rs
}

func normalize(raw any) ([]core.Row, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []core.Row:
		return v, nil
	case core.Row:
		return []core.Row{v}, nil
	case map[string]any:
		return []core.Row{core.RowFromMap(v)}, nil
	case []map[string]any:
		out := make([]core.Row, len(v))
		for i, m := range v {
			out[i] = core.RowFromMap(m)
		}
		return out, nil
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		row, err := structRow(rv.Interface())
		if err != nil {
			return nil, err
		}
		return []core.Row{row}, nil
	case reflect.Slice, reflect.Array:
		out := make([]core.Row, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			rows, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			out = append(out, rows...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported result type %T", raw)
	}
}

func structRow(v any) (core.Row, error) {
	m := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "db",
		Result:  &m,
	})
	if err != nil {
		return core.Row{}, err
	}
	if err := dec.Decode(v); err != nil {
		return core.Row{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return core.RowFromMap(m), nil
}

// Fetch returns the row at the cursor and advances it.
// ok is false once the cursor passes the last row.
func (r *ResultSet) Fetch() (core.Row, bool) {
	if r.cursor >= len(r.rows) {
		return core.Row{}, false
	}
	row := r.rows[r.cursor]
	r.cursor++
	return row, true
}

// FetchAll returns the rows from the cursor onwards and exhausts the cursor.
func (r *ResultSet) FetchAll() []core.Row {
	if r.cursor >= len(r.rows) {
		return []core.Row{}
	}
	out := make([]core.Row, len(r.rows)-r.cursor)
	copy(out, r.rows[r.cursor:])
	r.cursor = len(r.rows)
	return out
}

// All returns every row regardless of the cursor.
func (r *ResultSet) All() []core.Row {
	out := make([]core.Row, len(r.rows))
	copy(out, r.rows)
	return out
}

// Reset moves the cursor back to the first row.
func (r *ResultSet) Reset() { r.cursor = 0 }

// First returns the first row.
func (r *ResultSet) First() (core.Row, bool) {
	return r.Row(0)
}

// FirstOrFail returns the first row or core.ErrNotFound.
func (r *ResultSet) FirstOrFail() (core.Row, error) {
	row, ok := r.First()
	if !ok {
		return core.Row{}, core.ErrNotFound
	}
	return row, nil
}

// Last returns the last row.
func (r *ResultSet) Last() (core.Row, bool) {
	return r.Row(len(r.rows) - 1)
}

// Row returns the row at index.
func (r *ResultSet) Row(index int) (core.Row, bool) {
	if index < 0 || index >= len(r.rows) {
		return core.Row{}, false
	}
	return r.rows[index], true
}

// Value returns column from the first row, or def when there is no such row
// or column.
func (r *ResultSet) Value(column string, def any) core.Value {
	row, ok := r.First()
	if !ok {
		return core.ValueOf(def)
	}
	v, ok := row.Get(column)
	if !ok {
		return core.ValueOf(def)
	}
	return v
}

// Pluck extracts one column from every row. Rows without the column
// contribute NULL.
func (r *ResultSet) Pluck(column string) []core.Value {
	out := make([]core.Value, len(r.rows))
	for i, row := range r.rows {
		out[i] = row.Value(column)
	}
	return out
}

// PluckKeyed maps keyColumn's text to valueColumn. Later rows win on
// duplicate keys.
func (r *ResultSet) PluckKeyed(valueColumn, keyColumn string) map[string]core.Value {
	out := make(map[string]core.Value, len(r.rows))
	for _, row := range r.rows {
		out[row.Value(keyColumn).Text()] = row.Value(valueColumn)
	}
	return out
}

// Map applies fn to every row.
func (r *ResultSet) Map(fn func(core.Row) any) []any {
	out := make([]any, len(r.rows))
	for i, row := range r.rows {
		out[i] = fn(row)
	}
	return out
}

// MapRows applies fn to every row of rs and collects typed results.
func MapRows[T any](rs *ResultSet, fn func(core.Row) T) []T {
	out := make([]T, len(rs.rows))
	for i, row := range rs.rows {
		out[i] = fn(row)
	}
	return out
}

// Filter returns a new result holding the rows fn keeps.
func (r *ResultSet) Filter(fn func(core.Row) bool) *ResultSet {
	kept := make([]core.Row, 0, len(r.rows))
	for _, row := range r.rows {
		if fn(row) {
			kept = append(kept, row)
		}
	}
	return &ResultSet{rows: kept, affected: r.affected, lastID: r.lastID, errMsg: r.errMsg}
}

// Reduce folds the rows into a single value.
func (r *ResultSet) Reduce(fn func(acc any, row core.Row) any, initial any) any {
	acc := initial
	for _, row := range r.rows {
		acc = fn(acc, row)
	}
	return acc
}

// ReduceRows is the typed form of Reduce.
func ReduceRows[T any](rs *ResultSet, fn func(acc T, row core.Row) T, initial T) T {
	acc := initial
	for _, row := range rs.rows {
		acc = fn(acc, row)
	}
	return acc
}

// GroupBy partitions rows by the text of column, preserving row order
// within each group.
func (r *ResultSet) GroupBy(column string) map[string][]core.Row {
	out := make(map[string][]core.Row)
	for _, row := range r.rows {
		key := row.Value(column).Text()
		out[key] = append(out[key], row)
	}
	return out
}

// Each calls fn for every row until fn returns false.
func (r *ResultSet) Each(fn func(index int, row core.Row) bool) {
	for i, row := range r.rows {
		if !fn(i, row) {
			return
		}
	}
}

// Chunk yields consecutive batches of at most size rows. Each call returns a
// fresh sequence over the snapshot. A size below 1 is treated as 1.
func (r *ResultSet) Chunk(size int) iter.Seq[[]core.Row] {
	if size < 1 {
		size = 1
	}
	rows := r.rows
	return func(yield func([]core.Row) bool) {
		for start := 0; start < len(rows); start += size {
			end := min(start+size, len(rows))
			if !yield(rows[start:end:end]) {
				return
			}
		}
	}
}

// RowCount returns the number of rows.
func (r *ResultSet) RowCount() int { return len(r.rows) }

// ColumnCount returns the number of columns of the first row.
func (r *ResultSet) ColumnCount() int { return len(r.ColumnNames()) }

// ColumnNames returns the columns of the first row, or an empty slice.
func (r *ResultSet) ColumnNames() []string {
	if len(r.rows) == 0 {
		return []string{}
	}
	return r.rows[0].Columns()
}

// IsEmpty reports whether there are no rows.
func (r *ResultSet) IsEmpty() bool { return len(r.rows) == 0 }

// IsNotEmpty reports whether there is at least one row.
func (r *ResultSet) IsNotEmpty() bool { return len(r.rows) > 0 }

// AffectedRows returns the number of rows a write changed.
func (r *ResultSet) AffectedRows() int64 { return r.affected }

// LastInsertID returns the identifier generated by an insert, if any.
func (r *ResultSet) LastInsertID() int64 { return r.lastID }

// IsSuccess reports whether no error was recorded.
func (r *ResultSet) IsSuccess() bool { return r.errMsg == "" }

// ErrorMessage returns the recorded engine error, or "".
func (r *ResultSet) ErrorMessage() string { return r.errMsg }

// ToSlice returns the rows as plain maps.
func (r *ResultSet) ToSlice() []map[string]any {
	out := make([]map[string]any, len(r.rows))
	for i, row := range r.rows {
		out[i] = row.Map()
	}
	return out
}

// ToJSON encodes the rows as a JSON array, keeping column order.
func (r *ResultSet) ToJSON() ([]byte, error) {
	if r.rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.rows)
}

// Decode decodes every row into dst, which must point to a slice of structs
// or maps. Struct fields are matched by their `db` tag.
func (r *ResultSet) Decode(dst any) error {
	return decode(r.ToSlice(), dst)
}

// DecodeFirst decodes the first row into dst. It returns core.ErrNotFound
// when the result is empty.
func (r *ResultSet) DecodeFirst(dst any) error {
	row, err := r.FirstOrFail()
	if err != nil {
		return err
	}
	return decode(row.Map(), dst)
}

func decode(input, dst any) error {
	if dst == nil || reflect.ValueOf(dst).Kind() != reflect.Pointer {
		return errors.New("decode target must be a non-nil pointer")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           dst,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc("2006-01-02 15:04:05"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode rows: %w", err)
	}
	return nil
}

// SortedKeys returns the keys of a GroupBy or PluckKeyed result in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
