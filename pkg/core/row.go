package core

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Row is an ordered mapping from column name to Value.
// Column order is the order the engine returned them in.
type Row struct {
	columns []string
	values  []Value
	index   map[string]int
}

// NewRow builds a row from parallel column and value slices.
// A duplicated column name keeps the last value at the first position.
func NewRow(columns []string, values []Value) Row {
	r := Row{
		columns: make([]string, 0, len(columns)),
		values:  make([]Value, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		var v Value
		if i < len(values) {
			v = values[i]
		}
		r.Set(col, v)
	}
	return r
}

// RowFromMap builds a row from a plain map. Go maps carry no order,
// so columns are sorted by name.
func RowFromMap(m map[string]any) Row {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	vals := make([]Value, len(cols))
	for i, c := range cols {
		vals[i] = ValueOf(m[c])
	}
	return NewRow(cols, vals)
}

// Set assigns a column, appending it when new.
func (r *Row) Set(column string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[column]; ok {
		r.values[i] = v
		return
	}
	r.index[column] = len(r.columns)
	r.columns = append(r.columns, column)
	r.values = append(r.values, v)
}

// Get returns the value of a column.
func (r Row) Get(column string) (Value, bool) {
	i, ok := r.index[column]
	if !ok {
		return Value{}, false
	}
	return r.values[i], true
}

// Value returns the value of a column, or NULL when absent.
func (r Row) Value(column string) Value {
	v, _ := r.Get(column)
	return v
}

// Has reports whether the row contains the column.
func (r Row) Has(column string) bool {
	_, ok := r.index[column]
	return ok
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Values returns the values in column order.
func (r Row) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.columns) }

// Map returns the row as a plain map of Go values.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i].Any()
	}
	return m
}

// MarshalJSON encodes the row as a JSON object preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
