package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTime
	KindRaw
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Raw marks SQL text that is emitted verbatim: never quoted, never bound.
// It is the only way to put caller-provided text into a statement.
type Raw string

// Value is a tagged scalar used for bindings and row fields.
// The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
	t    time.Time
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// Bytes returns a byte slice value.
func Bytes(v []byte) Value { return Value{kind: KindBytes, b: v} }

// Time returns a timestamp value.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// RawValue returns a raw expression value.
func RawValue(expr Raw) Value { return Value{kind: KindRaw, s: string(expr)} }

// ValueOf converts a Go value into a Value.
// Unknown types are stored as their fmt string representation.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case Raw:
		return RawValue(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case []byte:
		return Bytes(x)
	case time.Time:
		return Time(x)
	case *string:
		if x == nil {
			return Null()
		}
		return String(*x)
	case *int64:
		if x == nil {
			return Null()
		}
		return Int(*x)
	case fmt.Stringer:
		return String(x.String())
	default:
		return String(fmt.Sprint(x))
	}
}

func uintValue(u uint64) Value {
	if u > math.MaxInt64 {
		return String(strconv.FormatUint(u, 10))
	}
	return Int(int64(u))
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsRaw reports whether v is a raw expression.
func (v Value) IsRaw() bool { return v.kind == KindRaw }

// Any returns the value as a plain Go value suitable for database/sql.
// Raw expressions return their text as a Raw.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.i == 1
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.b
	case KindTime:
		return v.t
	case KindRaw:
		return Raw(v.s)
	default:
		return nil
	}
}

// Int64 returns the value coerced to an integer.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	case KindString, KindBytes:
		n, err := strconv.ParseInt(v.Text(), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(v.Text(), 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

// Float64 returns the value coerced to a float.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt, KindBool:
		return float64(v.i), true
	case KindString, KindBytes:
		f, err := strconv.ParseFloat(v.Text(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Text returns the value rendered as text. NULL renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.i == 1)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString, KindRaw:
		return v.s
	case KindBytes:
		return string(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindNull {
		return "NULL"
	}
	return v.Text()
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindTime:
		return v.t.Equal(o.t)
	case KindBytes:
		return string(v.b) == string(o.b)
	default:
		return v.i == o.i && v.s == o.s
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBytes:
		return json.Marshal(string(v.b))
	case KindRaw:
		return json.Marshal(v.s)
	default:
		return json.Marshal(v.Any())
	}
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindBytes:
		return string(v.b), nil
	case KindRaw:
		return v.s, nil
	default:
		return v.Any(), nil
	}
}
