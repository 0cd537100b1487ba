package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below wrap them so callers can use errors.Is.
var (
	// ErrNotFound is returned when a single-row read finds no row.
	ErrNotFound = errors.New("record not found")

	// ErrNoTable is returned when a statement is built without a table.
	ErrNoTable = errors.New("no table specified")

	// ErrEmptyPayload is returned when an insert, upsert or update has no data.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrNoActiveTransaction is returned by commit and savepoint operations at level 0.
	ErrNoActiveTransaction = errors.New("no active transaction")

	// ErrUnsupported is returned when the dialect cannot express an operation.
	ErrUnsupported = errors.New("operation not supported by dialect")
)

// QueryError reports a malformed or failed statement.
type QueryError struct {
	Op    string // builder operation, e.g. "insert", "select"
	Table string
	SQL   string
	Err   error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("query error")
	if e.Op != "" {
		b.WriteString(" (" + e.Op + ")")
	}
	if e.Table != "" {
		b.WriteString(" on " + e.Table)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() error { return e.Err }

// SchemaError reports a DDL failure along with the object it touched
// and the underlying engine message.
type SchemaError struct {
	Op         string
	Table      string
	Column     string
	Constraint string
	Err        error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema error (%s)", e.Op)
	if e.Table != "" {
		b.WriteString(" table " + e.Table)
	}
	if e.Column != "" {
		b.WriteString(" column " + e.Column)
	}
	if e.Constraint != "" {
		b.WriteString(" constraint " + e.Constraint)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransactionError reports a begin/commit/savepoint failure.
type TransactionError struct {
	Op    string
	Level int
	Err   error
}

func (e *TransactionError) Error() string {
	msg := fmt.Sprintf("transaction error (%s at level %d)", e.Op, e.Level)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransactionError) Unwrap() error { return e.Err }
