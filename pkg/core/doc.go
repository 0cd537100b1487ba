// Package core defines the shared language of the dbal data-access layer.
//
// This package contains:
//   - Tagged values (Value, Raw) used for bindings and row fields
//   - Ordered rows (Row) returned by every adapter
//   - Dialect primitives (PlaceholderStyle, IdentifierConfig)
//   - The error taxonomy (QueryError, SchemaError, TransactionError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
