package core

import "strconv"

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (DuckDB, MySQL, SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// Format returns the placeholder for the 1-based parameter index n.
func (p PlaceholderStyle) Format(n int) string {
	if p == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// IdentifierConfig defines how identifiers are quoted.
type IdentifierConfig struct {
	Quote    string // Quote character: " or `
	QuoteEnd string // End quote character (usually same as Quote)
	Escape   string // Escape sequence for an embedded quote: "" or ``
}
