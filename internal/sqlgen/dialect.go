// Package sqlgen provides dialect-agnostic SQL building primitives: the
// QueryString composition type and shared quoting/placeholder helpers.
package sqlgen

import (
	"strconv"
	"strings"
)

// Dialect represents a supported SQL database dialect.
type Dialect int

const (
	// Postgres represents PostgreSQL dialect.
	Postgres Dialect = iota
	// SQLite represents SQLite dialect.
	SQLite
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// ParseDialect converts a dialect name to a Dialect, defaulting to Postgres.
func ParseDialect(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite, true
	default:
		return Postgres, false
	}
}

// QuoteIdent returns the identifier quoted according to the dialect.
// PostgreSQL and SQLite both use double quotes; embedded quotes are doubled.
func QuoteIdent(dialect Dialect, s string) string {
	escaped := strings.ReplaceAll(s, `"`, `""`)
	return `"` + escaped + `"`
}

// QuoteQualified quotes a dotted identifier part by part:
// "music.band" -> `"music"."band"`.
func QuoteQualified(dialect Dialect, s string) string {
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(dialect, p)
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the dialect's bind placeholder for 1-based position n.
// PostgreSQL uses numbered placeholders ($1, $2); SQLite uses question marks.
func Placeholder(dialect Dialect, n int) string {
	switch dialect {
	case SQLite:
		return "?"
	default:
		return "$" + strconv.Itoa(n)
	}
}

// Placeholders returns a comma-separated list of placeholders for positions
// start..start+n-1.
func Placeholders(dialect Dialect, start, n int) string {
	if n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = Placeholder(dialect, start+i)
	}
	return strings.Join(parts, ", ")
}

// Columns returns a comma-separated list of quoted column names.
// Example: Columns(Postgres, "a", "b") -> `"a", "b"`
func Columns(dialect Dialect, cols ...string) string {
	if len(cols) == 0 {
		return ""
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = QuoteIdent(dialect, col)
	}
	return strings.Join(parts, ", ")
}

// List returns a comma-separated list of items without quoting.
func List(items ...string) string {
	return strings.Join(items, ", ")
}
