package sqlgen

import (
	"fmt"
	"strings"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// QueryString is an immutable SQL fragment: a template with `{}` slots plus
// the arguments that fill them. Arguments may themselves be QueryStrings, so
// fragments compose into trees (a WHERE clause holding a sub-select, an ORDER
// BY holding column expressions) without committing to a dialect.
//
// Rendering flattens the tree depth-first and assigns bind placeholders
// strictly left to right across the final statement, so a nested fragment's
// binds interleave correctly with its siblings'. Structural arguments
// (identifiers and raw SQL markers) are inlined into the statement; every
// other argument becomes a bind.
type QueryString struct {
	template string
	args     []any
}

// Ident marks an argument as a (possibly dotted) identifier to be quoted and
// inlined rather than bound.
type Ident string

// Unsafe marks an argument as raw SQL to be inlined verbatim. Callers own the
// safety of the contents.
type Unsafe string

// Compose builds a QueryString from a template and its arguments. The number
// of `{}` slots must match len(args); the mismatch surfaces at Render time.
func Compose(template string, args ...any) QueryString {
	return QueryString{template: template, args: args}
}

// Raw builds a QueryString with no slots.
func Raw(sql string) QueryString {
	return QueryString{template: sql}
}

// IsZero reports whether the fragment is empty.
func (q QueryString) IsZero() bool {
	return q.template == "" && len(q.args) == 0
}

// Template returns the raw template.
func (q QueryString) Template() string {
	return q.template
}

// Args returns the argument list. Callers must not mutate it.
func (q QueryString) Args() []any {
	return q.args
}

// Concat joins fragments with a separator into a single QueryString, skipping
// zero fragments.
func Concat(sep string, parts ...QueryString) QueryString {
	kept := parts[:0:0]
	for _, p := range parts {
		if !p.IsZero() {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return QueryString{}
	}
	templates := make([]string, len(kept))
	args := make([]any, 0, len(kept))
	for i, p := range kept {
		templates[i] = "{}"
		args = append(args, p)
	}
	return QueryString{template: strings.Join(templates, sep), args: args}
}

// Render flattens the fragment tree into a dialect-specific SQL string and
// its ordered bind values.
func (q QueryString) Render(dialect Dialect) (string, []any, error) {
	var b strings.Builder
	var binds []any
	next := 1
	if err := q.render(dialect, &b, &binds, &next); err != nil {
		return "", nil, err
	}
	return b.String(), binds, nil
}

func (q QueryString) render(dialect Dialect, b *strings.Builder, binds *[]any, next *int) error {
	rest := q.template
	argi := 0
	for {
		i := strings.Index(rest, "{}")
		if i < 0 {
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+2:]

		if argi >= len(q.args) {
			return qerr.Newf(qerr.ErrValidation,
				"template has more slots than arguments (%d provided)", len(q.args)).
				WithSQL(q.template)
		}
		arg := q.args[argi]
		argi++

		switch v := arg.(type) {
		case QueryString:
			if err := v.render(dialect, b, binds, next); err != nil {
				return err
			}
		case *QueryString:
			if err := v.render(dialect, b, binds, next); err != nil {
				return err
			}
		case Ident:
			b.WriteString(QuoteQualified(dialect, string(v)))
		case Unsafe:
			b.WriteString(string(v))
		default:
			b.WriteString(Placeholder(dialect, *next))
			*next++
			*binds = append(*binds, arg)
		}
	}
	if argi < len(q.args) {
		return qerr.Newf(qerr.ErrValidation,
			"template has fewer slots than arguments (%d provided, %d used)", len(q.args), argi).
			WithSQL(q.template)
	}
	b.WriteString(rest)
	return nil
}

// Key returns a canonical string for the fragment, suitable for map keys and
// deduplication. Two fragments with equal structure and equal bind values
// share a key. Rendering errors are folded into the key so malformed
// fragments still compare consistently.
func (q QueryString) Key() string {
	sql, binds, err := q.Render(Postgres)
	if err != nil {
		return "!err:" + err.Error()
	}
	var b strings.Builder
	b.WriteString(sql)
	for _, v := range binds {
		fmt.Fprintf(&b, "|%T=%v", v, v)
	}
	return b.String()
}

// Equal reports whether two fragments render identically, binds included.
func (q QueryString) Equal(other QueryString) bool {
	return q.Key() == other.Key()
}

// String renders the fragment for display with binds substituted as %v
// literals. For debugging and preview output only, never for execution.
func (q QueryString) String() string {
	sql, binds, err := q.Render(Postgres)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	// Substitute highest positions first so $1 never clobbers $10.
	for i := len(binds) - 1; i >= 0; i-- {
		ph := Placeholder(Postgres, i+1)
		sql = strings.ReplaceAll(sql, ph, fmt.Sprintf("%v", binds[i]))
	}
	return sql
}
