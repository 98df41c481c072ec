package query

import (
	"context"
	"sort"
	"strings"

	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// Update assembles an UPDATE statement. Updates without a WHERE clause are
// rejected unless Force is set, so a forgotten predicate cannot rewrite a
// whole table.
type Update struct {
	table     *Table
	sets      []assignment
	where     *Predicate
	force     bool
	returning []string
	frozen    bool
	err       error
}

type assignment struct {
	column string
	value  any // literal or sqlgen.QueryString expression
}

// Update starts an UPDATE against the table.
func (t *Table) Update() *Update {
	return &Update{table: t}
}

func (u *Update) mutate() bool {
	if u.frozen {
		if u.err == nil {
			u.err = qerr.New(qerr.ErrFrozenQuery, "update was already rendered; build a new one").
				WithTable(u.table.def.Schema, u.table.def.Tablename)
		}
		return false
	}
	return true
}

// Set assigns a value to a column. The value may be a literal (bound) or a
// sqlgen.QueryString expression built with the Expr helpers.
func (u *Update) Set(column string, value any) *Update {
	if !u.mutate() {
		return u
	}
	u.sets = append(u.sets, assignment{column: column, value: value})
	return u
}

// SetRow assigns every key of the row, in sorted column order.
func (u *Update) SetRow(row db.Row) *Update {
	if !u.mutate() {
		return u
	}
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for _, c := range cols {
		u.sets = append(u.sets, assignment{column: c, value: row[c]})
	}
	return u
}

// Where sets the predicate. Repeated calls AND the predicates together.
func (u *Update) Where(p *Predicate) *Update {
	if !u.mutate() {
		return u
	}
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Force allows the update to run without a WHERE clause.
func (u *Update) Force() *Update {
	if !u.mutate() {
		return u
	}
	u.force = true
	return u
}

// Returning adds a RETURNING clause.
func (u *Update) Returning(columns ...string) *Update {
	if !u.mutate() {
		return u
	}
	u.returning = append(u.returning, columns...)
	return u
}

// Render produces the final statement. The update is frozen from this point.
func (u *Update) Render(d dialect.Dialect) (sqlgen.QueryString, error) {
	u.frozen = true
	if u.err != nil {
		return sqlgen.QueryString{}, u.err
	}
	if len(u.sets) == 0 {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation, "update has no assignments").
			WithTable(u.table.def.Schema, u.table.def.Tablename)
	}
	if u.where == nil && !u.force {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrUpdateWithoutWhere,
			"update without a WHERE clause; call Force to update every row").
			WithTable(u.table.def.Schema, u.table.def.Tablename)
	}

	setParts := make([]sqlgen.QueryString, len(u.sets))
	for i, a := range u.sets {
		col := u.table.def.GetColumn(a.column)
		if col == nil {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation, "update names an unknown column").
				WithTable(u.table.def.Schema, u.table.def.Tablename).
				WithColumn(a.column)
		}
		ident := sqlgen.Ident(col.SQLName())
		if qs, ok := a.value.(sqlgen.QueryString); ok {
			setParts[i] = sqlgen.Compose("{} = {}", ident, qs)
		} else {
			setParts[i] = sqlgen.Compose("{} = {}", ident, a.value)
		}
	}

	parts := []sqlgen.QueryString{
		sqlgen.Compose("UPDATE {} SET",
			sqlgen.Unsafe(d.TableName(u.table.def.Schema, u.table.def.Tablename))),
		sqlgen.Concat(", ", setParts...),
	}

	if u.where != nil {
		// UPDATE has no join surface; predicates with FK hops are rejected
		// when they leave joins behind.
		joins := newJoinSet()
		whereQS, err := u.where.render(u.table, d, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		if joins.Len() > 0 {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrUnsupportedFeature,
				"update predicates cannot traverse foreign keys; filter on local columns").
				WithTable(u.table.def.Schema, u.table.def.Tablename)
		}
		parts = append(parts, sqlgen.Compose("WHERE {}", whereQS))
	}

	if len(u.returning) > 0 {
		if !d.SupportsFeature(dialect.FeatureReturning) {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrUnsupportedFeature,
				"RETURNING is not supported on %s", d.Name())
		}
		quoted := make([]string, len(u.returning))
		for i, c := range u.returning {
			quoted[i] = d.QuoteIdent(c)
		}
		parts = append(parts, sqlgen.Raw("RETURNING "+strings.Join(quoted, ", ")))
	}

	return sqlgen.Concat(" ", parts...), nil
}

// Run executes the update.
func (u *Update) Run(ctx context.Context) (*db.Result, error) {
	eng, err := u.table.engine()
	if err != nil {
		return nil, err
	}
	qs, err := u.Render(eng.Dialect())
	if err != nil {
		return nil, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, sql, args)
}

// Expression helpers for Update.Set: each returns a QueryString that reads the
// current column value, so `popularity = popularity + 100` style updates run
// atomically in SQL rather than read-modify-write in the client.

// Add returns col + v.
func (c *ColumnRef) Add(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} + {}", sqlgen.Ident(c.sqlName()), v)
}

// Sub returns col - v.
func (c *ColumnRef) Sub(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} - {}", sqlgen.Ident(c.sqlName()), v)
}

// Mul returns col * v.
func (c *ColumnRef) Mul(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} * {}", sqlgen.Ident(c.sqlName()), v)
}

// Div returns col / v.
func (c *ColumnRef) Div(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} / {}", sqlgen.Ident(c.sqlName()), v)
}

// Append returns col || v for text concatenation on the right.
func (c *ColumnRef) Append(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} || {}", sqlgen.Ident(c.sqlName()), v)
}

// Prepend returns v || col for text concatenation on the left.
func (c *ColumnRef) Prepend(v any) sqlgen.QueryString {
	return sqlgen.Compose("{} || {}", v, sqlgen.Ident(c.sqlName()))
}

// ArrayAppend returns array_append(col, v).
func (c *ColumnRef) ArrayAppend(v any) sqlgen.QueryString {
	return sqlgen.Compose("array_append({}, {})", sqlgen.Ident(c.sqlName()), v)
}

// ArrayPrepend returns array_prepend(v, col).
func (c *ColumnRef) ArrayPrepend(v any) sqlgen.QueryString {
	return sqlgen.Compose("array_prepend({}, {})", v, sqlgen.Ident(c.sqlName()))
}
