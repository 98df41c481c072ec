package query

import (
	"context"

	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// Count assembles a SELECT COUNT aggregate, optionally counting distinct
// values of one or more columns.
type Count struct {
	table    *Table
	cols     []*ColumnRef
	distinct bool
	where    *Predicate
}

// Count starts a COUNT(*) against the table.
func (t *Table) Count() *Count {
	return &Count{table: t}
}

// Of counts non-null values of the given columns instead of rows. More than
// one column requires Distinct; the count is then over distinct combinations.
func (c *Count) Of(cols ...*ColumnRef) *Count {
	c.cols = append(c.cols, cols...)
	return c
}

// Distinct counts distinct values. Requires at least one column via Of.
func (c *Count) Distinct() *Count {
	c.distinct = true
	return c
}

// Where sets the predicate.
func (c *Count) Where(p *Predicate) *Count {
	if c.where == nil {
		c.where = p
	} else {
		c.where = And(c.where, p)
	}
	return c
}

// Render produces the aggregate statement. Counting distinct combinations of
// several columns renders as COUNT(*) over a DISTINCT sub-select, which both
// dialects accept.
func (c *Count) Render(d dialect.Dialect) (sqlgen.QueryString, error) {
	joins := newJoinSet()

	var expr sqlgen.QueryString
	switch {
	case len(c.cols) > 1:
		if !c.distinct {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
				"counting several columns requires Distinct").
				WithTable(c.table.def.Schema, c.table.def.Tablename)
		}
		return c.renderDistinctCombinations(d)
	case len(c.cols) == 1:
		r, err := c.cols[0].resolve()
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		joins.add(r.joins)
		if c.distinct {
			expr = sqlgen.Compose("COUNT(DISTINCT {})", columnSQL(c.table, r))
		} else {
			expr = sqlgen.Compose("COUNT({})", columnSQL(c.table, r))
		}
	case c.distinct:
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
			"COUNT DISTINCT requires a column; use Of").
			WithTable(c.table.def.Schema, c.table.def.Tablename)
	default:
		expr = sqlgen.Raw("COUNT(*)")
	}

	var whereQS sqlgen.QueryString
	if c.where != nil {
		var err error
		whereQS, err = c.where.render(c.table, d, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
	}

	parts := []sqlgen.QueryString{
		sqlgen.Compose("SELECT {} AS {} FROM {} AS {}",
			expr, sqlgen.Ident("count"),
			sqlgen.Unsafe(d.TableName(c.table.def.Schema, c.table.def.Tablename)),
			sqlgen.Ident(c.table.def.Tablename)),
	}
	if joins.Len() > 0 {
		parts = append(parts, joins.render(d))
	}
	if !whereQS.IsZero() {
		parts = append(parts, sqlgen.Compose("WHERE {}", whereQS))
	}
	return sqlgen.Concat(" ", parts...), nil
}

func (c *Count) renderDistinctCombinations(d dialect.Dialect) (sqlgen.QueryString, error) {
	joins := newJoinSet()

	colParts := make([]sqlgen.QueryString, len(c.cols))
	for i, col := range c.cols {
		r, err := col.resolve()
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		joins.add(r.joins)
		colParts[i] = columnSQL(c.table, r)
	}

	var whereQS sqlgen.QueryString
	if c.where != nil {
		var err error
		whereQS, err = c.where.render(c.table, d, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
	}

	inner := []sqlgen.QueryString{
		sqlgen.Compose("SELECT DISTINCT {} FROM {} AS {}",
			sqlgen.Concat(", ", colParts...),
			sqlgen.Unsafe(d.TableName(c.table.def.Schema, c.table.def.Tablename)),
			sqlgen.Ident(c.table.def.Tablename)),
	}
	if joins.Len() > 0 {
		inner = append(inner, joins.render(d))
	}
	if !whereQS.IsZero() {
		inner = append(inner, sqlgen.Compose("WHERE {}", whereQS))
	}

	return sqlgen.Compose("SELECT COUNT(*) AS {} FROM ({}) AS {}",
		sqlgen.Ident("count"),
		sqlgen.Concat(" ", inner...),
		sqlgen.Ident("distinct_rows")), nil
}

// Run executes the count and returns the total.
func (c *Count) Run(ctx context.Context) (int64, error) {
	eng, err := c.table.engine()
	if err != nil {
		return 0, err
	}
	qs, err := c.Render(eng.Dialect())
	if err != nil {
		return 0, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return 0, err
	}
	res, err := eng.Execute(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	return toInt64(res.Rows[0]["count"]), nil
}

// Exists reports whether any row matches the predicate.
func (t *Table) Exists(ctx context.Context, p *Predicate) (bool, error) {
	eng, err := t.engine()
	if err != nil {
		return false, err
	}
	d := eng.Dialect()

	joins := newJoinSet()
	var whereQS sqlgen.QueryString
	if p != nil {
		whereQS, err = p.render(t, d, joins)
		if err != nil {
			return false, err
		}
	}

	inner := []sqlgen.QueryString{
		sqlgen.Compose("SELECT 1 FROM {} AS {}",
			sqlgen.Unsafe(d.TableName(t.def.Schema, t.def.Tablename)),
			sqlgen.Ident(t.def.Tablename)),
	}
	if joins.Len() > 0 {
		inner = append(inner, joins.render(d))
	}
	if !whereQS.IsZero() {
		inner = append(inner, sqlgen.Compose("WHERE {}", whereQS))
	}
	inner = append(inner, sqlgen.Raw("LIMIT 1"))

	qs := sqlgen.Compose("SELECT EXISTS ({}) AS {}",
		sqlgen.Concat(" ", inner...), sqlgen.Ident("exists"))
	sql, args, err := qs.Render(d.Kind())
	if err != nil {
		return false, err
	}
	res, err := eng.Execute(ctx, sql, args)
	if err != nil {
		return false, err
	}
	if len(res.Rows) == 0 {
		return false, nil
	}
	return toBool(res.Rows[0]["exists"]), nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		// Some drivers hand numerics back as text.
		var out int64
		for _, b := range n {
			if b < '0' || b > '9' {
				return out
			}
			out = out*10 + int64(b-'0')
		}
		return out
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
