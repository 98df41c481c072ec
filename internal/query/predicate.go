package query

import (
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// Predicate is a node in a WHERE tree: either a leaf comparison on a column
// reference or an AND/OR combinator over child nodes. The tree renders with
// the user's grouping intact; nothing is flattened or reassociated.
type Predicate struct {
	op     string // leaf operator, or "AND"/"OR" for combinators
	col    *ColumnRef
	value  any
	values []any // for In/NotIn
	kids   []*Predicate
}

// Leaf operators.
const (
	opEq        = "="
	opNe        = "!="
	opLt        = "<"
	opLte       = "<="
	opGt        = ">"
	opGte       = ">="
	opLike      = "LIKE"
	opNotLike   = "NOT LIKE"
	opILike     = "ILIKE"
	opNotILike  = "NOT ILIKE"
	opIn        = "IN"
	opNotIn     = "NOT IN"
	opIsNull    = "IS NULL"
	opIsNotNull = "IS NOT NULL"
)

func leaf(col *ColumnRef, op string, value any) *Predicate {
	return &Predicate{op: op, col: col, value: value}
}

// Eq compares the column for equality. A nil value renders as IS NULL.
func (c *ColumnRef) Eq(v any) *Predicate {
	if v == nil {
		return c.IsNull()
	}
	return leaf(c, opEq, v)
}

// Ne compares the column for inequality. A nil value renders as IS NOT NULL.
func (c *ColumnRef) Ne(v any) *Predicate {
	if v == nil {
		return c.IsNotNull()
	}
	return leaf(c, opNe, v)
}

func (c *ColumnRef) Lt(v any) *Predicate  { return leaf(c, opLt, v) }
func (c *ColumnRef) Lte(v any) *Predicate { return leaf(c, opLte, v) }
func (c *ColumnRef) Gt(v any) *Predicate  { return leaf(c, opGt, v) }
func (c *ColumnRef) Gte(v any) *Predicate { return leaf(c, opGte, v) }

// Like matches against a pattern. No wildcards are added implicitly; the
// caller supplies any % or _ characters.
func (c *ColumnRef) Like(pattern string) *Predicate    { return leaf(c, opLike, pattern) }
func (c *ColumnRef) NotLike(pattern string) *Predicate { return leaf(c, opNotLike, pattern) }

// ILike is the case-insensitive LIKE. On dialects without native ILIKE it
// renders as LOWER(col) LIKE LOWER(pattern).
func (c *ColumnRef) ILike(pattern string) *Predicate    { return leaf(c, opILike, pattern) }
func (c *ColumnRef) NotILike(pattern string) *Predicate { return leaf(c, opNotILike, pattern) }

// In matches any of the given values. A single *Select (or QueryString)
// operand renders as a sub-query instead of a bound list. An empty list is a
// validation error at render time, never a silent no-op.
func (c *ColumnRef) In(values ...any) *Predicate {
	return &Predicate{op: opIn, col: c, values: values}
}

// NotIn matches none of the given values. An empty list is a validation error.
func (c *ColumnRef) NotIn(values ...any) *Predicate {
	return &Predicate{op: opNotIn, col: c, values: values}
}

func (c *ColumnRef) IsNull() *Predicate    { return leaf(c, opIsNull, nil) }
func (c *ColumnRef) IsNotNull() *Predicate { return leaf(c, opIsNotNull, nil) }

// And combines predicates; all must hold.
func And(ps ...*Predicate) *Predicate {
	return &Predicate{op: "AND", kids: ps}
}

// Or combines predicates; at least one must hold.
func Or(ps ...*Predicate) *Predicate {
	return &Predicate{op: "OR", kids: ps}
}

// And chains a sibling onto this predicate.
func (p *Predicate) And(other *Predicate) *Predicate {
	return And(p, other)
}

// Or chains a sibling onto this predicate.
func (p *Predicate) Or(other *Predicate) *Predicate {
	return Or(p, other)
}

// render walks the tree producing a fragment, registering every referenced
// column's joins into the statement's join set.
func (p *Predicate) render(t *Table, d dialect.Dialect, joins *joinSet) (sqlgen.QueryString, error) {
	switch p.op {
	case "AND", "OR":
		if len(p.kids) == 0 {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrValidation,
				"%s requires at least one predicate", p.op)
		}
		if len(p.kids) == 1 {
			return p.kids[0].render(t, d, joins)
		}
		parts := make([]sqlgen.QueryString, 0, len(p.kids))
		for _, kid := range p.kids {
			qs, err := kid.render(t, d, joins)
			if err != nil {
				return sqlgen.QueryString{}, err
			}
			parts = append(parts, qs)
		}
		joined := sqlgen.Concat(" "+p.op+" ", parts...)
		return sqlgen.Compose("({})", joined), nil
	}
	return p.renderLeaf(t, d, joins)
}

func (p *Predicate) renderLeaf(t *Table, d dialect.Dialect, joins *joinSet) (sqlgen.QueryString, error) {
	r, err := p.col.resolve()
	if err != nil {
		return sqlgen.QueryString{}, err
	}
	joins.add(r.joins)
	col := columnSQL(t, r)

	switch p.op {
	case opIsNull:
		return sqlgen.Compose("{} IS NULL", col), nil
	case opIsNotNull:
		return sqlgen.Compose("{} IS NOT NULL", col), nil
	case opIn, opNotIn:
		if len(p.values) == 0 {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrValidation,
				"%s requires at least one value", p.op).
				WithColumn(p.col.name)
		}
		for _, v := range p.values {
			switch v.(type) {
			case *Select, sqlgen.QueryString, *sqlgen.QueryString:
				if len(p.values) > 1 {
					return sqlgen.QueryString{}, qerr.Newf(qerr.ErrValidation,
						"a sub-query must be the only operand of %s", p.op).
						WithColumn(p.col.name)
				}
			}
		}
		switch sub := p.values[0].(type) {
		case *Select:
			subQS, err := sub.innerRender(d)
			if err != nil {
				return sqlgen.QueryString{}, err
			}
			return sqlgen.Compose("{} "+p.op+" ({})", col, subQS), nil
		case sqlgen.QueryString:
			return sqlgen.Compose("{} "+p.op+" ({})", col, sub), nil
		case *sqlgen.QueryString:
			return sqlgen.Compose("{} "+p.op+" ({})", col, *sub), nil
		}
		slots := make([]sqlgen.QueryString, len(p.values))
		for i, v := range p.values {
			slots[i] = sqlgen.Compose("{}", v)
		}
		list := sqlgen.Concat(", ", slots...)
		return sqlgen.Compose("{} "+p.op+" ({})", col, list), nil
	case opILike, opNotILike:
		if !d.SupportsFeature(dialect.FeatureIlike) {
			like := opLike
			if p.op == opNotILike {
				like = opNotLike
			}
			return sqlgen.Compose("LOWER({}) "+like+" LOWER({})", col, p.value), nil
		}
		return sqlgen.Compose("{} "+p.op+" {}", col, p.value), nil
	default:
		if qs, ok := p.value.(sqlgen.QueryString); ok {
			return sqlgen.Compose("{} "+p.op+" {}", col, qs), nil
		}
		return sqlgen.Compose("{} "+p.op+" {}", col, p.value), nil
	}
}
