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

// conflictAction selects the ON CONFLICT behavior of an insert.
type conflictAction int

const (
	conflictNone conflictAction = iota
	conflictDoNothing
	conflictDoUpdate
)

// Insert assembles an INSERT statement: one or more rows, an optional upsert
// clause, and an optional RETURNING list.
type Insert struct {
	table     *Table
	rows      []db.Row
	columns   []string // derived from the first row, insertion-stable
	conflict     conflictAction
	target       []string     // conflict target columns
	constrain    string       // conflict target constraint name
	setCols      []string     // DO UPDATE assignment columns (EXCLUDED values)
	conflictSets []assignment // DO UPDATE explicit value assignments
	returning    []string
	frozen    bool
	err       error
}

// Insert starts an INSERT for the given rows. Every row must provide the same
// column set; the first row fixes the column order.
func (t *Table) Insert(rows ...db.Row) *Insert {
	ins := &Insert{table: t}
	return ins.Rows(rows...)
}

func (ins *Insert) mutate() bool {
	if ins.frozen {
		if ins.err == nil {
			ins.err = qerr.New(qerr.ErrFrozenQuery, "insert was already rendered; build a new one").
				WithTable(ins.table.def.Schema, ins.table.def.Tablename)
		}
		return false
	}
	return true
}

// Rows appends rows to the insert.
func (ins *Insert) Rows(rows ...db.Row) *Insert {
	if !ins.mutate() {
		return ins
	}
	for _, row := range rows {
		if len(ins.columns) == 0 {
			cols := make([]string, 0, len(row))
			for k := range row {
				cols = append(cols, k)
			}
			sort.Strings(cols)
			ins.columns = cols
		}
		ins.rows = append(ins.rows, row)
	}
	return ins
}

// OnConflictDoNothing makes conflicting rows a silent no-op. Target columns
// are optional; with none, any conflict is ignored.
func (ins *Insert) OnConflictDoNothing(target ...string) *Insert {
	if !ins.mutate() {
		return ins
	}
	ins.conflict = conflictDoNothing
	ins.target = target
	return ins
}

// OnConflictDoUpdate turns the insert into an upsert: on conflict with the
// target columns, the named columns are overwritten with the incoming
// (EXCLUDED) values. With no set columns, every inserted column except the
// targets is updated.
func (ins *Insert) OnConflictDoUpdate(target []string, setCols ...string) *Insert {
	if !ins.mutate() {
		return ins
	}
	ins.conflict = conflictDoUpdate
	ins.target = target
	ins.setCols = setCols
	return ins
}

// DoUpdateSet assigns an explicit value to a column in the DO UPDATE clause
// instead of the incoming EXCLUDED value. The value may be a literal (bound)
// or a sqlgen.QueryString expression.
func (ins *Insert) DoUpdateSet(column string, value any) *Insert {
	if !ins.mutate() {
		return ins
	}
	ins.conflictSets = append(ins.conflictSets, assignment{column: column, value: value})
	return ins
}

// OnConstraint names a constraint as the conflict target instead of columns.
func (ins *Insert) OnConstraint(name string) *Insert {
	if !ins.mutate() {
		return ins
	}
	ins.constrain = name
	return ins
}

// Returning adds a RETURNING clause.
func (ins *Insert) Returning(columns ...string) *Insert {
	if !ins.mutate() {
		return ins
	}
	ins.returning = append(ins.returning, columns...)
	return ins
}

// Render produces the final statement. The insert is frozen from this point.
func (ins *Insert) Render(d dialect.Dialect) (sqlgen.QueryString, error) {
	ins.frozen = true
	if ins.err != nil {
		return sqlgen.QueryString{}, ins.err
	}
	if len(ins.rows) == 0 {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation, "insert requires at least one row").
			WithTable(ins.table.def.Schema, ins.table.def.Tablename)
	}

	for _, col := range ins.columns {
		if !ins.table.def.HasColumn(col) {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation, "insert names an unknown column").
				WithTable(ins.table.def.Schema, ins.table.def.Tablename).
				WithColumn(col)
		}
	}

	colIdents := make([]string, len(ins.columns))
	for i, c := range ins.columns {
		colIdents[i] = d.QuoteIdent(ins.table.def.GetColumn(c).SQLName())
	}

	rowParts := make([]sqlgen.QueryString, len(ins.rows))
	for i, row := range ins.rows {
		if len(row) != len(ins.columns) {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrValidation,
				"row %d has %d values, want %d", i, len(row), len(ins.columns)).
				WithTable(ins.table.def.Schema, ins.table.def.Tablename)
		}
		vals := make([]sqlgen.QueryString, len(ins.columns))
		for j, col := range ins.columns {
			v, ok := row[col]
			if !ok {
				return sqlgen.QueryString{}, qerr.Newf(qerr.ErrValidation,
					"row %d is missing column %q", i, col).
					WithTable(ins.table.def.Schema, ins.table.def.Tablename)
			}
			vals[j] = sqlgen.Compose("{}", v)
		}
		rowParts[i] = sqlgen.Compose("({})", sqlgen.Concat(", ", vals...))
	}

	parts := []sqlgen.QueryString{
		sqlgen.Compose("INSERT INTO {} ({}) VALUES",
			sqlgen.Unsafe(d.TableName(ins.table.def.Schema, ins.table.def.Tablename)),
			sqlgen.Unsafe(strings.Join(colIdents, ", "))),
		sqlgen.Concat(", ", rowParts...),
	}

	conflictQS, err := ins.renderConflict(d)
	if err != nil {
		return sqlgen.QueryString{}, err
	}
	if !conflictQS.IsZero() {
		parts = append(parts, conflictQS)
	}

	returningQS, err := ins.renderReturning(d)
	if err != nil {
		return sqlgen.QueryString{}, err
	}
	if !returningQS.IsZero() {
		parts = append(parts, returningQS)
	}

	return sqlgen.Concat(" ", parts...), nil
}

func (ins *Insert) renderConflict(d dialect.Dialect) (sqlgen.QueryString, error) {
	if ins.conflict == conflictNone {
		return sqlgen.QueryString{}, nil
	}

	var target string
	switch {
	case ins.constrain != "":
		target = "ON CONSTRAINT " + d.QuoteIdent(ins.constrain)
	case len(ins.target) > 0:
		quoted := make([]string, len(ins.target))
		for i, c := range ins.target {
			quoted[i] = d.QuoteIdent(c)
		}
		target = "(" + strings.Join(quoted, ", ") + ")"
	}

	if ins.conflict == conflictDoNothing {
		clause := "ON CONFLICT"
		if target != "" {
			clause += " " + target
		}
		return sqlgen.Raw(clause + " DO NOTHING"), nil
	}

	// DO UPDATE requires a target.
	if target == "" {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
			"ON CONFLICT DO UPDATE requires target columns or a constraint").
			WithTable(ins.table.def.Schema, ins.table.def.Tablename)
	}
	explicit := make(map[string]bool, len(ins.conflictSets))
	for _, a := range ins.conflictSets {
		explicit[a.column] = true
	}

	setCols := ins.setCols
	if len(setCols) == 0 && len(ins.conflictSets) == 0 {
		targets := make(map[string]bool, len(ins.target))
		for _, t := range ins.target {
			targets[t] = true
		}
		for _, c := range ins.columns {
			if !targets[c] {
				setCols = append(setCols, c)
			}
		}
	}
	if len(setCols) == 0 && len(ins.conflictSets) == 0 {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
			"ON CONFLICT DO UPDATE has no columns to update").
			WithTable(ins.table.def.Schema, ins.table.def.Tablename)
	}

	var setParts []sqlgen.QueryString
	for _, c := range setCols {
		if explicit[c] {
			continue
		}
		q := d.QuoteIdent(c)
		setParts = append(setParts, sqlgen.Raw(q+" = EXCLUDED."+q))
	}
	for _, a := range ins.conflictSets {
		col := ins.table.def.GetColumn(a.column)
		if col == nil {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation, "upsert assigns an unknown column").
				WithTable(ins.table.def.Schema, ins.table.def.Tablename).
				WithColumn(a.column)
		}
		ident := sqlgen.Unsafe(d.QuoteIdent(col.SQLName()))
		if qs, ok := a.value.(sqlgen.QueryString); ok {
			setParts = append(setParts, sqlgen.Compose("{} = {}", ident, qs))
		} else {
			setParts = append(setParts, sqlgen.Compose("{} = {}", ident, a.value))
		}
	}
	return sqlgen.Compose("ON CONFLICT "+target+" DO UPDATE SET {}",
		sqlgen.Concat(", ", setParts...)), nil
}

func (ins *Insert) renderReturning(d dialect.Dialect) (sqlgen.QueryString, error) {
	if len(ins.returning) == 0 {
		return sqlgen.QueryString{}, nil
	}
	if !d.SupportsFeature(dialect.FeatureReturning) {
		return sqlgen.QueryString{}, qerr.Newf(qerr.ErrUnsupportedFeature,
			"RETURNING is not supported on %s", d.Name())
	}
	quoted := make([]string, len(ins.returning))
	for i, c := range ins.returning {
		quoted[i] = d.QuoteIdent(c)
	}
	return sqlgen.Raw("RETURNING " + strings.Join(quoted, ", ")), nil
}

// Run executes the insert. Rows are non-nil only when RETURNING was set.
func (ins *Insert) Run(ctx context.Context) (*db.Result, error) {
	eng, err := ins.table.engine()
	if err != nil {
		return nil, err
	}
	qs, err := ins.Render(eng.Dialect())
	if err != nil {
		return nil, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, sql, args)
}
