package query

import (
	"context"
	"strings"

	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// Delete assembles a DELETE statement. Deletes without a WHERE clause are
// rejected unless Force is set.
type Delete struct {
	table     *Table
	where     *Predicate
	force     bool
	returning []string
	frozen    bool
	err       error
}

// Delete starts a DELETE against the table.
func (t *Table) Delete() *Delete {
	return &Delete{table: t}
}

func (del *Delete) mutate() bool {
	if del.frozen {
		if del.err == nil {
			del.err = qerr.New(qerr.ErrFrozenQuery, "delete was already rendered; build a new one").
				WithTable(del.table.def.Schema, del.table.def.Tablename)
		}
		return false
	}
	return true
}

// Where sets the predicate. Repeated calls AND the predicates together.
func (del *Delete) Where(p *Predicate) *Delete {
	if !del.mutate() {
		return del
	}
	if del.where == nil {
		del.where = p
	} else {
		del.where = And(del.where, p)
	}
	return del
}

// Force allows the delete to run without a WHERE clause.
func (del *Delete) Force() *Delete {
	if !del.mutate() {
		return del
	}
	del.force = true
	return del
}

// Returning adds a RETURNING clause.
func (del *Delete) Returning(columns ...string) *Delete {
	if !del.mutate() {
		return del
	}
	del.returning = append(del.returning, columns...)
	return del
}

// Render produces the final statement. The delete is frozen from this point.
func (del *Delete) Render(d dialect.Dialect) (sqlgen.QueryString, error) {
	del.frozen = true
	if del.err != nil {
		return sqlgen.QueryString{}, del.err
	}
	if del.where == nil && !del.force {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrDeleteWithoutWhere,
			"delete without a WHERE clause; call Force to delete every row").
			WithTable(del.table.def.Schema, del.table.def.Tablename)
	}

	parts := []sqlgen.QueryString{
		sqlgen.Compose("DELETE FROM {}",
			sqlgen.Unsafe(d.TableName(del.table.def.Schema, del.table.def.Tablename))),
	}

	if del.where != nil {
		joins := newJoinSet()
		whereQS, err := del.where.render(del.table, d, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		if joins.Len() > 0 {
			return sqlgen.QueryString{}, qerr.New(qerr.ErrUnsupportedFeature,
				"delete predicates cannot traverse foreign keys; filter on local columns").
				WithTable(del.table.def.Schema, del.table.def.Tablename)
		}
		parts = append(parts, sqlgen.Compose("WHERE {}", whereQS))
	}

	if len(del.returning) > 0 {
		if !d.SupportsFeature(dialect.FeatureReturning) {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrUnsupportedFeature,
				"RETURNING is not supported on %s", d.Name())
		}
		quoted := make([]string, len(del.returning))
		for i, c := range del.returning {
			quoted[i] = d.QuoteIdent(c)
		}
		parts = append(parts, sqlgen.Raw("RETURNING "+strings.Join(quoted, ", ")))
	}

	return sqlgen.Concat(" ", parts...), nil
}

// Run executes the delete.
func (del *Delete) Run(ctx context.Context) (*db.Result, error) {
	eng, err := del.table.engine()
	if err != nil {
		return nil, err
	}
	qs, err := del.Render(eng.Dialect())
	if err != nil {
		return nil, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, sql, args)
}
