package query

import (
	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// JoinEdge is one LEFT JOIN required by an FK traversal. Edges are keyed by
// PathKey: two references walking the same FK path share one join no matter
// how many times the path appears in the statement.
type JoinEdge struct {
	FromTable *ast.TableDef
	FromAlias string // empty when joining off the root table
	FKColumn  string
	ToTable   *ast.TableDef
	ToColumn  string
	Alias     string
	PathKey   string
}

// joinSet collects the deduplicated, ordered join edges of one statement.
type joinSet struct {
	keys  map[string]bool
	edges []JoinEdge
}

func newJoinSet() *joinSet {
	return &joinSet{keys: make(map[string]bool)}
}

// add records the edges of a resolved reference, skipping paths already
// present. Prefix paths dedupe naturally because each hop has its own key.
func (j *joinSet) add(edges []JoinEdge) {
	for _, e := range edges {
		if j.keys[e.PathKey] {
			continue
		}
		j.keys[e.PathKey] = true
		j.edges = append(j.edges, e)
	}
}

// Len returns the number of distinct joins.
func (j *joinSet) Len() int { return len(j.edges) }

// render produces the JOIN clauses in traversal order.
func (j *joinSet) render(d dialect.Dialect) sqlgen.QueryString {
	if len(j.edges) == 0 {
		return sqlgen.QueryString{}
	}
	parts := make([]sqlgen.QueryString, 0, len(j.edges))
	for _, e := range j.edges {
		from := e.FromAlias
		if from == "" {
			from = e.FromTable.Tablename
		}
		parts = append(parts, sqlgen.Compose(
			"LEFT JOIN {} {} ON {} = {}",
			sqlgen.Unsafe(d.TableName(e.ToTable.Schema, e.ToTable.Tablename)),
			sqlgen.Ident(e.Alias),
			sqlgen.Ident(from+"."+e.FKColumn),
			sqlgen.Ident(e.Alias+"."+e.ToColumn),
		))
	}
	return sqlgen.Concat(" ", parts...)
}

// columnSQL returns the rendered reference for a resolved column inside a
// statement: alias-qualified for joined columns, table-qualified otherwise.
func columnSQL(t *Table, r *resolved) sqlgen.QueryString {
	if r.aliasName != "" {
		return sqlgen.Compose("{}", sqlgen.Ident(r.aliasName+"."+r.col.SQLName()))
	}
	return sqlgen.Compose("{}", sqlgen.Ident(t.def.Tablename+"."+r.col.SQLName()))
}
