// Package query provides the typed query assemblers: column path references,
// predicate trees, join resolution, and the Select/Insert/Update/Delete/
// Count/Exists builders that render to dialect SQL and run against an Engine.
package query

import (
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/schema"
)

// Table binds a registered TableDef to a registry (for reference traversal)
// and an engine cell (for execution). All builders start here.
type Table struct {
	def  *ast.TableDef
	reg  *schema.Registry
	cell *db.Cell
}

// Bind looks up a registered table and returns its query surface.
func Bind(reg *schema.Registry, cell *db.Cell, schemaName, name string) (*Table, error) {
	def, ok := reg.Get(schemaName, name)
	if !ok {
		return nil, qerr.New(qerr.ErrSchemaNotFound, "table not registered").
			WithTable(schemaName, name)
	}
	return &Table{def: def, reg: reg, cell: cell}, nil
}

// BindDef wraps an already-resolved TableDef. Used by the engine internals
// and tests that construct defs directly.
func BindDef(reg *schema.Registry, cell *db.Cell, def *ast.TableDef) *Table {
	return &Table{def: def, reg: reg, cell: cell}
}

// Def returns the underlying table definition.
func (t *Table) Def() *ast.TableDef { return t.def }

func (t *Table) engine() (db.Engine, error) {
	if t.cell == nil {
		return nil, qerr.New(qerr.ErrConnection, "table is not bound to an engine")
	}
	eng := t.cell.Current()
	if eng == nil {
		return nil, qerr.New(qerr.ErrConnection, "engine cell is empty").
			WithHint("call Refresh on the cell with a connected engine")
	}
	return eng, nil
}

// Col starts a reference to one of the table's own columns.
func (t *Table) Col(name string) *ColumnRef {
	return &ColumnRef{table: t, name: name}
}

// Through starts a foreign-key traversal from one of the table's FK columns.
// Chain further Through calls for deeper paths and finish with Col:
//
//	band.Through("manager_id").Col("name")
func (t *Table) Through(fkColumn string) *PathRef {
	return &PathRef{table: t, hops: []string{fkColumn}}
}

// All selects every column, optionally excluding some. When deep is true the
// expansion recurses into FK-joined tables referenced by the statement.
func (t *Table) All(exclude ...string) *AllColumns {
	ex := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		ex[e] = true
	}
	return &AllColumns{table: t, exclude: ex}
}

// AllColumns is the all-columns selector with an exclusion set.
type AllColumns struct {
	table   *Table
	exclude map[string]bool
}

// PathRef is a partial FK traversal: one or more hops with no terminal
// column yet.
type PathRef struct {
	table *Table
	hops  []string
}

// Through adds another FK hop to the path.
func (p *PathRef) Through(fkColumn string) *PathRef {
	return &PathRef{table: p.table, hops: append(append([]string(nil), p.hops...), fkColumn)}
}

// Col terminates the path at a column of the final joined table.
func (p *PathRef) Col(name string) *ColumnRef {
	return &ColumnRef{table: p.table, hops: p.hops, name: name}
}

// ColumnRef is a fully specified column reference: zero or more FK hops from
// the root table, then a terminal column. Refs are value-like; resolution
// against the registry happens at render time.
type ColumnRef struct {
	table *Table
	hops  []string
	name  string
	alias string // output alias (As)
}

// As sets an explicit output alias for the column.
func (c *ColumnRef) As(alias string) *ColumnRef {
	cp := *c
	cp.alias = alias
	return &cp
}

// PathKey returns the canonical key for the ref's join path. Two refs with
// equal PathKeys traverse the same joins.
func (c *ColumnRef) PathKey() string {
	if len(c.hops) == 0 {
		return c.table.def.QualifiedName()
	}
	return c.table.def.QualifiedName() + "$" + strings.Join(c.hops, "$")
}

// OutputName returns the column's name in result rows: the explicit alias,
// or the dotted path for joined columns ("manager_id.name"), or the bare
// column name.
func (c *ColumnRef) OutputName() string {
	if c.alias != "" {
		return c.alias
	}
	if len(c.hops) == 0 {
		return c.name
	}
	return strings.Join(c.hops, ".") + "." + c.name
}

// sqlName resolves the column's database name (DBName when set). Refs used
// in update expressions are root-table columns; unknown names pass through
// unchanged and fail validation when the statement renders.
func (c *ColumnRef) sqlName() string {
	if col := c.table.def.GetColumn(c.name); col != nil {
		return col.SQLName()
	}
	return c.name
}

// resolved is the outcome of walking a ColumnRef against the registry.
type resolved struct {
	col       *ast.ColumnDef
	joins     []JoinEdge
	tableSQL  string // qualified name of the table the terminal column lives on
	aliasName string // join alias, empty when the column is on the root table
}

// resolve walks the FK hops, producing the terminal column and the ordered
// join edges the statement must include.
func (c *ColumnRef) resolve() (*resolved, error) {
	cur := c.table.def
	reg := c.table.reg
	var joins []JoinEdge
	alias := ""

	for i, hop := range c.hops {
		fkCol := cur.GetColumn(hop)
		if fkCol == nil {
			return nil, qerr.New(qerr.ErrInvalidReference, "unknown column in join path").
				WithTable(cur.Schema, cur.Tablename).
				WithColumn(hop)
		}
		if fkCol.Reference == nil {
			return nil, qerr.Newf(qerr.ErrInvalidReference,
				"column %q is not a foreign key; cannot traverse", hop).
				WithTable(cur.Schema, cur.Tablename)
		}
		if reg == nil {
			return nil, qerr.New(qerr.ErrInvalidReference, "join traversal requires a registry")
		}
		target, err := reg.Resolve(fkCol.Reference.Table, cur.Schema)
		if err != nil {
			return nil, err
		}

		pathKey := c.table.def.QualifiedName() + "$" + strings.Join(c.hops[:i+1], "$")
		nextAlias := joinAlias(c.table.def.Tablename, c.hops[:i+1])
		joins = append(joins, JoinEdge{
			FromTable: cur,
			FromAlias: alias,
			FKColumn:  fkCol.SQLName(),
			ToTable:   target,
			ToColumn:  fkCol.Reference.TargetColumn(),
			Alias:     nextAlias,
			PathKey:   pathKey,
		})
		cur = target
		alias = nextAlias
	}

	terminal := cur.GetColumn(c.name)
	if terminal == nil {
		return nil, qerr.New(qerr.ErrInvalidReference, "unknown column").
			WithTable(cur.Schema, cur.Tablename).
			WithColumn(c.name)
	}
	return &resolved{
		col:       terminal,
		joins:     joins,
		tableSQL:  cur.QualifiedName(),
		aliasName: alias,
	}, nil
}

// joinAlias derives the deterministic alias for a join path:
// band + [manager_id] -> "band$manager_id".
func joinAlias(root string, hops []string) string {
	return root + "$" + strings.Join(hops, "$")
}
