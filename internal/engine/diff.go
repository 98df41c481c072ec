package engine

import (
	"reflect"
	"sort"
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/schema"
)

// Diff compares two snapshots and returns the operations that transform old
// into new, in dependency-safe order:
//
//  1. Tables only in new become CreateTable, topologically sorted. Foreign
//     keys forming a creation cycle are stripped from the CREATE and deferred
//     to standalone AddForeignKey operations; self-references stay inline.
//  2. Tables only in old become DropTable, dependents first, carrying the
//     dropped definition for reversal.
//  3. Tables in both are diffed member by member into the narrowest
//     operations: AddColumn, DropColumn, AlterColumnType, AlterColumnDefault,
//     AlterColumnNullable, CreateIndex, DropIndex, Add/DropForeignKey.
func Diff(old, new *Schema) ([]ast.Operation, error) {
	if old == nil {
		old = NewSchema()
	}
	if new == nil {
		new = NewSchema()
	}

	creates, deferredFKs, err := diffCreateTables(old, new)
	if err != nil {
		return nil, err
	}
	drops, err := diffDropTables(old, new)
	if err != nil {
		return nil, err
	}
	alters := diffAlterTables(old, new)

	return orderOperations(append(append(append([]ast.Operation{}, creates...), drops...), append(alters, deferredFKs...)...)), nil
}

// diffCreateTables returns CreateTable operations for tables present only in
// new, in dependency order, plus any foreign keys deferred to break cycles.
func diffCreateTables(old, new *Schema) ([]ast.Operation, []ast.Operation, error) {
	var creates []*ast.CreateTable
	for name, table := range new.Tables {
		if _, exists := old.Tables[name]; exists {
			continue
		}
		def := table.Clone()
		creates = append(creates, &ast.CreateTable{
			TableOp:     ast.TableOp{Schema: def.Schema, Name: def.Tablename},
			Columns:     def.Columns,
			Indexes:     def.Indexes,
			ForeignKeys: def.ForeignKeys,
		})
	}
	sort.Slice(creates, func(i, j int) bool { return creates[i].Table() < creates[j].Table() })

	ordered, deferred, err := orderCreates(creates)
	if err != nil {
		return nil, nil, err
	}
	ops := make([]ast.Operation, len(ordered))
	for i, c := range ordered {
		ops[i] = c
	}
	return ops, deferred, nil
}

type createNode struct {
	op   *ast.CreateTable
	deps []string
}

func (n *createNode) ID() string             { return n.op.Table() }
func (n *createNode) Dependencies() []string { return n.deps }

// orderCreates topologically sorts CreateTable operations. When the tables
// form a reference cycle, the cross-references inside the cycle are stripped
// from the CREATE statements and returned as deferred AddForeignKey
// operations, which restores an acyclic creation order.
func orderCreates(creates []*ast.CreateTable) ([]*ast.CreateTable, []ast.Operation, error) {
	if len(creates) <= 1 {
		return creates, nil, nil
	}

	inSet := make(map[string]*ast.CreateTable, len(creates))
	for _, c := range creates {
		inSet[c.Table()] = c
	}

	nodes := make([]*createNode, len(creates))
	for i, c := range creates {
		nodes[i] = &createNode{op: c, deps: createDeps(c, inSet)}
	}

	sorted, err := TopoSort(nodes)
	if err == nil {
		out := make([]*ast.CreateTable, len(sorted))
		for i, n := range sorted {
			out[i] = n.op
		}
		return out, nil, nil
	}

	// Cycle: find the tables that cannot be ordered and defer their
	// cross-references into the cyclic set.
	cyclic := cyclicTables(nodes)
	var deferred []ast.Operation
	for _, c := range creates {
		if !cyclic[c.Table()] {
			continue
		}
		deferred = append(deferred, splitForeignKeys(c, cyclic)...)
	}
	sort.Slice(deferred, func(i, j int) bool { return deferred[i].Table() < deferred[j].Table() })

	// Re-sort with the stripped references.
	for i, c := range creates {
		nodes[i] = &createNode{op: c, deps: createDeps(c, inSet)}
	}
	sorted, err = TopoSort(nodes)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*ast.CreateTable, len(sorted))
	for i, n := range sorted {
		out[i] = n.op
	}
	return out, deferred, nil
}

// createDeps returns the qualified names of tables in the create set that
// this table references, self excluded.
func createDeps(op *ast.CreateTable, inSet map[string]*ast.CreateTable) []string {
	self := op.Table()
	seen := make(map[string]bool)
	var deps []string

	add := func(ref string) {
		qualified, err := schema.NormalizeReference(ref, op.Schema)
		if err != nil {
			return
		}
		if qualified == self || seen[qualified] {
			return
		}
		if _, ok := inSet[qualified]; !ok {
			return
		}
		seen[qualified] = true
		deps = append(deps, qualified)
	}

	for _, col := range op.Columns {
		if col.Reference != nil {
			add(col.Reference.Table)
		}
	}
	for _, fk := range op.ForeignKeys {
		add(fk.RefTable)
	}
	sort.Strings(deps)
	return deps
}

// splitForeignKeys removes the table's references into the cyclic set and
// returns equivalent AddForeignKey operations. Self-references are kept
// inline; the table exists by the time its own constraint is checked.
func splitForeignKeys(op *ast.CreateTable, cyclic map[string]bool) []ast.Operation {
	self := op.Table()
	flat := strings.ReplaceAll(self, ".", "_")
	var deferred []ast.Operation

	points := func(ref string) bool {
		qualified, err := schema.NormalizeReference(ref, op.Schema)
		if err != nil {
			return false
		}
		return qualified != self && cyclic[qualified]
	}

	for _, col := range op.Columns {
		if col.Reference == nil || !points(col.Reference.Table) {
			continue
		}
		ref := col.Reference
		col.Reference = nil
		qualified, _ := schema.NormalizeReference(ref.Table, op.Schema)
		fk := &ast.ForeignKeyDef{
			Columns:    []string{col.SQLName()},
			RefTable:   qualified,
			RefColumns: []string{ref.TargetColumn()},
			OnDelete:   ref.OnDelete,
			OnUpdate:   ref.OnUpdate,
		}
		fk.Name = fk.SQLName(flat)
		deferred = append(deferred, &ast.AddForeignKey{
			TableRef: ast.TableRef{Schema: op.Schema, Table_: op.Name},
			FK:       fk,
		})
	}

	var kept []*ast.ForeignKeyDef
	for _, fk := range op.ForeignKeys {
		if !points(fk.RefTable) {
			kept = append(kept, fk)
			continue
		}
		qualified, _ := schema.NormalizeReference(fk.RefTable, op.Schema)
		moved := *fk
		moved.RefTable = qualified
		moved.Name = moved.SQLName(flat)
		deferred = append(deferred, &ast.AddForeignKey{
			TableRef: ast.TableRef{Schema: op.Schema, Table_: op.Name},
			FK:       &moved,
		})
	}
	op.ForeignKeys = kept
	return deferred
}

// cyclicTables returns the IDs that Kahn's algorithm could not drain.
func cyclicTables(nodes []*createNode) map[string]bool {
	inDegree := make(map[string]int, len(nodes))
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID()] = true
	}
	for _, n := range nodes {
		count := 0
		for _, dep := range n.deps {
			if ids[dep] {
				count++
			}
		}
		inDegree[n.ID()] = count
	}

	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			if inDegree[n.ID()] != 0 {
				continue
			}
			inDegree[n.ID()] = -1 // drained
			for _, other := range nodes {
				for _, dep := range other.deps {
					if dep == n.ID() {
						inDegree[other.ID()]--
						break
					}
				}
			}
			changed = true
		}
	}

	cyclic := make(map[string]bool)
	for id, degree := range inDegree {
		if degree > 0 {
			cyclic[id] = true
		}
	}
	return cyclic
}

// diffDropTables returns DropTable operations for tables present only in old,
// dependents before their targets so constraints never dangle.
func diffDropTables(old, new *Schema) ([]ast.Operation, error) {
	var dropped []*ast.TableDef
	for name, table := range old.Tables {
		if _, exists := new.Tables[name]; !exists {
			dropped = append(dropped, table)
		}
	}
	sort.Slice(dropped, func(i, j int) bool {
		return dropped[i].QualifiedName() < dropped[j].QualifiedName()
	})

	inSet := make(map[string]*ast.TableDef, len(dropped))
	for _, t := range dropped {
		inSet[t.QualifiedName()] = t
	}
	nodes := make([]*dropNode, len(dropped))
	for i, t := range dropped {
		nodes[i] = &dropNode{def: t, deps: dropDeps(t, inSet)}
	}
	sorted, err := TopoSort(nodes)
	if err != nil {
		// Mutually referencing tables can drop in any order once their
		// constraints are gone; fall back to name order.
		sorted = nodes
	}

	// Reverse: TopoSort puts referenced tables first, drops need them last.
	ops := make([]ast.Operation, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		def := sorted[i].def
		ops = append(ops, &ast.DropTable{
			TableOp: ast.TableOp{Schema: def.Schema, Name: def.Tablename},
			Dropped: def.Clone(),
		})
	}
	return ops, nil
}

type dropNode struct {
	def  *ast.TableDef
	deps []string
}

func (n *dropNode) ID() string             { return n.def.QualifiedName() }
func (n *dropNode) Dependencies() []string { return n.deps }

func dropDeps(def *ast.TableDef, inSet map[string]*ast.TableDef) []string {
	self := def.QualifiedName()
	seen := make(map[string]bool)
	var deps []string
	add := func(ref string) {
		qualified, err := schema.NormalizeReference(ref, def.Schema)
		if err != nil || qualified == self || seen[qualified] {
			return
		}
		if _, ok := inSet[qualified]; !ok {
			return
		}
		seen[qualified] = true
		deps = append(deps, qualified)
	}
	for _, col := range def.Columns {
		if col.Reference != nil {
			add(col.Reference.Table)
		}
	}
	for _, fk := range def.ForeignKeys {
		add(fk.RefTable)
	}
	sort.Strings(deps)
	return deps
}

// diffAlterTables diffs the members of tables present in both snapshots.
func diffAlterTables(old, new *Schema) []ast.Operation {
	var ops []ast.Operation
	for _, name := range new.Names() {
		newTable := new.Tables[name]
		oldTable, exists := old.Tables[name]
		if !exists {
			continue
		}
		ops = append(ops, diffColumns(oldTable, newTable)...)
		ops = append(ops, diffIndexes(oldTable, newTable)...)
		ops = append(ops, diffForeignKeys(oldTable, newTable)...)
	}
	return ops
}

func diffColumns(oldTable, newTable *ast.TableDef) []ast.Operation {
	var ops []ast.Operation
	ref := ast.TableRef{Schema: newTable.Schema, Table_: newTable.Tablename}

	oldCols := make(map[string]*ast.ColumnDef, len(oldTable.Columns))
	for _, c := range oldTable.Columns {
		oldCols[c.Name] = c
	}
	newCols := make(map[string]*ast.ColumnDef, len(newTable.Columns))
	for _, c := range newTable.Columns {
		newCols[c.Name] = c
	}

	// Walk in declaration order for deterministic output.
	for _, col := range newTable.Columns {
		if _, exists := oldCols[col.Name]; !exists {
			ops = append(ops, &ast.AddColumn{TableRef: ref, Column: col.Clone()})
		}
	}
	for _, col := range oldTable.Columns {
		if _, exists := newCols[col.Name]; !exists {
			ops = append(ops, &ast.DropColumn{TableRef: ref, Name: col.Name, Dropped: col.Clone()})
		}
	}
	for _, newCol := range newTable.Columns {
		oldCol, exists := oldCols[newCol.Name]
		if !exists {
			continue
		}
		ops = append(ops, diffColumnDef(ref, oldCol, newCol)...)
	}
	return ops
}

// diffColumnDef emits the narrowest alteration for each changed property so
// partial dialect support (SQLite) fails only on what actually changed.
func diffColumnDef(ref ast.TableRef, oldCol, newCol *ast.ColumnDef) []ast.Operation {
	var ops []ast.Operation

	if oldCol.Type != newCol.Type || !reflect.DeepEqual(oldCol.TypeArgs, newCol.TypeArgs) {
		ops = append(ops, &ast.AlterColumnType{
			TableRef:    ref,
			Name:        newCol.Name,
			OldType:     oldCol.Type,
			OldTypeArgs: oldCol.TypeArgs,
			NewType:     newCol.Type,
			NewTypeArgs: newCol.TypeArgs,
		})
	}
	if oldCol.Nullable != newCol.Nullable {
		ops = append(ops, &ast.AlterColumnNullable{
			TableRef: ref,
			Name:     newCol.Name,
			Nullable: newCol.Nullable,
		})
	}
	if !ast.DefaultsEqual(oldCol.Default, newCol.Default) || oldCol.DefaultSet != newCol.DefaultSet {
		ops = append(ops, &ast.AlterColumnDefault{
			TableRef:   ref,
			Name:       newCol.Name,
			OldDefault: oldCol.Default,
			OldSet:     oldCol.DefaultSet,
			NewDefault: newCol.Default,
			NewSet:     newCol.DefaultSet,
		})
	}
	return ops
}

func diffIndexes(oldTable, newTable *ast.TableDef) []ast.Operation {
	var ops []ast.Operation
	ref := ast.TableRef{Schema: newTable.Schema, Table_: newTable.Tablename}
	flat := strings.ReplaceAll(newTable.QualifiedName(), ".", "_")

	oldIdx := indexMap(oldTable)
	newIdx := indexMap(newTable)

	for _, idx := range newTable.Indexes {
		if _, exists := oldIdx[indexKey(idx)]; !exists {
			ops = append(ops, &ast.CreateIndex{TableRef: ref, Index: idx})
		}
	}
	for _, idx := range oldTable.Indexes {
		if _, exists := newIdx[indexKey(idx)]; !exists {
			ops = append(ops, &ast.DropIndex{TableRef: ref, Name: idx.SQLName(flat), Dropped: idx})
		}
	}
	return ops
}

func indexMap(table *ast.TableDef) map[string]*ast.IndexDef {
	m := make(map[string]*ast.IndexDef, len(table.Indexes))
	for _, idx := range table.Indexes {
		m[indexKey(idx)] = idx
	}
	return m
}

// indexKey identifies an index by structure, not name: two indexes on the
// same columns with the same uniqueness are the same index.
func indexKey(idx *ast.IndexDef) string {
	key := strings.Join(idx.Columns, ",")
	if idx.Unique {
		key = "unique:" + key
	}
	if idx.Method != "" {
		key += ":" + idx.Method
	}
	return key
}

func diffForeignKeys(oldTable, newTable *ast.TableDef) []ast.Operation {
	var ops []ast.Operation
	ref := ast.TableRef{Schema: newTable.Schema, Table_: newTable.Tablename}
	flat := strings.ReplaceAll(newTable.QualifiedName(), ".", "_")

	oldFKs := extractForeignKeys(oldTable)
	newFKs := extractForeignKeys(newTable)

	var addKeys, dropKeys []string
	for key := range newFKs {
		if _, exists := oldFKs[key]; !exists {
			addKeys = append(addKeys, key)
		}
	}
	for key := range oldFKs {
		if _, exists := newFKs[key]; !exists {
			dropKeys = append(dropKeys, key)
		}
	}
	sort.Strings(addKeys)
	sort.Strings(dropKeys)

	for _, key := range dropKeys {
		fk := oldFKs[key]
		ops = append(ops, &ast.DropForeignKey{TableRef: ref, Name: fk.SQLName(flat), Dropped: fk})
	}
	for _, key := range addKeys {
		ops = append(ops, &ast.AddForeignKey{TableRef: ref, FK: newFKs[key]})
	}
	return ops
}

// extractForeignKeys collects the table's constraints from both column
// references and explicit ForeignKeyDefs, keyed by structure.
func extractForeignKeys(table *ast.TableDef) map[string]*ast.ForeignKeyDef {
	fks := make(map[string]*ast.ForeignKeyDef)
	add := func(fk *ast.ForeignKeyDef) {
		qualified, err := schema.NormalizeReference(fk.RefTable, table.Schema)
		if err != nil {
			qualified = fk.RefTable
		}
		normalized := *fk
		normalized.RefTable = qualified
		key := strings.Join(fk.Columns, ",") + "->" + qualified + "(" +
			strings.Join(fk.RefColumns, ",") + "):" + fk.OnDelete + ":" + fk.OnUpdate
		fks[key] = &normalized
	}
	for _, col := range table.Columns {
		if col.Reference == nil {
			continue
		}
		add(&ast.ForeignKeyDef{
			Columns:    []string{col.SQLName()},
			RefTable:   col.Reference.Table,
			RefColumns: []string{col.Reference.TargetColumn()},
			OnDelete:   col.Reference.OnDelete,
			OnUpdate:   col.Reference.OnUpdate,
		})
	}
	for _, fk := range table.ForeignKeys {
		add(fk)
	}
	return fks
}

// orderOperations arranges operations into dependency-safe phases: drops
// narrow to wide first, then creates wide to narrow, constraints last.
func orderOperations(ops []ast.Operation) []ast.Operation {
	phase := func(op ast.Operation) int {
		switch op.Type() {
		case ast.OpDropForeignKey:
			return 0
		case ast.OpDropIndex:
			return 1
		case ast.OpDropColumn:
			return 2
		case ast.OpDropTable:
			return 3
		case ast.OpCreateTable:
			return 4
		case ast.OpRenameTable, ast.OpChangeSchema:
			return 5
		case ast.OpAddColumn, ast.OpRenameColumn:
			return 6
		case ast.OpAlterColumnType, ast.OpAlterColumnDefault, ast.OpAlterColumnNullable:
			return 7
		case ast.OpCreateIndex:
			return 8
		case ast.OpAddForeignKey:
			return 9
		default:
			return 10
		}
	}
	sorted := make([]ast.Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return phase(sorted[i]) < phase(sorted[j])
	})
	return sorted
}

// DiffSummary counts the operations in a diff by kind.
type DiffSummary struct {
	TablesToCreate  int
	TablesToDrop    int
	TablesToRename  int
	ColumnsToAdd    int
	ColumnsToDrop   int
	ColumnsToRename int
	ColumnsToAlter  int
	IndexesToAdd    int
	IndexesToDrop   int
	FKsToAdd        int
	FKsToDrop       int
	RawStatements   int
	TotalOps        int
}

// Summarize tallies a diff for status output.
func Summarize(ops []ast.Operation) DiffSummary {
	s := DiffSummary{TotalOps: len(ops)}
	for _, op := range ops {
		switch op.Type() {
		case ast.OpCreateTable:
			s.TablesToCreate++
		case ast.OpDropTable:
			s.TablesToDrop++
		case ast.OpRenameTable, ast.OpChangeSchema:
			s.TablesToRename++
		case ast.OpAddColumn:
			s.ColumnsToAdd++
		case ast.OpDropColumn:
			s.ColumnsToDrop++
		case ast.OpRenameColumn:
			s.ColumnsToRename++
		case ast.OpAlterColumnType, ast.OpAlterColumnDefault, ast.OpAlterColumnNullable:
			s.ColumnsToAlter++
		case ast.OpCreateIndex:
			s.IndexesToAdd++
		case ast.OpDropIndex:
			s.IndexesToDrop++
		case ast.OpAddForeignKey:
			s.FKsToAdd++
		case ast.OpDropForeignKey:
			s.FKsToDrop++
		case ast.OpRawSQL:
			s.RawStatements++
		}
	}
	return s
}

// HasChanges reports whether the diff contains any operations.
func HasChanges(ops []ast.Operation) bool {
	return len(ops) > 0
}
