package engine

import (
	"reflect"
	"sort"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// RenameCandidate is a drop+add pair the differ believes is really a rename.
type RenameCandidate struct {
	Kind    string // "table" or "column"
	Schema  string
	Table   string // set for column renames
	OldName string
	NewName string
}

// DetectRenames inspects a diff for drop+add pairs that are structurally the
// same object under a new name. Detection is conservative: a pair matches
// only when the dropped and added definitions are identical apart from the
// name, and the match is unambiguous. Multiple equally-good matches surface
// as E3005 so a human decides instead of the engine guessing.
func DetectRenames(ops []ast.Operation) ([]RenameCandidate, error) {
	var candidates []RenameCandidate

	columnRenames, err := detectColumnRenames(ops)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, columnRenames...)

	tableRenames, err := detectTableRenames(ops)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, tableRenames...)

	return candidates, nil
}

func detectColumnRenames(ops []ast.Operation) ([]RenameCandidate, error) {
	type colOp struct {
		schema, table string
		col           *ast.ColumnDef
	}
	var drops, adds []colOp
	for _, op := range ops {
		switch o := op.(type) {
		case *ast.DropColumn:
			if o.Dropped != nil {
				drops = append(drops, colOp{o.Schema, o.Table_, o.Dropped})
			}
		case *ast.AddColumn:
			adds = append(adds, colOp{o.Schema, o.Table_, o.Column})
		}
	}

	var candidates []RenameCandidate
	usedAdds := make(map[int]bool)
	for _, drop := range drops {
		var matches []int
		for ai, add := range adds {
			if usedAdds[ai] || drop.schema != add.schema || drop.table != add.table {
				continue
			}
			if columnsStructurallyEqual(drop.col, add.col) {
				matches = append(matches, ai)
			}
		}
		switch len(matches) {
		case 0:
			// Genuine drop.
		case 1:
			usedAdds[matches[0]] = true
			candidates = append(candidates, RenameCandidate{
				Kind:    "column",
				Schema:  drop.schema,
				Table:   drop.table,
				OldName: drop.col.Name,
				NewName: adds[matches[0]].col.Name,
			})
		default:
			names := make([]string, len(matches))
			for i, ai := range matches {
				names[i] = adds[ai].col.Name
			}
			sort.Strings(names)
			return nil, qerr.Newf(qerr.ErrAmbiguousRename,
				"dropped column %q matches multiple added columns %v; rename one at a time",
				drop.col.Name, names).
				WithTable(drop.schema, drop.table)
		}
	}
	return candidates, nil
}

// columnsStructurallyEqual compares everything but the name.
func columnsStructurallyEqual(a, b *ast.ColumnDef) bool {
	if a.Type != b.Type || !reflect.DeepEqual(a.TypeArgs, b.TypeArgs) {
		return false
	}
	if a.Nullable != b.Nullable || a.Unique != b.Unique || a.PrimaryKey != b.PrimaryKey {
		return false
	}
	if a.DefaultSet != b.DefaultSet || !ast.DefaultsEqual(a.Default, b.Default) {
		return false
	}
	if (a.Reference == nil) != (b.Reference == nil) {
		return false
	}
	if a.Reference != nil && *a.Reference != *b.Reference {
		return false
	}
	return true
}

func detectTableRenames(ops []ast.Operation) ([]RenameCandidate, error) {
	type tableOp struct {
		schema, name string
		def          *ast.TableDef
	}
	var drops, creates []tableOp
	for _, op := range ops {
		switch o := op.(type) {
		case *ast.DropTable:
			if o.Dropped != nil {
				drops = append(drops, tableOp{o.Schema, o.Name, o.Dropped})
			}
		case *ast.CreateTable:
			creates = append(creates, tableOp{o.Schema, o.Name, &ast.TableDef{
				Schema:      o.Schema,
				Tablename:   o.Name,
				Columns:     o.Columns,
				Indexes:     o.Indexes,
				ForeignKeys: o.ForeignKeys,
			}})
		}
	}

	var candidates []RenameCandidate
	usedCreates := make(map[int]bool)
	for _, drop := range drops {
		fingerprint := drop.def.Fingerprint()
		var matches []int
		for ci, create := range creates {
			if usedCreates[ci] || drop.schema != create.schema {
				continue
			}
			if create.def.Fingerprint() == fingerprint {
				matches = append(matches, ci)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			usedCreates[matches[0]] = true
			candidates = append(candidates, RenameCandidate{
				Kind:    "table",
				Schema:  drop.schema,
				OldName: drop.name,
				NewName: creates[matches[0]].name,
			})
		default:
			names := make([]string, len(matches))
			for i, ci := range matches {
				names[i] = creates[ci].name
			}
			sort.Strings(names)
			return nil, qerr.Newf(qerr.ErrAmbiguousRename,
				"dropped table %q matches multiple created tables %v; rename one at a time",
				drop.name, names).
				WithTable(drop.schema, drop.name)
		}
	}
	return candidates, nil
}

// ApplyRenames replaces confirmed drop+add pairs with rename operations. The
// rename is injected at the position of the drop; the paired add disappears.
func ApplyRenames(ops []ast.Operation, confirmed []RenameCandidate) []ast.Operation {
	if len(confirmed) == 0 {
		return ops
	}

	columnRenames := make(map[string]RenameCandidate)
	tableRenames := make(map[string]RenameCandidate)
	for _, r := range confirmed {
		switch r.Kind {
		case "column":
			columnRenames[r.Schema+"."+r.Table+"."+r.OldName] = r
		case "table":
			tableRenames[r.Schema+"."+r.OldName] = r
		}
	}

	var result []ast.Operation
	for _, op := range ops {
		switch o := op.(type) {
		case *ast.DropColumn:
			if r, ok := columnRenames[o.Schema+"."+o.Table_+"."+o.Name]; ok {
				result = append(result, &ast.RenameColumn{
					TableRef: ast.TableRef{Schema: r.Schema, Table_: r.Table},
					OldName:  r.OldName,
					NewName:  r.NewName,
				})
				continue
			}
		case *ast.AddColumn:
			if renameTargetsColumn(columnRenames, o.Schema, o.Table_, o.Column.Name) {
				continue
			}
		case *ast.DropTable:
			if r, ok := tableRenames[o.Schema+"."+o.Name]; ok {
				result = append(result, &ast.RenameTable{
					Schema:  r.Schema,
					OldName: r.OldName,
					NewName: r.NewName,
				})
				continue
			}
		case *ast.CreateTable:
			if renameTargetsTable(tableRenames, o.Schema, o.Name) {
				continue
			}
		}
		result = append(result, op)
	}
	return result
}

func renameTargetsColumn(renames map[string]RenameCandidate, schema, table, newName string) bool {
	for _, r := range renames {
		if r.Schema == schema && r.Table == table && r.NewName == newName {
			return true
		}
	}
	return false
}

func renameTargetsTable(renames map[string]RenameCandidate, schema, newName string) bool {
	for _, r := range renames {
		if r.Schema == schema && r.NewName == newName {
			return true
		}
	}
	return false
}
