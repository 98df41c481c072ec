// Package drift detects schema drift by hashing snapshots into merkle trees:
// a root hash answers "anything changed?" in one comparison, and the
// per-table hashes underneath pinpoint what moved without walking every
// definition.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/cbergoon/merkletree"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/engine"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Fingerprint is the hierarchical hash of a schema snapshot: one merkle root
// over all tables, plus per-table hashes for drill-down.
type Fingerprint struct {
	Root   string
	Tables map[string]*TableFingerprint
}

// TableFingerprint hashes one table and its members.
type TableFingerprint struct {
	Name    string
	Hash    string
	Columns map[string]string
	Indexes map[string]string
	FKs     map[string]string
}

// leaf implements merkletree.Content over a precomputed table hash.
type leaf struct {
	hash string
}

func (l leaf) CalculateHash() ([]byte, error) {
	sum := sha256.Sum256([]byte(l.hash))
	return sum[:], nil
}

func (l leaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leaf)
	return ok && l.hash == o.hash, nil
}

// Hash computes the fingerprint of a snapshot. Equal snapshots always hash
// the same: every member list is sorted before hashing.
func Hash(schema *engine.Schema) (*Fingerprint, error) {
	fp := &Fingerprint{Tables: make(map[string]*TableFingerprint)}
	if schema == nil || len(schema.Tables) == 0 {
		fp.Root = emptyRoot()
		return fp, nil
	}

	var leaves []merkletree.Content
	for _, name := range schema.Names() {
		th := hashTable(schema.Tables[name])
		fp.Tables[name] = th
		leaves = append(leaves, leaf{hash: th.Hash})
	}

	tree, err := merkletree.NewTree(leaves)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrSchemaInvalid, err, "cannot build schema hash tree")
	}
	fp.Root = hex.EncodeToString(tree.MerkleRoot())
	return fp, nil
}

func hashTable(table *ast.TableDef) *TableFingerprint {
	flat := strings.ReplaceAll(table.QualifiedName(), ".", "_")
	fp := &TableFingerprint{
		Name:    table.QualifiedName(),
		Columns: make(map[string]string),
		Indexes: make(map[string]string),
		FKs:     make(map[string]string),
	}

	var colParts []string
	for _, col := range table.Columns {
		fp.Columns[col.Name] = hashColumn(col)
	}
	for _, name := range sortedKeys(fp.Columns) {
		colParts = append(colParts, name+":"+fp.Columns[name])
	}

	var idxParts []string
	for _, idx := range table.Indexes {
		fp.Indexes[idx.SQLName(flat)] = hashIndex(idx)
	}
	for _, name := range sortedKeys(fp.Indexes) {
		idxParts = append(idxParts, name+":"+fp.Indexes[name])
	}

	var fkParts []string
	for _, fk := range table.ForeignKeys {
		fp.FKs[fk.SQLName(flat)] = hashForeignKey(fk)
	}
	for _, col := range table.Columns {
		if col.Reference == nil {
			continue
		}
		implied := &ast.ForeignKeyDef{
			Columns:    []string{col.SQLName()},
			RefTable:   col.Reference.Table,
			RefColumns: []string{col.Reference.TargetColumn()},
			OnDelete:   col.Reference.OnDelete,
			OnUpdate:   col.Reference.OnUpdate,
		}
		fp.FKs[implied.SQLName(flat)] = hashForeignKey(implied)
	}
	for _, name := range sortedKeys(fp.FKs) {
		fkParts = append(fkParts, name+":"+fp.FKs[name])
	}

	fp.Hash = hashString(fmt.Sprintf("table:%s|columns:[%s]|indexes:[%s]|fks:[%s]",
		table.QualifiedName(),
		strings.Join(colParts, ","),
		strings.Join(idxParts, ","),
		strings.Join(fkParts, ",")))
	return fp
}

func hashColumn(col *ast.ColumnDef) string {
	data := fmt.Sprintf("name:%s|type:%s|nullable:%v|unique:%v|pk:%v",
		col.SQLName(), typeSignature(col.Type, col.TypeArgs),
		col.Nullable, col.Unique, col.PrimaryKey)
	if col.DefaultSet {
		data += "|default:" + ast.CanonicalDefault(col.Default)
	}
	return hashString(data)
}

func hashIndex(idx *ast.IndexDef) string {
	data := fmt.Sprintf("columns:[%s]|unique:%v", strings.Join(idx.Columns, ","), idx.Unique)
	if idx.Method != "" {
		data += "|method:" + idx.Method
	}
	return hashString(data)
}

func hashForeignKey(fk *ast.ForeignKeyDef) string {
	return hashString(fmt.Sprintf("columns:[%s]|ref:%s(%s)|on_delete:%s|on_update:%s",
		strings.Join(fk.Columns, ","), fk.RefTable,
		strings.Join(fk.RefColumns, ","), fk.OnDelete, fk.OnUpdate))
}

func typeSignature(typeTag string, args []any) string {
	if len(args) == 0 {
		return typeTag
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}
	return typeTag + "(" + strings.Join(parts, ",") + ")"
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func emptyRoot() string {
	return hashString("empty_schema")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Report is the outcome of comparing an expected fingerprint (what the
// migration history says the schema should be) against the actual one (what
// the declared schema, or an introspected database, says it is).
type Report struct {
	Match         bool
	ExpectedRoot  string
	ActualRoot    string
	MissingTables []string // expected but absent
	ExtraTables   []string // present but not expected
	TableDrift    map[string]*TableDrift
}

// TableDrift drills into a single drifted table.
type TableDrift struct {
	Name            string
	MissingColumns  []string
	ExtraColumns    []string
	ModifiedColumns []string
	MissingIndexes  []string
	ExtraIndexes    []string
	ModifiedIndexes []string
	MissingFKs      []string
	ExtraFKs        []string
	ModifiedFKs     []string
}

// HasDrift reports whether the table differs at all.
func (d *TableDrift) HasDrift() bool {
	return len(d.MissingColumns)+len(d.ExtraColumns)+len(d.ModifiedColumns)+
		len(d.MissingIndexes)+len(d.ExtraIndexes)+len(d.ModifiedIndexes)+
		len(d.MissingFKs)+len(d.ExtraFKs)+len(d.ModifiedFKs) > 0
}

// Compare diffs two fingerprints. A matching root short-circuits; otherwise
// only the tables whose hashes differ are drilled into.
func Compare(expected, actual *Fingerprint) *Report {
	report := &Report{
		Match:        expected.Root == actual.Root,
		ExpectedRoot: expected.Root,
		ActualRoot:   actual.Root,
		TableDrift:   make(map[string]*TableDrift),
	}
	if report.Match {
		return report
	}

	for name := range expected.Tables {
		if _, ok := actual.Tables[name]; !ok {
			report.MissingTables = append(report.MissingTables, name)
		}
	}
	for name := range actual.Tables {
		if _, ok := expected.Tables[name]; !ok {
			report.ExtraTables = append(report.ExtraTables, name)
		}
	}
	sort.Strings(report.MissingTables)
	sort.Strings(report.ExtraTables)

	for name, want := range expected.Tables {
		got, ok := actual.Tables[name]
		if !ok || want.Hash == got.Hash {
			continue
		}
		report.TableDrift[name] = compareTables(want, got)
	}
	return report
}

// Detect hashes both snapshots and compares them in one step.
func Detect(expected, actual *engine.Schema) (*Report, error) {
	wantFP, err := Hash(expected)
	if err != nil {
		return nil, err
	}
	gotFP, err := Hash(actual)
	if err != nil {
		return nil, err
	}
	return Compare(wantFP, gotFP), nil
}

func compareTables(expected, actual *TableFingerprint) *TableDrift {
	d := &TableDrift{Name: expected.Name}
	d.MissingColumns, d.ExtraColumns, d.ModifiedColumns = diffHashes(expected.Columns, actual.Columns)
	d.MissingIndexes, d.ExtraIndexes, d.ModifiedIndexes = diffHashes(expected.Indexes, actual.Indexes)
	d.MissingFKs, d.ExtraFKs, d.ModifiedFKs = diffHashes(expected.FKs, actual.FKs)
	return d
}

// Summary flattens the report into display lines, one finding each.
func (r *Report) Summary() []string {
	if r.Match {
		return []string{"schema matches migration history"}
	}
	var lines []string
	for _, name := range r.MissingTables {
		lines = append(lines, fmt.Sprintf("table %s is missing", name))
	}
	for _, name := range r.ExtraTables {
		lines = append(lines, fmt.Sprintf("table %s is not in the migration history", name))
	}
	drifted := make([]string, 0, len(r.TableDrift))
	for name := range r.TableDrift {
		drifted = append(drifted, name)
	}
	sort.Strings(drifted)
	for _, name := range drifted {
		d := r.TableDrift[name]
		add := func(kind string, missing, extra, modified []string) {
			for _, n := range missing {
				lines = append(lines, fmt.Sprintf("table %s: %s %s is missing", name, kind, n))
			}
			for _, n := range extra {
				lines = append(lines, fmt.Sprintf("table %s: unexpected %s %s", name, kind, n))
			}
			for _, n := range modified {
				lines = append(lines, fmt.Sprintf("table %s: %s %s differs", name, kind, n))
			}
		}
		add("column", d.MissingColumns, d.ExtraColumns, d.ModifiedColumns)
		add("index", d.MissingIndexes, d.ExtraIndexes, d.ModifiedIndexes)
		add("constraint", d.MissingFKs, d.ExtraFKs, d.ModifiedFKs)
	}
	return lines
}

func diffHashes(expected, actual map[string]string) (missing, extra, modified []string) {
	for name, hash := range expected {
		got, ok := actual[name]
		switch {
		case !ok:
			missing = append(missing, name)
		case got != hash:
			modified = append(modified, name)
		}
	}
	for name := range actual {
		if _, ok := expected[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	sort.Strings(modified)
	return missing, extra, modified
}
