package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// Validation messages shared across TableDef, IndexDef, ForeignKeyDef,
// and the corresponding Operation types (operation.go).
const (
	msgTableNameRequired  = "table name is required"
	msgColumnNameRequired = "column name is required"
	msgTableNeedsColumn   = "table must have at least one column"
	msgIndexNeedsColumn   = "index must have at least one column"
	msgFKNeedsColumn      = "foreign key must have at least one column"
	msgFKNeedsRefTable    = "foreign key must reference a table"
	msgFKNeedsRefColumn   = "foreign key must reference at least one column"
	msgFKColumnCountMatch = "foreign key column count must match referenced column count"
)

// ValidateQualifiedName checks a "schema.table" or "table" reference.
func ValidateQualifiedName(name string) error {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		return ValidateIdentifier(parts[0])
	case 2:
		if err := ValidateIdentifier(parts[0]); err != nil {
			return err
		}
		return ValidateIdentifier(parts[1])
	default:
		return qerr.Newf(qerr.ErrSchemaInvalid,
			"invalid qualified name %q; expected 'table' or 'schema.table'", name)
	}
}

// QualifiedName joins an optional schema and a table name into the canonical
// "schema.table" form used for registry lookups and dependency edges.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// SplitQualifiedName splits "schema.table" into its parts; a bare "table"
// yields an empty schema.
func SplitQualifiedName(qualified string) (schema, name string) {
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "", qualified
}

// -----------------------------------------------------------------------------
// TableDef - complete table definition
// -----------------------------------------------------------------------------

// TableDef represents a complete table definition with columns, indexes, and
// constraints. This is the declared form of a table and the unit the differ
// and the query builders both operate on.
type TableDef struct {
	Tablename   string           `json:"tablename"`
	Schema      string           `json:"schema,omitempty"` // Namespace (Postgres schema; prefix on SQLite)
	Tags        []string         `json:"tags,omitempty"`   // Free-form grouping labels
	Columns     []*ColumnDef     `json:"columns"`          // Column definitions in declaration order
	Indexes     []*IndexDef      `json:"indexes,omitempty"`
	ForeignKeys []*ForeignKeyDef `json:"foreign_keys,omitempty"`
}

// QualifiedName returns the fully qualified reference (schema.table).
func (t *TableDef) QualifiedName() string {
	return QualifiedName(t.Schema, t.Tablename)
}

// MatchesReference returns true if ref matches any of the table's name forms:
// "schema.table", ".table" (explicit empty schema), or bare "table".
func (t *TableDef) MatchesReference(ref string) bool {
	return ref == t.QualifiedName() ||
		ref == "."+t.Tablename ||
		ref == t.Tablename
}

// GetColumn returns the column with the given name, or nil if not found.
func (t *TableDef) GetColumn(name string) *ColumnDef {
	for _, col := range t.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// HasColumn returns true if the table has a column with the given name.
func (t *TableDef) HasColumn(name string) bool {
	return t.GetColumn(name) != nil
}

// PrimaryKey returns the primary key column, or nil if none is declared.
func (t *TableDef) PrimaryKey() *ColumnDef {
	for _, col := range t.Columns {
		if col.PrimaryKey {
			return col
		}
	}
	return nil
}

// Normalize injects the implicit auto-incrementing "id" primary key when no
// primary key column is declared, mirroring the declared-schema contract that
// every table has exactly one PK. Called by the registry before validation.
func (t *TableDef) Normalize() {
	if t.PrimaryKey() != nil {
		return
	}
	id := &ColumnDef{Name: "id", Type: TypeSerial, PrimaryKey: true}
	t.Columns = append([]*ColumnDef{id}, t.Columns...)
}

// Clone returns a deep copy of the table definition. Snapshots replay onto
// clones so the declared schema is never mutated.
func (t *TableDef) Clone() *TableDef {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	cp.Columns = make([]*ColumnDef, len(t.Columns))
	for i, col := range t.Columns {
		cp.Columns[i] = col.Clone()
	}
	cp.Indexes = make([]*IndexDef, len(t.Indexes))
	for i, idx := range t.Indexes {
		c := *idx
		c.Columns = append([]string(nil), idx.Columns...)
		cp.Indexes[i] = &c
	}
	cp.ForeignKeys = make([]*ForeignKeyDef, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		c := *fk
		c.Columns = append([]string(nil), fk.Columns...)
		c.RefColumns = append([]string(nil), fk.RefColumns...)
		cp.ForeignKeys[i] = &c
	}
	return &cp
}

// checkDuplicateColumns returns an error if any column name appears more than once.
func (t *TableDef) checkDuplicateColumns() error {
	seen := make(map[string]bool)
	for _, col := range t.Columns {
		if seen[col.Name] {
			return qerr.New(qerr.ErrSchemaDuplicate, "duplicate column name").
				WithTable(t.Schema, t.Tablename).
				WithColumn(col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// Validate checks that the table definition is well-formed: valid identifiers,
// no duplicate columns, exactly one primary key, and valid indexes and FKs.
func (t *TableDef) Validate() error {
	if t.Tablename == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgTableNameRequired)
	}
	if err := ValidateIdentifier(t.Tablename); err != nil {
		return err
	}
	if t.Schema != "" {
		if err := ValidateIdentifier(t.Schema); err != nil {
			return err
		}
	}
	if len(t.Columns) == 0 {
		return qerr.New(qerr.ErrSchemaInvalid, msgTableNeedsColumn).
			WithTable(t.Schema, t.Tablename)
	}
	if err := t.checkDuplicateColumns(); err != nil {
		return err
	}
	pkCount := 0
	for _, col := range t.Columns {
		if err := col.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid column").
				WithTable(t.Schema, t.Tablename).
				WithColumn(col.Name)
		}
		if col.PrimaryKey {
			pkCount++
		}
	}
	if pkCount != 1 {
		return qerr.Newf(qerr.ErrSchemaInvalid,
			"table must have exactly one primary key column, found %d", pkCount).
			WithTable(t.Schema, t.Tablename).
			WithHint("call Normalize() to inject the implicit serial id column")
	}
	for _, idx := range t.Indexes {
		if err := idx.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid index").
				WithTable(t.Schema, t.Tablename)
		}
		for _, col := range idx.Columns {
			if !t.HasColumn(col) {
				return qerr.Newf(qerr.ErrSchemaInvalid, "index references unknown column %q", col).
					WithTable(t.Schema, t.Tablename)
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		if err := fk.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid foreign key").
				WithTable(t.Schema, t.Tablename)
		}
	}
	return nil
}

// ColumnFingerprint returns a stable structural signature of a column:
// type, type args, and nullability. Two columns with equal fingerprints are
// rename candidates for the differ.
func ColumnFingerprint(c *ColumnDef) string {
	var b strings.Builder
	b.WriteString(c.Type)
	for _, arg := range c.TypeArgs {
		fmt.Fprintf(&b, ":%v", arg)
	}
	if c.Nullable {
		b.WriteString(":null")
	} else {
		b.WriteString(":notnull")
	}
	return b.String()
}

// Fingerprint returns a structural hash of the table: the sorted multiset of
// column fingerprints. Two tables with equal fingerprints are rename
// candidates regardless of table name.
func (t *TableDef) Fingerprint() string {
	parts := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		parts = append(parts, ColumnFingerprint(col))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:8])
}

// -----------------------------------------------------------------------------
// IndexDef - index definition
// -----------------------------------------------------------------------------

// IndexDef represents an index definition.
type IndexDef struct {
	Name    string   `json:"name,omitempty"` // Auto-generated if empty
	Columns []string `json:"columns"`        // Columns to index, in order
	Unique  bool     `json:"unique,omitempty"`
	Method  string   `json:"method,omitempty"` // btree, hash, gin, ... (SQLite ignores)
}

// SQLName returns the index name, generating the conventional
// <table>_<col>__<col>_idx form when none was declared.
func (i *IndexDef) SQLName(table string) string {
	if i.Name != "" {
		return i.Name
	}
	return table + "_" + strings.Join(i.Columns, "__") + "_idx"
}

// Validate checks that the index definition is well-formed.
func (i *IndexDef) Validate() error {
	if len(i.Columns) == 0 {
		return qerr.New(qerr.ErrSchemaInvalid, msgIndexNeedsColumn)
	}
	for _, col := range i.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// ForeignKeyDef - foreign key constraint definition
// -----------------------------------------------------------------------------

// ForeignKeyDef represents a resolved foreign key constraint. Column-level
// References become ForeignKeyDefs during registry resolution; RefTable is
// always a qualified "schema.table" name at that point.
type ForeignKeyDef struct {
	Name       string   `json:"name,omitempty"` // Auto-generated if empty
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"` // Qualified referenced table
	RefColumns []string `json:"ref_columns"`
	OnDelete   string   `json:"on_delete,omitempty"`
	OnUpdate   string   `json:"on_update,omitempty"`
}

// SQLName returns the constraint name, generating the conventional
// <table>_<col>_fkey form when none was declared.
func (fk *ForeignKeyDef) SQLName(table string) string {
	if fk.Name != "" {
		return fk.Name
	}
	return table + "_" + strings.Join(fk.Columns, "__") + "_fkey"
}

// Validate checks that the foreign key definition is well-formed.
func (fk *ForeignKeyDef) Validate() error {
	if len(fk.Columns) == 0 {
		return qerr.New(qerr.ErrSchemaInvalid, msgFKNeedsColumn)
	}
	for _, col := range fk.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return err
		}
	}
	if fk.RefTable == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgFKNeedsRefTable)
	}
	if err := ValidateQualifiedName(fk.RefTable); err != nil {
		return err
	}
	if len(fk.RefColumns) == 0 {
		return qerr.New(qerr.ErrSchemaInvalid, msgFKNeedsRefColumn)
	}
	for _, col := range fk.RefColumns {
		if err := ValidateIdentifier(col); err != nil {
			return err
		}
	}
	if len(fk.Columns) != len(fk.RefColumns) {
		return qerr.New(qerr.ErrSchemaInvalid, msgFKColumnCountMatch).
			With("columns", len(fk.Columns)).
			With("ref_columns", len(fk.RefColumns))
	}
	if _, err := NormalizeFKAction(fk.OnDelete); err != nil {
		return err
	}
	if _, err := NormalizeFKAction(fk.OnUpdate); err != nil {
		return err
	}
	return nil
}
