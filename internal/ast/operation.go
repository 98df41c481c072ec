package ast

import (
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Operation represents a single atomic change to the database schema.
// Every schema change is expressed as an Operation before being rendered to
// SQL by a dialect or replayed onto a snapshot by the engine.
//
// Operations are self-describing for reversal: Invert returns the operation
// that undoes this one. Drop* operations carry the full dropped definition so
// the inversion can reconstruct what was removed.
type Operation interface {
	// Type returns the operation type (OpCreateTable, OpAddColumn, etc.)
	Type() OpType

	// Table returns the qualified table name ("schema.table"). For operations
	// that don't target a specific table (RawSQL), this returns an empty string.
	Table() string

	// Validate checks that the operation is well-formed.
	Validate() error

	// Invert returns the operation that undoes this one, or an error with
	// code E3004 when the operation is irreversible as recorded.
	Invert() (Operation, error)
}

// -----------------------------------------------------------------------------
// Embedded types for DRY operation definitions
// -----------------------------------------------------------------------------

// TableOp provides common Schema+Name fields for table-level operations.
// Operations that create or drop tables embed this type.
type TableOp struct {
	Schema string `json:"schema,omitempty"`
	Name   string `json:"name"`
}

// Table returns the qualified table name.
func (t TableOp) Table() string {
	return QualifiedName(t.Schema, t.Name)
}

// TableRef provides common Schema+Table_ fields for column/index/constraint
// operations. Operations that target members of a table embed this type.
type TableRef struct {
	Schema string `json:"schema,omitempty"`
	Table_ string `json:"table"`
}

// Table returns the qualified table name.
func (t TableRef) Table() string {
	return QualifiedName(t.Schema, t.Table_)
}

// -----------------------------------------------------------------------------
// CreateTable / DropTable
// -----------------------------------------------------------------------------

// CreateTable represents creating a new table with columns, indexes, and
// constraints. When the table participates in a foreign key cycle the engine
// strips the circular ForeignKeys entries and emits deferred AddForeignKey
// operations instead; self-references stay inline.
type CreateTable struct {
	TableOp
	Columns     []*ColumnDef     `json:"columns"`
	Indexes     []*IndexDef      `json:"indexes,omitempty"`
	ForeignKeys []*ForeignKeyDef `json:"foreign_keys,omitempty"`
	IfNotExists bool             `json:"if_not_exists,omitempty"`
}

func (op *CreateTable) Type() OpType { return OpCreateTable }

func (op *CreateTable) Validate() error {
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgTableNameRequired)
	}
	if len(op.Columns) == 0 {
		return qerr.New(qerr.ErrSchemaInvalid, msgTableNeedsColumn).
			WithTable(op.Schema, op.Name)
	}
	for _, col := range op.Columns {
		if err := col.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid column").
				WithTable(op.Schema, op.Name).
				WithColumn(col.Name)
		}
	}
	for _, idx := range op.Indexes {
		if err := idx.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid index").
				WithTable(op.Schema, op.Name)
		}
	}
	for _, fk := range op.ForeignKeys {
		if err := fk.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid foreign key").
				WithTable(op.Schema, op.Name)
		}
	}
	return nil
}

func (op *CreateTable) Invert() (Operation, error) {
	return &DropTable{
		TableOp: op.TableOp,
		Dropped: op.tableDef(),
	}, nil
}

func (op *CreateTable) tableDef() *TableDef {
	return &TableDef{
		Schema:      op.Schema,
		Tablename:   op.Name,
		Columns:     op.Columns,
		Indexes:     op.Indexes,
		ForeignKeys: op.ForeignKeys,
	}
}

// DropTable represents dropping an existing table. Dropped carries the full
// definition at drop time so the operation can be inverted.
type DropTable struct {
	TableOp
	IfExists bool      `json:"if_exists,omitempty"`
	Dropped  *TableDef `json:"dropped,omitempty"`
}

func (op *DropTable) Type() OpType { return OpDropTable }

func (op *DropTable) Validate() error {
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for drop")
	}
	return nil
}

func (op *DropTable) Invert() (Operation, error) {
	if op.Dropped == nil {
		return nil, qerr.New(qerr.ErrIrreversible,
			"cannot invert DropTable without the dropped table definition").
			WithTable(op.Schema, op.Name)
	}
	return &CreateTable{
		TableOp:     op.TableOp,
		Columns:     op.Dropped.Columns,
		Indexes:     op.Dropped.Indexes,
		ForeignKeys: op.Dropped.ForeignKeys,
	}, nil
}

// -----------------------------------------------------------------------------
// RenameTable / ChangeSchema
// -----------------------------------------------------------------------------

// RenameTable represents renaming an existing table within its schema.
type RenameTable struct {
	Schema  string `json:"schema,omitempty"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (op *RenameTable) Type() OpType { return OpRenameTable }

func (op *RenameTable) Table() string {
	return QualifiedName(op.Schema, op.OldName)
}

func (op *RenameTable) Validate() error {
	if op.OldName == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "old table name is required for rename")
	}
	if op.NewName == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "new table name is required for rename")
	}
	if op.OldName == op.NewName {
		return qerr.New(qerr.ErrSchemaInvalid, "old and new table names must be different").
			WithTable(op.Schema, op.OldName)
	}
	return nil
}

func (op *RenameTable) Invert() (Operation, error) {
	return &RenameTable{Schema: op.Schema, OldName: op.NewName, NewName: op.OldName}, nil
}

// ChangeSchema represents moving a table to a different schema namespace.
type ChangeSchema struct {
	Name      string `json:"name"`
	OldSchema string `json:"old_schema,omitempty"`
	NewSchema string `json:"new_schema,omitempty"`
}

func (op *ChangeSchema) Type() OpType { return OpChangeSchema }

func (op *ChangeSchema) Table() string {
	return QualifiedName(op.OldSchema, op.Name)
}

func (op *ChangeSchema) Validate() error {
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for schema change")
	}
	if op.OldSchema == op.NewSchema {
		return qerr.New(qerr.ErrSchemaInvalid, "old and new schemas must be different").
			WithTable(op.OldSchema, op.Name)
	}
	return nil
}

func (op *ChangeSchema) Invert() (Operation, error) {
	return &ChangeSchema{Name: op.Name, OldSchema: op.NewSchema, NewSchema: op.OldSchema}, nil
}

// -----------------------------------------------------------------------------
// AddColumn / DropColumn / RenameColumn
// -----------------------------------------------------------------------------

// AddColumn represents adding a new column to an existing table.
type AddColumn struct {
	TableRef
	Column *ColumnDef `json:"column"`
}

func (op *AddColumn) Type() OpType { return OpAddColumn }

func (op *AddColumn) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for add column")
	}
	if op.Column == nil {
		return qerr.New(qerr.ErrSchemaInvalid, "column definition is required").
			WithTable(op.Schema, op.Table_)
	}
	if err := op.Column.Validate(); err != nil {
		return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid column").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Column.Name)
	}
	return nil
}

func (op *AddColumn) Invert() (Operation, error) {
	return &DropColumn{
		TableRef: op.TableRef,
		Name:     op.Column.Name,
		Dropped:  op.Column,
	}, nil
}

// DropColumn represents removing a column from an existing table.
// Dropped carries the definition at drop time for reversal.
type DropColumn struct {
	TableRef
	Name    string     `json:"name"`
	Dropped *ColumnDef `json:"dropped,omitempty"`
}

func (op *DropColumn) Type() OpType { return OpDropColumn }

func (op *DropColumn) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for drop column")
	}
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "column name is required for drop column").
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *DropColumn) Invert() (Operation, error) {
	if op.Dropped == nil {
		return nil, qerr.New(qerr.ErrIrreversible,
			"cannot invert DropColumn without the dropped column definition").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Name)
	}
	return &AddColumn{TableRef: op.TableRef, Column: op.Dropped}, nil
}

// RenameColumn represents renaming a column in an existing table.
type RenameColumn struct {
	TableRef
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (op *RenameColumn) Type() OpType { return OpRenameColumn }

func (op *RenameColumn) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for rename column")
	}
	if op.OldName == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "old column name is required for rename").
			WithTable(op.Schema, op.Table_)
	}
	if op.NewName == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "new column name is required for rename").
			WithTable(op.Schema, op.Table_)
	}
	if op.OldName == op.NewName {
		return qerr.New(qerr.ErrSchemaInvalid, "old and new column names must be different").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.OldName)
	}
	return nil
}

func (op *RenameColumn) Invert() (Operation, error) {
	return &RenameColumn{TableRef: op.TableRef, OldName: op.NewName, NewName: op.OldName}, nil
}

// -----------------------------------------------------------------------------
// AlterColumnType / AlterColumnDefault / AlterColumnNullable
// -----------------------------------------------------------------------------

// AlterColumnType represents changing a column's value type. Old* fields
// record the previous type so the operation can be inverted; Using optionally
// overrides the cast expression on dialects that support it.
type AlterColumnType struct {
	TableRef
	Name        string `json:"name"`
	OldType     string `json:"old_type"`
	OldTypeArgs []any  `json:"old_type_args,omitempty"`
	NewType     string `json:"new_type"`
	NewTypeArgs []any  `json:"new_type_args,omitempty"`
	Using       string `json:"using,omitempty"`
}

func (op *AlterColumnType) Type() OpType { return OpAlterColumnType }

func (op *AlterColumnType) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for alter column type")
	}
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgColumnNameRequired).
			WithTable(op.Schema, op.Table_)
	}
	if op.NewType == "" || !ValueTypes[op.NewType] {
		return qerr.Newf(qerr.ErrSchemaInvalid, "unknown column type %q", op.NewType).
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Name)
	}
	return nil
}

func (op *AlterColumnType) Invert() (Operation, error) {
	if op.OldType == "" {
		return nil, qerr.New(qerr.ErrIrreversible,
			"cannot invert AlterColumnType without the previous type").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Name)
	}
	return &AlterColumnType{
		TableRef:    op.TableRef,
		Name:        op.Name,
		OldType:     op.NewType,
		OldTypeArgs: op.NewTypeArgs,
		NewType:     op.OldType,
		NewTypeArgs: op.OldTypeArgs,
	}, nil
}

// AlterColumnDefault represents setting or dropping a column's default value.
// NewSet=false drops the default; OldDefault/OldSet record the previous state.
type AlterColumnDefault struct {
	TableRef
	Name       string `json:"name"`
	OldDefault any    `json:"old_default,omitempty"`
	OldSet     bool   `json:"old_set,omitempty"`
	NewDefault any    `json:"new_default,omitempty"`
	NewSet     bool   `json:"new_set,omitempty"`
}

func (op *AlterColumnDefault) Type() OpType { return OpAlterColumnDefault }

func (op *AlterColumnDefault) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for alter column default")
	}
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgColumnNameRequired).
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *AlterColumnDefault) Invert() (Operation, error) {
	return &AlterColumnDefault{
		TableRef:   op.TableRef,
		Name:       op.Name,
		OldDefault: op.NewDefault,
		OldSet:     op.NewSet,
		NewDefault: op.OldDefault,
		NewSet:     op.OldSet,
	}, nil
}

// AlterColumnNullable represents toggling a column's NOT NULL constraint.
type AlterColumnNullable struct {
	TableRef
	Name     string `json:"name"`
	Nullable bool   `json:"nullable"` // Target state
}

func (op *AlterColumnNullable) Type() OpType { return OpAlterColumnNullable }

func (op *AlterColumnNullable) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for alter column nullable")
	}
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, msgColumnNameRequired).
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *AlterColumnNullable) Invert() (Operation, error) {
	return &AlterColumnNullable{TableRef: op.TableRef, Name: op.Name, Nullable: !op.Nullable}, nil
}

// -----------------------------------------------------------------------------
// CreateIndex / DropIndex
// -----------------------------------------------------------------------------

// CreateIndex represents creating a new index on one or more columns.
type CreateIndex struct {
	TableRef
	Index       *IndexDef `json:"index"`
	IfNotExists bool      `json:"if_not_exists,omitempty"`
}

func (op *CreateIndex) Type() OpType { return OpCreateIndex }

func (op *CreateIndex) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for create index")
	}
	if op.Index == nil {
		return qerr.New(qerr.ErrSchemaInvalid, "index definition is required").
			WithTable(op.Schema, op.Table_)
	}
	if err := op.Index.Validate(); err != nil {
		return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid index").
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *CreateIndex) Invert() (Operation, error) {
	return &DropIndex{
		TableRef: op.TableRef,
		Name:     op.Index.SQLName(op.Table_),
		Dropped:  op.Index,
	}, nil
}

// DropIndex represents removing an existing index. Dropped carries the
// definition for reversal.
type DropIndex struct {
	TableRef
	Name     string    `json:"name"`
	IfExists bool      `json:"if_exists,omitempty"`
	Dropped  *IndexDef `json:"dropped,omitempty"`
}

func (op *DropIndex) Type() OpType { return OpDropIndex }

func (op *DropIndex) Validate() error {
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "index name is required for drop index")
	}
	return nil
}

func (op *DropIndex) Invert() (Operation, error) {
	if op.Dropped == nil {
		return nil, qerr.New(qerr.ErrIrreversible,
			"cannot invert DropIndex without the dropped index definition").
			WithTable(op.Schema, op.Table_).
			With("index", op.Name)
	}
	return &CreateIndex{TableRef: op.TableRef, Index: op.Dropped}, nil
}

// -----------------------------------------------------------------------------
// AddForeignKey / DropForeignKey
// -----------------------------------------------------------------------------

// AddForeignKey represents adding a foreign key constraint. Emitted standalone
// by the engine when a constraint is deferred to break a creation cycle.
type AddForeignKey struct {
	TableRef
	FK *ForeignKeyDef `json:"fk"`
}

func (op *AddForeignKey) Type() OpType { return OpAddForeignKey }

func (op *AddForeignKey) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for add foreign key")
	}
	if op.FK == nil {
		return qerr.New(qerr.ErrSchemaInvalid, "foreign key definition is required").
			WithTable(op.Schema, op.Table_)
	}
	if err := op.FK.Validate(); err != nil {
		return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid foreign key").
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *AddForeignKey) Invert() (Operation, error) {
	return &DropForeignKey{
		TableRef: op.TableRef,
		Name:     op.FK.SQLName(op.Table_),
		Dropped:  op.FK,
	}, nil
}

// DropForeignKey represents removing a foreign key constraint. Dropped carries
// the definition for reversal.
type DropForeignKey struct {
	TableRef
	Name    string         `json:"name"`
	Dropped *ForeignKeyDef `json:"dropped,omitempty"`
}

func (op *DropForeignKey) Type() OpType { return OpDropForeignKey }

func (op *DropForeignKey) Validate() error {
	if op.Table_ == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "table name is required for drop foreign key")
	}
	if op.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "constraint name is required for drop foreign key").
			WithTable(op.Schema, op.Table_)
	}
	return nil
}

func (op *DropForeignKey) Invert() (Operation, error) {
	if op.Dropped == nil {
		return nil, qerr.New(qerr.ErrIrreversible,
			"cannot invert DropForeignKey without the dropped constraint definition").
			WithTable(op.Schema, op.Table_).
			With("constraint", op.Name)
	}
	return &AddForeignKey{TableRef: op.TableRef, FK: op.Dropped}, nil
}

// -----------------------------------------------------------------------------
// RawSQL
// -----------------------------------------------------------------------------

// RawSQL represents a raw SQL statement (escape hatch for unsupported
// operations). Use sparingly; prefer structured operations for better dialect
// support. Down is the reversal statement; without it the operation is
// irreversible.
type RawSQL struct {
	SQL string `json:"sql"`
	// Per-dialect overrides (optional)
	Postgres string `json:"postgres,omitempty"`
	SQLite   string `json:"sqlite,omitempty"`
	Down     string `json:"down,omitempty"`
}

func (op *RawSQL) Type() OpType { return OpRawSQL }

func (op *RawSQL) Table() string {
	return "" // Raw SQL doesn't target a specific table
}

func (op *RawSQL) Validate() error {
	if op.SQL == "" && op.Postgres == "" && op.SQLite == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "raw SQL statement is required")
	}
	return nil
}

func (op *RawSQL) Invert() (Operation, error) {
	if op.Down == "" {
		return nil, qerr.New(qerr.ErrIrreversible, "raw SQL operation has no down statement").
			WithSQL(op.SQL)
	}
	return &RawSQL{SQL: op.Down, Down: op.SQL}, nil
}
