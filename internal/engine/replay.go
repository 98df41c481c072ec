package engine

import (
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Replay applies operations onto a clone of the base snapshot, producing the
// schema state after those operations. Used to compute what the schema looks
// like at a given revision without touching a database.
func Replay(base *Schema, ops []ast.Operation) (*Schema, error) {
	s := NewSchema()
	if base != nil {
		s = base.Clone()
	}
	for _, op := range ops {
		if err := apply(s, op); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func apply(s *Schema, op ast.Operation) error {
	switch o := op.(type) {
	case *ast.CreateTable:
		return applyCreateTable(s, o)
	case *ast.DropTable:
		return applyDropTable(s, o)
	case *ast.RenameTable:
		return applyRenameTable(s, o)
	case *ast.ChangeSchema:
		return applyChangeSchema(s, o)
	case *ast.AddColumn:
		return applyAddColumn(s, o)
	case *ast.DropColumn:
		return applyDropColumn(s, o)
	case *ast.RenameColumn:
		return applyRenameColumn(s, o)
	case *ast.AlterColumnType:
		return applyAlterColumnType(s, o)
	case *ast.AlterColumnDefault:
		return applyAlterColumnDefault(s, o)
	case *ast.AlterColumnNullable:
		return applyAlterColumnNullable(s, o)
	case *ast.CreateIndex:
		return applyCreateIndex(s, o)
	case *ast.DropIndex:
		return applyDropIndex(s, o)
	case *ast.AddForeignKey:
		return applyAddForeignKey(s, o)
	case *ast.DropForeignKey:
		return applyDropForeignKey(s, o)
	case *ast.RawSQL:
		// Raw statements are opaque to replay.
		return nil
	default:
		return qerr.Newf(qerr.ErrSchemaInvalid, "cannot replay operation %T", op)
	}
}

func tableFor(s *Schema, schemaName, table string) (*ast.TableDef, error) {
	def, ok := s.Tables[ast.QualifiedName(schemaName, table)]
	if !ok {
		return nil, qerr.New(qerr.ErrSchemaNotFound, "table does not exist").
			WithTable(schemaName, table)
	}
	return def, nil
}

func applyCreateTable(s *Schema, op *ast.CreateTable) error {
	qualified := ast.QualifiedName(op.Schema, op.Name)
	if _, exists := s.Tables[qualified]; exists {
		if op.IfNotExists {
			return nil
		}
		return qerr.New(qerr.ErrSchemaDuplicate, "table already exists").
			WithTable(op.Schema, op.Name)
	}
	def := &ast.TableDef{
		Schema:      op.Schema,
		Tablename:   op.Name,
		Columns:     op.Columns,
		Indexes:     op.Indexes,
		ForeignKeys: op.ForeignKeys,
	}
	s.Tables[qualified] = def.Clone()
	return nil
}

func applyDropTable(s *Schema, op *ast.DropTable) error {
	qualified := ast.QualifiedName(op.Schema, op.Name)
	if _, exists := s.Tables[qualified]; !exists {
		if op.IfExists {
			return nil
		}
		return qerr.New(qerr.ErrSchemaNotFound, "table does not exist").
			WithTable(op.Schema, op.Name)
	}
	delete(s.Tables, qualified)
	return nil
}

func applyRenameTable(s *Schema, op *ast.RenameTable) error {
	oldQ := ast.QualifiedName(op.Schema, op.OldName)
	newQ := ast.QualifiedName(op.Schema, op.NewName)

	def, exists := s.Tables[oldQ]
	if !exists {
		return qerr.New(qerr.ErrSchemaNotFound, "table does not exist").
			WithTable(op.Schema, op.OldName)
	}
	if _, exists := s.Tables[newQ]; exists {
		return qerr.New(qerr.ErrSchemaDuplicate, "target table name already exists").
			WithTable(op.Schema, op.NewName)
	}
	def.Tablename = op.NewName
	delete(s.Tables, oldQ)
	s.Tables[newQ] = def
	return nil
}

func applyChangeSchema(s *Schema, op *ast.ChangeSchema) error {
	oldQ := ast.QualifiedName(op.OldSchema, op.Name)
	newQ := ast.QualifiedName(op.NewSchema, op.Name)

	def, exists := s.Tables[oldQ]
	if !exists {
		return qerr.New(qerr.ErrSchemaNotFound, "table does not exist").
			WithTable(op.OldSchema, op.Name)
	}
	if _, exists := s.Tables[newQ]; exists {
		return qerr.New(qerr.ErrSchemaDuplicate, "table already exists in target schema").
			WithTable(op.NewSchema, op.Name)
	}
	def.Schema = op.NewSchema
	delete(s.Tables, oldQ)
	s.Tables[newQ] = def
	return nil
}

func applyAddColumn(s *Schema, op *ast.AddColumn) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	if def.HasColumn(op.Column.Name) {
		return qerr.New(qerr.ErrSchemaDuplicate, "column already exists").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Column.Name)
	}
	def.Columns = append(def.Columns, op.Column.Clone())
	return nil
}

func applyDropColumn(s *Schema, op *ast.DropColumn) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	kept := def.Columns[:0:0]
	found := false
	for _, col := range def.Columns {
		if col.Name == op.Name {
			found = true
			continue
		}
		kept = append(kept, col)
	}
	if !found {
		return qerr.New(qerr.ErrSchemaNotFound, "column does not exist").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.Name)
	}
	def.Columns = kept
	return nil
}

func applyRenameColumn(s *Schema, op *ast.RenameColumn) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	col := def.GetColumn(op.OldName)
	if col == nil {
		return qerr.New(qerr.ErrSchemaNotFound, "column does not exist").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.OldName)
	}
	if def.HasColumn(op.NewName) {
		return qerr.New(qerr.ErrSchemaDuplicate, "target column name already exists").
			WithTable(op.Schema, op.Table_).
			WithColumn(op.NewName)
	}
	col.Name = op.NewName

	// Indexes and constraints follow the column.
	for _, idx := range def.Indexes {
		for i, name := range idx.Columns {
			if name == op.OldName {
				idx.Columns[i] = op.NewName
			}
		}
	}
	for _, fk := range def.ForeignKeys {
		for i, name := range fk.Columns {
			if name == op.OldName {
				fk.Columns[i] = op.NewName
			}
		}
	}
	return nil
}

func columnFor(s *Schema, schemaName, table, column string) (*ast.ColumnDef, error) {
	def, err := tableFor(s, schemaName, table)
	if err != nil {
		return nil, err
	}
	col := def.GetColumn(column)
	if col == nil {
		return nil, qerr.New(qerr.ErrSchemaNotFound, "column does not exist").
			WithTable(schemaName, table).
			WithColumn(column)
	}
	return col, nil
}

func applyAlterColumnType(s *Schema, op *ast.AlterColumnType) error {
	col, err := columnFor(s, op.Schema, op.Table_, op.Name)
	if err != nil {
		return err
	}
	col.Type = op.NewType
	col.TypeArgs = op.NewTypeArgs
	return nil
}

func applyAlterColumnDefault(s *Schema, op *ast.AlterColumnDefault) error {
	col, err := columnFor(s, op.Schema, op.Table_, op.Name)
	if err != nil {
		return err
	}
	if op.NewSet {
		col.Default = op.NewDefault
		col.DefaultSet = true
	} else {
		col.Default = nil
		col.DefaultSet = false
	}
	return nil
}

func applyAlterColumnNullable(s *Schema, op *ast.AlterColumnNullable) error {
	col, err := columnFor(s, op.Schema, op.Table_, op.Name)
	if err != nil {
		return err
	}
	col.Nullable = op.Nullable
	return nil
}

func applyCreateIndex(s *Schema, op *ast.CreateIndex) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	flat := strings.ReplaceAll(def.QualifiedName(), ".", "_")
	name := op.Index.SQLName(flat)
	for _, idx := range def.Indexes {
		if idx.SQLName(flat) == name {
			if op.IfNotExists {
				return nil
			}
			return qerr.New(qerr.ErrSchemaDuplicate, "index already exists").
				WithTable(op.Schema, op.Table_).
				With("index", name)
		}
	}
	copied := *op.Index
	copied.Columns = append([]string(nil), op.Index.Columns...)
	def.Indexes = append(def.Indexes, &copied)
	return nil
}

func applyDropIndex(s *Schema, op *ast.DropIndex) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		if op.IfExists {
			return nil
		}
		return err
	}
	flat := strings.ReplaceAll(def.QualifiedName(), ".", "_")
	kept := def.Indexes[:0:0]
	found := false
	for _, idx := range def.Indexes {
		if idx.SQLName(flat) == op.Name {
			found = true
			continue
		}
		kept = append(kept, idx)
	}
	if !found {
		if op.IfExists {
			return nil
		}
		return qerr.New(qerr.ErrSchemaNotFound, "index does not exist").
			WithTable(op.Schema, op.Table_).
			With("index", op.Name)
	}
	def.Indexes = kept
	return nil
}

func applyAddForeignKey(s *Schema, op *ast.AddForeignKey) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	copied := *op.FK
	copied.Columns = append([]string(nil), op.FK.Columns...)
	copied.RefColumns = append([]string(nil), op.FK.RefColumns...)
	def.ForeignKeys = append(def.ForeignKeys, &copied)
	return nil
}

func applyDropForeignKey(s *Schema, op *ast.DropForeignKey) error {
	def, err := tableFor(s, op.Schema, op.Table_)
	if err != nil {
		return err
	}
	flat := strings.ReplaceAll(def.QualifiedName(), ".", "_")
	kept := def.ForeignKeys[:0:0]
	found := false
	for _, fk := range def.ForeignKeys {
		if fk.SQLName(flat) == op.Name {
			found = true
			continue
		}
		kept = append(kept, fk)
	}
	if found {
		def.ForeignKeys = kept
		return nil
	}

	// The constraint may live on a column reference rather than an explicit
	// ForeignKeyDef. Clear the matching reference instead.
	for _, col := range def.Columns {
		if col.Reference == nil {
			continue
		}
		implied := &ast.ForeignKeyDef{Columns: []string{col.SQLName()}}
		if implied.SQLName(flat) == op.Name {
			col.Reference = nil
			return nil
		}
	}
	// Absent constraints drop as a no-op so inverted plans stay idempotent.
	return nil
}
