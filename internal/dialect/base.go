// Shared DDL building helpers used by both dialect implementations.
package dialect

import (
	"fmt"
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
)

// QuoteIdentFunc quotes a bare identifier.
type QuoteIdentFunc func(name string) string

// TableNameFunc resolves a (schema, name) pair to a quoted SQL table name.
type TableNameFunc func(schema, name string) string

// writeQuotedList writes comma-separated quoted identifiers to the builder.
func writeQuotedList(b *strings.Builder, items []string, quote QuoteIdentFunc) {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(item))
	}
}

// intArg extracts an int from a type argument, tolerating the float64 that
// JSON decoding produces.
func intArg(args []any, i, fallback int) int {
	if i >= len(args) {
		return fallback
	}
	switch v := args[i].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// stringArg extracts the first type argument as a string.
func stringArg(args []any, fallback string) string {
	if len(args) == 0 {
		return fallback
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return fallback
}

// BooleanLiterals holds the true/false literals for a dialect.
type BooleanLiterals struct {
	True  string
	False string
}

// PostgresBooleans uses TRUE/FALSE.
var PostgresBooleans = BooleanLiterals{True: "TRUE", False: "FALSE"}

// SQLiteBooleans uses 1/0.
var SQLiteBooleans = BooleanLiterals{True: "1", False: "0"}

// buildDefaultValueSQL renders a default value as SQL. Only boolean literals
// differ between the dialects; *ast.SQLExpr markers pass through verbatim.
func buildDefaultValueSQL(value any, bools BooleanLiterals) string {
	switch v := value.(type) {
	case *ast.SQLExpr:
		return v.Expr
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		return "'" + escaped + "'"
	case bool:
		if v {
			return bools.True
		}
		return bools.False
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("'%v'", v)
	}
}

// columnDefConfig holds the callbacks for buildColumnDefSQL.
type columnDefConfig struct {
	QuoteIdent QuoteIdentFunc
	TableName  TableNameFunc
	TypeSQL    func(typeTag string, typeArgs []any) (string, error)
	DefaultSQL func(value any) string
	// SerialSQL renders the auto-incrementing PK type; it subsumes both the
	// type and the PRIMARY KEY clause because SQLite couples them.
	SerialSQL string
}

// buildColumnDefSQL generates the SQL for a single column definition inside
// CREATE TABLE or ADD COLUMN.
func buildColumnDefSQL(col *ast.ColumnDef, cfg columnDefConfig) (string, error) {
	var b strings.Builder

	b.WriteString(cfg.QuoteIdent(col.SQLName()))
	b.WriteString(" ")

	if col.Type == ast.TypeSerial && col.PrimaryKey {
		b.WriteString(cfg.SerialSQL)
		return b.String(), nil
	}

	typeSQL, err := cfg.TypeSQL(col.Type, col.TypeArgs)
	if err != nil {
		return "", err
	}
	b.WriteString(typeSQL)

	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !col.Nullable && !col.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if col.HasDefault() {
		b.WriteString(" DEFAULT ")
		b.WriteString(cfg.DefaultSQL(col.Default))
	}

	// Inline FK reference. Reference.Table is qualified by this point.
	if col.Reference != nil {
		schema, name := ast.SplitQualifiedName(strings.TrimPrefix(col.Reference.Table, "."))
		b.WriteString(" REFERENCES ")
		b.WriteString(cfg.TableName(schema, name))
		b.WriteString("(")
		b.WriteString(cfg.QuoteIdent(col.Reference.TargetColumn()))
		b.WriteString(")")
		if col.Reference.OnDelete != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(col.Reference.OnDelete)
		}
		if col.Reference.OnUpdate != "" {
			b.WriteString(" ON UPDATE ")
			b.WriteString(col.Reference.OnUpdate)
		}
	}

	return b.String(), nil
}

// buildForeignKeyConstraintSQL generates a table-level FK constraint clause.
func buildForeignKeyConstraintSQL(fk *ast.ForeignKeyDef, table string, quote QuoteIdentFunc, tableName TableNameFunc) string {
	var b strings.Builder

	b.WriteString("CONSTRAINT ")
	b.WriteString(quote(fk.SQLName(table)))
	b.WriteString(" FOREIGN KEY (")
	writeQuotedList(&b, fk.Columns, quote)
	b.WriteString(") REFERENCES ")
	schema, name := ast.SplitQualifiedName(fk.RefTable)
	b.WriteString(tableName(schema, name))
	b.WriteString(" (")
	writeQuotedList(&b, fk.RefColumns, quote)
	b.WriteString(")")

	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE ")
		b.WriteString(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(fk.OnUpdate)
	}

	return b.String()
}

// buildCreateTableSQL generates CREATE TABLE SQL plus trailing index
// statements for indexed columns and explicit IndexDefs.
func buildCreateTableSQL(op *ast.CreateTable, d Dialect) ([]string, error) {
	var b strings.Builder
	table := flatName(op.Schema, op.Name)

	b.WriteString("CREATE TABLE ")
	if op.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.TableName(op.Schema, op.Name))
	b.WriteString(" (\n")

	for i, col := range op.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  ")
		def, err := buildColumnDefSQL(col, columnDefConfigFor(d))
		if err != nil {
			return nil, err
		}
		b.WriteString(def)
	}

	for _, fk := range op.ForeignKeys {
		b.WriteString(",\n  ")
		b.WriteString(buildForeignKeyConstraintSQL(fk, table, d.QuoteIdent, d.TableName))
	}

	b.WriteString("\n)")
	stmts := []string{b.String()}

	// Single-column indexes declared on the column itself.
	for _, col := range op.Columns {
		if !col.Index {
			continue
		}
		idx := &ast.IndexDef{Columns: []string{col.SQLName()}, Method: col.IndexMethod}
		more, err := d.CreateIndexSQL(&ast.CreateIndex{
			TableRef: ast.TableRef{Schema: op.Schema, Table_: op.Name},
			Index:    idx,
		})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, more...)
	}
	for _, idx := range op.Indexes {
		more, err := d.CreateIndexSQL(&ast.CreateIndex{
			TableRef: ast.TableRef{Schema: op.Schema, Table_: op.Name},
			Index:    idx,
		})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, more...)
	}
	return stmts, nil
}

// columnDefConfigFor adapts a Dialect into the column builder callbacks.
func columnDefConfigFor(d Dialect) columnDefConfig {
	serial := "SERIAL PRIMARY KEY"
	if d.Kind().String() == "sqlite" {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return columnDefConfig{
		QuoteIdent: d.QuoteIdent,
		TableName:  d.TableName,
		TypeSQL:    d.TypeSQL,
		DefaultSQL: d.DefaultSQL,
		SerialSQL:  serial,
	}
}

// flatName joins schema and table with an underscore for constraint/index
// naming, which must be schema-unique on SQLite.
func flatName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "_" + name
}

// buildDropTableSQL generates DROP TABLE SQL.
func buildDropTableSQL(op *ast.DropTable, d Dialect) ([]string, error) {
	var b strings.Builder
	b.WriteString("DROP TABLE ")
	if op.IfExists {
		b.WriteString("IF EXISTS ")
	}
	b.WriteString(d.TableName(op.Schema, op.Name))
	return []string{b.String()}, nil
}

// buildAddColumnSQL generates ALTER TABLE ADD COLUMN SQL.
func buildAddColumnSQL(op *ast.AddColumn, d Dialect) ([]string, error) {
	def, err := buildColumnDefSQL(op.Column, columnDefConfigFor(d))
	if err != nil {
		return nil, err
	}
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) + " ADD COLUMN " + def
	stmts := []string{stmt}
	if op.Column.Index {
		idx := &ast.IndexDef{Columns: []string{op.Column.SQLName()}, Method: op.Column.IndexMethod}
		more, err := d.CreateIndexSQL(&ast.CreateIndex{TableRef: op.TableRef, Index: idx})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, more...)
	}
	return stmts, nil
}

// buildDropColumnSQL generates ALTER TABLE DROP COLUMN SQL.
func buildDropColumnSQL(op *ast.DropColumn, d Dialect) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" DROP COLUMN " + d.QuoteIdent(op.Name)
	return []string{stmt}, nil
}

// buildRenameColumnSQL generates ALTER TABLE RENAME COLUMN SQL.
// Identical across PostgreSQL and SQLite 3.25.0+.
func buildRenameColumnSQL(op *ast.RenameColumn, d Dialect) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" RENAME COLUMN " + d.QuoteIdent(op.OldName) +
		" TO " + d.QuoteIdent(op.NewName)
	return []string{stmt}, nil
}

// buildCreateIndexSQL generates CREATE INDEX SQL.
func buildCreateIndexSQL(op *ast.CreateIndex, d Dialect, withMethod bool) ([]string, error) {
	var b strings.Builder
	table := flatName(op.Schema, op.Table_)

	b.WriteString("CREATE ")
	if op.Index.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if op.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdent(op.Index.SQLName(table)))
	b.WriteString(" ON ")
	b.WriteString(d.TableName(op.Schema, op.Table_))
	if withMethod && op.Index.Method != "" {
		b.WriteString(" USING ")
		b.WriteString(op.Index.Method)
	}
	b.WriteString(" (")
	writeQuotedList(&b, op.Index.Columns, d.QuoteIdent)
	b.WriteString(")")

	return []string{b.String()}, nil
}

// buildDropIndexSQL generates DROP INDEX SQL. Postgres scopes the index name
// to a schema; SQLite index names are database-global.
func buildDropIndexSQL(op *ast.DropIndex, d Dialect, schemaQualified bool) ([]string, error) {
	var b strings.Builder
	b.WriteString("DROP INDEX ")
	if op.IfExists {
		b.WriteString("IF EXISTS ")
	}
	if schemaQualified && op.Schema != "" {
		b.WriteString(d.QuoteIdent(op.Schema))
		b.WriteString(".")
	}
	b.WriteString(d.QuoteIdent(op.Name))
	return []string{b.String()}, nil
}
