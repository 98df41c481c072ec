package dialect

import (
	"fmt"
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// sqlite implements the Dialect interface for SQLite.
//
// SQLite has no schema namespaces; qualified tables flatten to a
// schema_table prefix. Its ALTER TABLE support is limited, so the
// unsupported alterations surface E5004 and callers fall back to the table
// recreation pattern.
type sqlite struct{}

// SQLite returns the SQLite dialect implementation.
func SQLite() Dialect {
	return &sqlite{}
}

func (d *sqlite) Name() string {
	return "sqlite"
}

func (d *sqlite) Kind() sqlgen.Dialect {
	return sqlgen.SQLite
}

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

func (d *sqlite) QuoteIdent(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// TableName flattens the schema into a prefix: "music_band".
func (d *sqlite) TableName(schema, name string) string {
	return d.QuoteIdent(flatName(schema, name))
}

func (d *sqlite) Placeholder(index int) string {
	return "?"
}

// -----------------------------------------------------------------------------
// Feature support
// -----------------------------------------------------------------------------

func (d *sqlite) SupportsFeature(feature string) bool {
	switch feature {
	case FeatureTransactionalDDL:
		return true
	case FeatureReturning:
		// Syntax exists since 3.35.0; the db adapter additionally gates on
		// the linked library version.
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Type mapping
// SQLite has dynamic typing with affinities: TEXT, INTEGER, REAL, BLOB.
// -----------------------------------------------------------------------------

func (d *sqlite) TypeSQL(typeTag string, typeArgs []any) (string, error) {
	switch typeTag {
	case ast.TypeSerial, ast.TypeInteger, ast.TypeBigInt:
		return "INTEGER", nil
	case ast.TypeReal:
		return "REAL", nil
	case ast.TypeNumeric:
		// Stored as TEXT so arbitrary precision survives.
		return "TEXT", nil
	case ast.TypeText, ast.TypeVarchar:
		return "TEXT", nil
	case ast.TypeBoolean:
		return "INTEGER", nil
	case ast.TypeTimestamp, ast.TypeTimestamptz:
		return "DATETIME", nil
	case ast.TypeDate:
		return "DATE", nil
	case ast.TypeUUID:
		return "TEXT", nil
	case ast.TypeJSON:
		return "TEXT", nil
	case ast.TypeBytes:
		return "BLOB", nil
	case ast.TypeArray:
		// JSON-encoded.
		return "TEXT", nil
	default:
		return "", qerr.Newf(qerr.ErrSchemaInvalid, "unknown value type %q", typeTag)
	}
}

func (d *sqlite) DefaultSQL(value any) string {
	if expr, ok := value.(*ast.SQLExpr); ok {
		e := expr.Expr
		e = strings.ReplaceAll(e, "NOW()", "CURRENT_TIMESTAMP")
		e = strings.ReplaceAll(e, "now()", "CURRENT_TIMESTAMP")
		return e
	}
	return buildDefaultValueSQL(value, SQLiteBooleans)
}

// -----------------------------------------------------------------------------
// DDL rendering
// -----------------------------------------------------------------------------

func (d *sqlite) CreateTableSQL(op *ast.CreateTable) ([]string, error) {
	return buildCreateTableSQL(op, d)
}

func (d *sqlite) DropTableSQL(op *ast.DropTable) ([]string, error) {
	return buildDropTableSQL(op, d)
}

func (d *sqlite) RenameTableSQL(op *ast.RenameTable) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.OldName) +
		" RENAME TO " + d.QuoteIdent(flatName(op.Schema, op.NewName))
	return []string{stmt}, nil
}

// ChangeSchemaSQL is a rename on SQLite since schemas are only a prefix.
func (d *sqlite) ChangeSchemaSQL(op *ast.ChangeSchema) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.OldSchema, op.Name) +
		" RENAME TO " + d.QuoteIdent(flatName(op.NewSchema, op.Name))
	return []string{stmt}, nil
}

func (d *sqlite) AddColumnSQL(op *ast.AddColumn) ([]string, error) {
	return buildAddColumnSQL(op, d)
}

func (d *sqlite) DropColumnSQL(op *ast.DropColumn) ([]string, error) {
	// SQLite 3.35.0+ supports DROP COLUMN.
	return buildDropColumnSQL(op, d)
}

func (d *sqlite) RenameColumnSQL(op *ast.RenameColumn) ([]string, error) {
	// SQLite 3.25.0+ supports RENAME COLUMN.
	return buildRenameColumnSQL(op, d)
}

// sqliteUnsupported returns the standardized error for ALTER TABLE forms
// SQLite does not implement.
func sqliteUnsupported(msg, schema, table string) ([]string, error) {
	return nil, qerr.New(qerr.ErrUnsupportedFeature, msg).
		WithTable(schema, table).
		WithHint("recreate the table: create new, copy rows, drop old, rename")
}

func (d *sqlite) AlterColumnTypeSQL(op *ast.AlterColumnType) ([]string, error) {
	return sqliteUnsupported("sqlite does not support ALTER COLUMN TYPE", op.Schema, op.Table_)
}

func (d *sqlite) AlterColumnDefaultSQL(op *ast.AlterColumnDefault) ([]string, error) {
	return sqliteUnsupported("sqlite does not support ALTER COLUMN DEFAULT", op.Schema, op.Table_)
}

func (d *sqlite) AlterColumnNullableSQL(op *ast.AlterColumnNullable) ([]string, error) {
	return sqliteUnsupported("sqlite does not support ALTER COLUMN NULL", op.Schema, op.Table_)
}

func (d *sqlite) CreateIndexSQL(op *ast.CreateIndex) ([]string, error) {
	// SQLite has no USING clause; index methods are ignored.
	return buildCreateIndexSQL(op, d, false)
}

func (d *sqlite) DropIndexSQL(op *ast.DropIndex) ([]string, error) {
	return buildDropIndexSQL(op, d, false)
}

func (d *sqlite) AddForeignKeySQL(op *ast.AddForeignKey) ([]string, error) {
	return sqliteUnsupported(
		fmt.Sprintf("sqlite does not support ALTER TABLE ADD FOREIGN KEY (constraint %s)", op.FK.SQLName(flatName(op.Schema, op.Table_))),
		op.Schema, op.Table_)
}

func (d *sqlite) DropForeignKeySQL(op *ast.DropForeignKey) ([]string, error) {
	return sqliteUnsupported(
		fmt.Sprintf("sqlite does not support ALTER TABLE DROP FOREIGN KEY (constraint %s)", op.Name),
		op.Schema, op.Table_)
}

func (d *sqlite) RawSQLFor(op *ast.RawSQL) ([]string, error) {
	if op.SQLite != "" {
		return []string{op.SQLite}, nil
	}
	return []string{op.SQL}, nil
}
