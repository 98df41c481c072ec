package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// postgres implements the Dialect interface for PostgreSQL.
type postgres struct{}

// Postgres returns the PostgreSQL dialect implementation.
func Postgres() Dialect {
	return &postgres{}
}

func (d *postgres) Name() string {
	return "postgres"
}

func (d *postgres) Kind() sqlgen.Dialect {
	return sqlgen.Postgres
}

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

func (d *postgres) QuoteIdent(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// TableName qualifies the table with its schema: "music"."band".
func (d *postgres) TableName(schema, name string) string {
	if schema == "" {
		return d.QuoteIdent(name)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(name)
}

func (d *postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// -----------------------------------------------------------------------------
// Feature support
// -----------------------------------------------------------------------------

func (d *postgres) SupportsFeature(feature string) bool {
	switch feature {
	case FeatureReturning, FeatureDistinctOn, FeatureForUpdate, FeatureIlike,
		FeatureAlterColumn, FeatureAddForeignKey, FeatureSchemas,
		FeatureTransactionalDDL, FeatureServerCursors:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Type mapping
// -----------------------------------------------------------------------------

func (d *postgres) TypeSQL(typeTag string, typeArgs []any) (string, error) {
	switch typeTag {
	case ast.TypeSerial:
		return "SERIAL", nil
	case ast.TypeInteger:
		return "INTEGER", nil
	case ast.TypeBigInt:
		return "BIGINT", nil
	case ast.TypeReal:
		return "REAL", nil
	case ast.TypeNumeric:
		precision := intArg(typeArgs, 0, 10)
		scale := intArg(typeArgs, 1, 2)
		return fmt.Sprintf("NUMERIC(%d, %d)", precision, scale), nil
	case ast.TypeText:
		return "TEXT", nil
	case ast.TypeVarchar:
		return fmt.Sprintf("VARCHAR(%d)", intArg(typeArgs, 0, 255)), nil
	case ast.TypeBoolean:
		return "BOOLEAN", nil
	case ast.TypeTimestamp:
		return "TIMESTAMP", nil
	case ast.TypeTimestamptz:
		return "TIMESTAMPTZ", nil
	case ast.TypeDate:
		return "DATE", nil
	case ast.TypeUUID:
		return "UUID", nil
	case ast.TypeJSON:
		return "JSONB", nil
	case ast.TypeBytes:
		return "BYTEA", nil
	case ast.TypeArray:
		elem := stringArg(typeArgs, "")
		elemSQL, err := d.TypeSQL(elem, nil)
		if err != nil {
			return "", err
		}
		return elemSQL + "[]", nil
	default:
		return "", qerr.Newf(qerr.ErrSchemaInvalid, "unknown value type %q", typeTag)
	}
}

func (d *postgres) DefaultSQL(value any) string {
	return buildDefaultValueSQL(value, PostgresBooleans)
}

// -----------------------------------------------------------------------------
// DDL rendering
// -----------------------------------------------------------------------------

func (d *postgres) CreateTableSQL(op *ast.CreateTable) ([]string, error) {
	stmts, err := buildCreateTableSQL(op, d)
	if err != nil {
		return nil, err
	}
	// Ensure the schema exists before the table that lives in it.
	if op.Schema != "" {
		create := "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdent(op.Schema)
		stmts = append([]string{create}, stmts...)
	}
	return stmts, nil
}

func (d *postgres) DropTableSQL(op *ast.DropTable) ([]string, error) {
	return buildDropTableSQL(op, d)
}

func (d *postgres) RenameTableSQL(op *ast.RenameTable) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.OldName) +
		" RENAME TO " + d.QuoteIdent(op.NewName)
	return []string{stmt}, nil
}

func (d *postgres) ChangeSchemaSQL(op *ast.ChangeSchema) ([]string, error) {
	stmts := []string{}
	if op.NewSchema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+d.QuoteIdent(op.NewSchema))
	}
	target := op.NewSchema
	if target == "" {
		target = "public"
	}
	stmts = append(stmts, "ALTER TABLE "+d.TableName(op.OldSchema, op.Name)+
		" SET SCHEMA "+d.QuoteIdent(target))
	return stmts, nil
}

func (d *postgres) AddColumnSQL(op *ast.AddColumn) ([]string, error) {
	return buildAddColumnSQL(op, d)
}

func (d *postgres) DropColumnSQL(op *ast.DropColumn) ([]string, error) {
	return buildDropColumnSQL(op, d)
}

func (d *postgres) RenameColumnSQL(op *ast.RenameColumn) ([]string, error) {
	return buildRenameColumnSQL(op, d)
}

// AlterColumnTypeSQL emits ALTER COLUMN ... TYPE with a USING cast so that
// convertible data survives the change. The cast defaults to a plain
// ::newtype conversion unless the operation carries an explicit expression.
func (d *postgres) AlterColumnTypeSQL(op *ast.AlterColumnType) ([]string, error) {
	typeSQL, err := d.TypeSQL(op.NewType, op.NewTypeArgs)
	if err != nil {
		return nil, err
	}
	using := op.Using
	if using == "" {
		using = d.QuoteIdent(op.Name) + "::" + typeSQL
	}
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" ALTER COLUMN " + d.QuoteIdent(op.Name) +
		" TYPE " + typeSQL +
		" USING " + using
	return []string{stmt}, nil
}

func (d *postgres) AlterColumnDefaultSQL(op *ast.AlterColumnDefault) ([]string, error) {
	prefix := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" ALTER COLUMN " + d.QuoteIdent(op.Name)
	if !op.NewSet {
		return []string{prefix + " DROP DEFAULT"}, nil
	}
	return []string{prefix + " SET DEFAULT " + d.DefaultSQL(op.NewDefault)}, nil
}

func (d *postgres) AlterColumnNullableSQL(op *ast.AlterColumnNullable) ([]string, error) {
	prefix := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" ALTER COLUMN " + d.QuoteIdent(op.Name)
	if op.Nullable {
		return []string{prefix + " DROP NOT NULL"}, nil
	}
	return []string{prefix + " SET NOT NULL"}, nil
}

func (d *postgres) CreateIndexSQL(op *ast.CreateIndex) ([]string, error) {
	return buildCreateIndexSQL(op, d, true)
}

func (d *postgres) DropIndexSQL(op *ast.DropIndex) ([]string, error) {
	return buildDropIndexSQL(op, d, true)
}

func (d *postgres) AddForeignKeySQL(op *ast.AddForeignKey) ([]string, error) {
	table := flatName(op.Schema, op.Table_)
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" ADD " + buildForeignKeyConstraintSQL(op.FK, table, d.QuoteIdent, d.TableName)
	return []string{stmt}, nil
}

func (d *postgres) DropForeignKeySQL(op *ast.DropForeignKey) ([]string, error) {
	stmt := "ALTER TABLE " + d.TableName(op.Schema, op.Table_) +
		" DROP CONSTRAINT " + d.QuoteIdent(op.Name)
	return []string{stmt}, nil
}

func (d *postgres) RawSQLFor(op *ast.RawSQL) ([]string, error) {
	if op.Postgres != "" {
		return []string{op.Postgres}, nil
	}
	return []string{op.SQL}, nil
}
