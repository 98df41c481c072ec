// Package dialect provides database-specific SQL generation: value-type
// mappings, identifier quoting, feature gates, and DDL rendering for every
// schema operation.
package dialect

import (
	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// Feature names probed via SupportsFeature.
const (
	FeatureReturning        = "returning"
	FeatureDistinctOn       = "distinct_on"
	FeatureForUpdate        = "for_update"
	FeatureIlike            = "ilike"
	FeatureAlterColumn      = "alter_column"
	FeatureAddForeignKey    = "add_foreign_key"
	FeatureSchemas          = "schemas"
	FeatureTransactionalDDL = "transactional_ddl"
	FeatureServerCursors    = "server_cursors"
)

// Dialect defines the interface for database-specific SQL generation.
// Implementations exist for PostgreSQL and SQLite.
type Dialect interface {
	// Name returns the dialect name (postgres, sqlite).
	Name() string

	// Kind returns the sqlgen dialect tag used for placeholder rendering.
	Kind() sqlgen.Dialect

	// QuoteIdent quotes an identifier (table/column name) for the dialect.
	QuoteIdent(name string) string

	// TableName returns the quoted SQL name for a table. PostgreSQL uses
	// schema qualification ("music"."band"); SQLite flattens the schema into
	// a prefix ("music_band").
	TableName(schema, name string) string

	// Placeholder returns a parameter placeholder for the given index (1-based).
	Placeholder(index int) string

	// SupportsFeature reports static dialect capability. Runtime gates (the
	// SQLite RETURNING version check) are layered on top by the db adapter.
	SupportsFeature(feature string) bool

	// TypeSQL maps a value-type tag plus its args to a concrete SQL type.
	TypeSQL(typeTag string, typeArgs []any) (string, error)

	// DefaultSQL renders a default value (literal or *ast.SQLExpr) as SQL.
	DefaultSQL(value any) string

	// DDL rendering per operation. Each returns one or more statements.
	CreateTableSQL(op *ast.CreateTable) ([]string, error)
	DropTableSQL(op *ast.DropTable) ([]string, error)
	RenameTableSQL(op *ast.RenameTable) ([]string, error)
	ChangeSchemaSQL(op *ast.ChangeSchema) ([]string, error)
	AddColumnSQL(op *ast.AddColumn) ([]string, error)
	DropColumnSQL(op *ast.DropColumn) ([]string, error)
	RenameColumnSQL(op *ast.RenameColumn) ([]string, error)
	AlterColumnTypeSQL(op *ast.AlterColumnType) ([]string, error)
	AlterColumnDefaultSQL(op *ast.AlterColumnDefault) ([]string, error)
	AlterColumnNullableSQL(op *ast.AlterColumnNullable) ([]string, error)
	CreateIndexSQL(op *ast.CreateIndex) ([]string, error)
	DropIndexSQL(op *ast.DropIndex) ([]string, error)
	AddForeignKeySQL(op *ast.AddForeignKey) ([]string, error)
	DropForeignKeySQL(op *ast.DropForeignKey) ([]string, error)
	RawSQLFor(op *ast.RawSQL) ([]string, error)
}

// Get returns the dialect implementation for the given name.
// Valid names: "postgres", "postgresql", "sqlite", "sqlite3".
// Returns nil if the dialect is not supported.
func Get(name string) Dialect {
	switch name {
	case "postgres", "postgresql", "pg":
		return Postgres()
	case "sqlite", "sqlite3":
		return SQLite()
	default:
		return nil
	}
}

// Names returns the list of supported dialect names.
func Names() []string {
	return []string{"postgres", "sqlite"}
}

// SQL renders any schema operation to its DDL statements for the dialect.
func SQL(d Dialect, op ast.Operation) ([]string, error) {
	switch o := op.(type) {
	case *ast.CreateTable:
		return d.CreateTableSQL(o)
	case *ast.DropTable:
		return d.DropTableSQL(o)
	case *ast.RenameTable:
		return d.RenameTableSQL(o)
	case *ast.ChangeSchema:
		return d.ChangeSchemaSQL(o)
	case *ast.AddColumn:
		return d.AddColumnSQL(o)
	case *ast.DropColumn:
		return d.DropColumnSQL(o)
	case *ast.RenameColumn:
		return d.RenameColumnSQL(o)
	case *ast.AlterColumnType:
		return d.AlterColumnTypeSQL(o)
	case *ast.AlterColumnDefault:
		return d.AlterColumnDefaultSQL(o)
	case *ast.AlterColumnNullable:
		return d.AlterColumnNullableSQL(o)
	case *ast.CreateIndex:
		return d.CreateIndexSQL(o)
	case *ast.DropIndex:
		return d.DropIndexSQL(o)
	case *ast.AddForeignKey:
		return d.AddForeignKeySQL(o)
	case *ast.DropForeignKey:
		return d.DropForeignKeySQL(o)
	case *ast.RawSQL:
		return d.RawSQLFor(o)
	default:
		return nil, qerr.Newf(qerr.ErrUnsupportedFeature, "no renderer for operation %T", op)
	}
}
