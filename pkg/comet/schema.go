package comet

import (
	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/schema"
)

// Schemas are declared as plain Go values. The types below alias the engine's
// definition structs so embedding programs can build them without reaching
// into internal packages:
//
//	comet.MustRegister(&comet.Table{
//	    Schema:    "music",
//	    Tablename: "band",
//	    Columns: []*comet.Column{
//	        {Name: "name", Type: comet.TypeVarchar, TypeArgs: []any{100}, Unique: true},
//	        {Name: "manager_id", Type: comet.TypeInteger, Reference: &comet.Reference{Table: ".manager"}},
//	    },
//	})
type (
	// Table declares one table: name, namespace, and ordered columns.
	Table = ast.TableDef

	// Column declares one typed field of a table.
	Column = ast.ColumnDef

	// Reference is a column-level foreign key target.
	Reference = ast.Reference

	// Index is a table-level index over one or more columns.
	Index = ast.IndexDef

	// ForeignKey is a table-level composite foreign key.
	ForeignKey = ast.ForeignKeyDef

	// Expr is a deferred-evaluation default (current timestamp, UUID).
	Expr = ast.SQLExpr

	// Registry holds declared tables and resolves named references.
	Registry = schema.Registry
)

// Column type tags.
const (
	TypeSerial      = ast.TypeSerial
	TypeInteger     = ast.TypeInteger
	TypeBigInt      = ast.TypeBigInt
	TypeReal        = ast.TypeReal
	TypeNumeric     = ast.TypeNumeric
	TypeText        = ast.TypeText
	TypeVarchar     = ast.TypeVarchar
	TypeBoolean     = ast.TypeBoolean
	TypeTimestamp   = ast.TypeTimestamp
	TypeTimestamptz = ast.TypeTimestamptz
	TypeDate        = ast.TypeDate
	TypeUUID        = ast.TypeUUID
	TypeJSON        = ast.TypeJSON
	TypeBytes       = ast.TypeBytes
	TypeArray       = ast.TypeArray
)

// defaultRegistry collects tables registered at package level, the way
// database/sql collects drivers. Binaries that embed the comet CLI register
// their schema in init functions and the commands pick it up from here.
var defaultRegistry = schema.NewRegistry()

// Register adds a table to the package-level registry.
func Register(def *Table) error { return defaultRegistry.Register(def) }

// MustRegister adds a table to the package-level registry and panics on
// error. For init-time schema declarations where a failure is a bug.
func MustRegister(def *Table) *Table { return defaultRegistry.MustRegister(def) }

// DefaultRegistry returns the package-level registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// NewRegistry creates an empty standalone registry.
func NewRegistry() *Registry { return schema.NewRegistry() }
