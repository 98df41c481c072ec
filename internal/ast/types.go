// Package ast defines the schema model for cometdb: typed column and table
// definitions plus the atomic, reversible operations that transform them.
// Operations are rendered to DDL by the dialect package and replayed by the
// engine package to reconstruct schema snapshots.
package ast

// OpType represents the type of a schema operation.
type OpType int

const (
	// OpCreateTable creates a new table with columns, indexes, and constraints.
	OpCreateTable OpType = iota

	// OpDropTable removes an existing table.
	OpDropTable

	// OpRenameTable changes a table's name.
	OpRenameTable

	// OpChangeSchema moves a table to a different schema namespace.
	OpChangeSchema

	// OpAddColumn adds a new column to an existing table.
	OpAddColumn

	// OpDropColumn removes a column from an existing table.
	OpDropColumn

	// OpRenameColumn changes a column's name.
	OpRenameColumn

	// OpAlterColumnType changes a column's SQL type.
	OpAlterColumnType

	// OpAlterColumnDefault changes or removes a column's default value.
	OpAlterColumnDefault

	// OpAlterColumnNullable toggles a column's NOT NULL constraint.
	OpAlterColumnNullable

	// OpCreateIndex creates a new index on one or more columns.
	OpCreateIndex

	// OpDropIndex removes an existing index.
	OpDropIndex

	// OpAddForeignKey adds a foreign key constraint.
	OpAddForeignKey

	// OpDropForeignKey removes a foreign key constraint.
	OpDropForeignKey

	// OpRawSQL executes raw SQL (escape hatch for unsupported operations).
	OpRawSQL
)

// String returns the string representation of an OpType.
func (o OpType) String() string {
	switch o {
	case OpCreateTable:
		return "CreateTable"
	case OpDropTable:
		return "DropTable"
	case OpRenameTable:
		return "RenameTable"
	case OpChangeSchema:
		return "ChangeSchema"
	case OpAddColumn:
		return "AddColumn"
	case OpDropColumn:
		return "DropColumn"
	case OpRenameColumn:
		return "RenameColumn"
	case OpAlterColumnType:
		return "AlterColumnType"
	case OpAlterColumnDefault:
		return "AlterColumnDefault"
	case OpAlterColumnNullable:
		return "AlterColumnNullable"
	case OpCreateIndex:
		return "CreateIndex"
	case OpDropIndex:
		return "DropIndex"
	case OpAddForeignKey:
		return "AddForeignKey"
	case OpDropForeignKey:
		return "DropForeignKey"
	case OpRawSQL:
		return "RawSQL"
	default:
		return "Unknown"
	}
}

// Semantic value-type tags for columns. The dialect package maps these to
// concrete SQL types per database family.
const (
	TypeSerial      = "serial"      // auto-incrementing integer primary key
	TypeInteger     = "integer"     // 32-bit integer
	TypeBigInt      = "bigint"      // 64-bit integer
	TypeReal        = "real"        // floating point
	TypeNumeric     = "numeric"     // arbitrary precision; TypeArgs: precision, scale
	TypeText        = "text"        // unbounded text
	TypeVarchar     = "varchar"     // bounded text; TypeArgs: length
	TypeBoolean     = "boolean"     // true/false
	TypeTimestamp   = "timestamp"   // timestamp without timezone
	TypeTimestamptz = "timestamptz" // timestamp with timezone
	TypeDate        = "date"        // date only
	TypeUUID        = "uuid"        // UUID
	TypeJSON        = "json"        // JSON document
	TypeBytes       = "bytes"       // raw bytes
	TypeArray       = "array"       // array-of-T; TypeArgs: element type tag
)

// ValueTypes is the set of recognized column value-type tags.
var ValueTypes = map[string]bool{
	TypeSerial:      true,
	TypeInteger:     true,
	TypeBigInt:      true,
	TypeReal:        true,
	TypeNumeric:     true,
	TypeText:        true,
	TypeVarchar:     true,
	TypeBoolean:     true,
	TypeTimestamp:   true,
	TypeTimestamptz: true,
	TypeDate:        true,
	TypeUUID:        true,
	TypeJSON:        true,
	TypeBytes:       true,
	TypeArray:       true,
}
