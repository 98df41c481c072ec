package ast

import (
	"encoding/json"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// opEnvelope is the on-disk form of a single operation: the OpType name plus
// the operation payload. Migration files are JSON arrays of envelopes.
type opEnvelope struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// MarshalOperations serializes a batch of operations to indented JSON.
// The output is deterministic for a given batch, which the checksum and
// drift subsystems rely on.
func MarshalOperations(ops []Operation) ([]byte, error) {
	envelopes := make([]opEnvelope, 0, len(ops))
	for _, op := range ops {
		data, err := json.Marshal(op)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrSchemaInvalid, err, "failed to serialize operation").
				With("op", op.Type().String())
		}
		envelopes = append(envelopes, opEnvelope{Op: op.Type().String(), Data: data})
	}
	return json.MarshalIndent(envelopes, "", "  ")
}

// UnmarshalOperations deserializes a batch of operations from JSON.
func UnmarshalOperations(data []byte) ([]Operation, error) {
	var envelopes []opEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, qerr.Wrap(qerr.ErrSchemaInvalid, err, "failed to parse operations")
	}

	ops := make([]Operation, 0, len(envelopes))
	for _, env := range envelopes {
		op := newOperation(env.Op)
		if op == nil {
			return nil, qerr.Newf(qerr.ErrSchemaInvalid, "unknown operation type %q", env.Op)
		}
		if err := json.Unmarshal(env.Data, op); err != nil {
			return nil, qerr.Wrap(qerr.ErrSchemaInvalid, err, "failed to parse operation").
				With("op", env.Op)
		}
		reviveOperation(op)
		ops = append(ops, op)
	}
	return ops, nil
}

// newOperation returns an empty operation of the named type.
func newOperation(name string) Operation {
	switch name {
	case "CreateTable":
		return &CreateTable{}
	case "DropTable":
		return &DropTable{}
	case "RenameTable":
		return &RenameTable{}
	case "ChangeSchema":
		return &ChangeSchema{}
	case "AddColumn":
		return &AddColumn{}
	case "DropColumn":
		return &DropColumn{}
	case "RenameColumn":
		return &RenameColumn{}
	case "AlterColumnType":
		return &AlterColumnType{}
	case "AlterColumnDefault":
		return &AlterColumnDefault{}
	case "AlterColumnNullable":
		return &AlterColumnNullable{}
	case "CreateIndex":
		return &CreateIndex{}
	case "DropIndex":
		return &DropIndex{}
	case "AddForeignKey":
		return &AddForeignKey{}
	case "DropForeignKey":
		return &DropForeignKey{}
	case "RawSQL":
		return &RawSQL{}
	default:
		return nil
	}
}

// reviveOperation restores typed values that JSON round-trips as plain maps,
// most importantly *SQLExpr default markers inside `any` fields.
func reviveOperation(op Operation) {
	switch o := op.(type) {
	case *CreateTable:
		for _, col := range o.Columns {
			col.Default = ReviveSQLExpr(col.Default)
		}
	case *DropTable:
		if o.Dropped != nil {
			for _, col := range o.Dropped.Columns {
				col.Default = ReviveSQLExpr(col.Default)
			}
		}
	case *AddColumn:
		if o.Column != nil {
			o.Column.Default = ReviveSQLExpr(o.Column.Default)
		}
	case *DropColumn:
		if o.Dropped != nil {
			o.Dropped.Default = ReviveSQLExpr(o.Dropped.Default)
		}
	case *AlterColumnDefault:
		o.OldDefault = ReviveSQLExpr(o.OldDefault)
		o.NewDefault = ReviveSQLExpr(o.NewDefault)
	}
}

// ReviveSQLExpr converts a JSON-decoded {"expr": "..."} map back into a
// *SQLExpr marker. Any other value passes through unchanged.
func ReviveSQLExpr(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	if expr, ok := m["expr"].(string); ok {
		return &SQLExpr{Expr: expr}
	}
	return v
}
