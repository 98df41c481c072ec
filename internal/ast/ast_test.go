package ast

import (
	"testing"

	"github.com/hlop3z/cometdb/internal/qerr"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		ident   string
		wantErr bool
	}{
		{"simple", "users", false},
		{"snake_case", "user_accounts", false},
		{"leading_underscore", "_internal", false},
		{"digits", "table2", false},
		{"empty", "", true},
		{"uppercase", "Users", true},
		{"dash", "user-accounts", true},
		{"leading_digit", "2fast", true},
		{"injection", "users; DROP TABLE x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.ident)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.ident, err, tt.wantErr)
			}
		})
	}
}

func TestTableDefNormalizeInjectsSerialPK(t *testing.T) {
	table := &TableDef{
		Tablename: "band",
		Schema:    "music",
		Columns: []*ColumnDef{
			{Name: "name", Type: TypeVarchar, TypeArgs: []any{100}},
		},
	}
	table.Normalize()

	pk := table.PrimaryKey()
	if pk == nil {
		t.Fatal("expected implicit primary key after Normalize")
	}
	if pk.Name != "id" || pk.Type != TypeSerial {
		t.Errorf("implicit PK = %s %s, want id serial", pk.Name, pk.Type)
	}
	if table.Columns[0] != pk {
		t.Error("implicit PK should be the first column")
	}
	if err := table.Validate(); err != nil {
		t.Errorf("normalized table should validate: %v", err)
	}

	// Normalize is idempotent
	table.Normalize()
	if len(table.Columns) != 2 {
		t.Errorf("Normalize added a second id column: %d columns", len(table.Columns))
	}
}

func TestTableDefValidate(t *testing.T) {
	valid := func() *TableDef {
		return &TableDef{
			Tablename: "band",
			Columns: []*ColumnDef{
				{Name: "id", Type: TypeSerial, PrimaryKey: true},
				{Name: "name", Type: TypeVarchar, TypeArgs: []any{100}},
			},
		}
	}

	tests := []struct {
		name     string
		mutate   func(*TableDef)
		wantCode qerr.Code
	}{
		{"valid", func(t *TableDef) {}, ""},
		{"no name", func(t *TableDef) { t.Tablename = "" }, qerr.ErrSchemaInvalid},
		{"no columns", func(t *TableDef) { t.Columns = nil }, qerr.ErrSchemaInvalid},
		{"duplicate column", func(t *TableDef) {
			t.Columns = append(t.Columns, &ColumnDef{Name: "name", Type: TypeText})
		}, qerr.ErrSchemaDuplicate},
		{"two primary keys", func(t *TableDef) {
			t.Columns = append(t.Columns, &ColumnDef{Name: "other", Type: TypeSerial, PrimaryKey: true})
		}, qerr.ErrSchemaInvalid},
		{"unknown type", func(t *TableDef) { t.Columns[1].Type = "blob9000" }, qerr.ErrSchemaInvalid},
		{"index on unknown column", func(t *TableDef) {
			t.Indexes = []*IndexDef{{Columns: []string{"missing"}}}
		}, qerr.ErrSchemaInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := valid()
			tt.mutate(table)
			err := table.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !qerr.Is(err, tt.wantCode) {
				t.Errorf("error code = %v, want %v (err: %v)", qerr.GetErrorCode(err), tt.wantCode, err)
			}
		})
	}
}

func TestReferenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     Reference
		wantErr bool
	}{
		{"bare table", Reference{Table: "manager"}, false},
		{"qualified", Reference{Table: "music.manager"}, false},
		{"with actions", Reference{Table: "manager", OnDelete: "cascade", OnUpdate: "SET NULL"}, false},
		{"empty", Reference{}, true},
		{"too many parts", Reference{Table: "a.b.c"}, true},
		{"bad action", Reference{Table: "manager", OnDelete: "EXPLODE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestColumnFingerprint(t *testing.T) {
	a := &ColumnDef{Name: "title", Type: TypeVarchar, TypeArgs: []any{100}}
	b := &ColumnDef{Name: "heading", Type: TypeVarchar, TypeArgs: []any{100}}
	if ColumnFingerprint(a) != ColumnFingerprint(b) {
		t.Error("same type+args+nullability should fingerprint equal regardless of name")
	}

	c := &ColumnDef{Name: "title", Type: TypeVarchar, TypeArgs: []any{100}, Nullable: true}
	if ColumnFingerprint(a) == ColumnFingerprint(c) {
		t.Error("nullability change should alter the fingerprint")
	}

	d := &ColumnDef{Name: "title", Type: TypeVarchar, TypeArgs: []any{200}}
	if ColumnFingerprint(a) == ColumnFingerprint(d) {
		t.Error("type-arg change should alter the fingerprint")
	}
}

func TestTableFingerprintIgnoresColumnOrder(t *testing.T) {
	a := &TableDef{Tablename: "a", Columns: []*ColumnDef{
		{Name: "id", Type: TypeSerial, PrimaryKey: true},
		{Name: "name", Type: TypeText},
	}}
	b := &TableDef{Tablename: "b", Columns: []*ColumnDef{
		{Name: "label", Type: TypeText},
		{Name: "id", Type: TypeSerial, PrimaryKey: true},
	}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("structurally identical tables should fingerprint equal")
	}
}

func TestDefaultsEqual(t *testing.T) {
	if !DefaultsEqual(Now(), Now()) {
		t.Error("two Now() markers should compare equal")
	}
	if DefaultsEqual(Now(), "CURRENT_TIMESTAMP") {
		t.Error("deferred marker must not equal the literal string")
	}
	if !DefaultsEqual(int(5), int64(5)) {
		t.Error("int and int64 of the same value should compare equal")
	}
	if DefaultsEqual(true, "true") {
		t.Error("bool and string must not compare equal")
	}
}

func TestOperationInvertRoundTrips(t *testing.T) {
	col := &ColumnDef{Name: "popularity", Type: TypeInteger}
	idx := &IndexDef{Columns: []string{"name"}}
	fk := &ForeignKeyDef{Columns: []string{"manager_id"}, RefTable: "music.manager", RefColumns: []string{"id"}}

	tests := []struct {
		name string
		op   Operation
		want OpType
	}{
		{"create table", &CreateTable{TableOp: TableOp{Schema: "music", Name: "band"}, Columns: []*ColumnDef{col}}, OpDropTable},
		{"rename table", &RenameTable{Schema: "music", OldName: "band", NewName: "act"}, OpRenameTable},
		{"change schema", &ChangeSchema{Name: "band", OldSchema: "music", NewSchema: "archive"}, OpChangeSchema},
		{"add column", &AddColumn{TableRef: TableRef{Schema: "music", Table_: "band"}, Column: col}, OpDropColumn},
		{"rename column", &RenameColumn{TableRef: TableRef{Table_: "band"}, OldName: "name", NewName: "title"}, OpRenameColumn},
		{"alter type", &AlterColumnType{TableRef: TableRef{Table_: "band"}, Name: "popularity", OldType: TypeInteger, NewType: TypeBigInt}, OpAlterColumnType},
		{"alter default", &AlterColumnDefault{TableRef: TableRef{Table_: "band"}, Name: "popularity", NewDefault: 0, NewSet: true}, OpAlterColumnDefault},
		{"alter nullable", &AlterColumnNullable{TableRef: TableRef{Table_: "band"}, Name: "popularity", Nullable: true}, OpAlterColumnNullable},
		{"create index", &CreateIndex{TableRef: TableRef{Table_: "band"}, Index: idx}, OpDropIndex},
		{"add fk", &AddForeignKey{TableRef: TableRef{Schema: "music", Table_: "band"}, FK: fk}, OpDropForeignKey},
		{"raw sql", &RawSQL{SQL: "CREATE EXTENSION pgcrypto", Down: "DROP EXTENSION pgcrypto"}, OpRawSQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := tt.op.Invert()
			if err != nil {
				t.Fatalf("Invert() error: %v", err)
			}
			if inv.Type() != tt.want {
				t.Fatalf("Invert() type = %v, want %v", inv.Type(), tt.want)
			}
			// Double inversion returns to the original operation type.
			back, err := inv.Invert()
			if err != nil {
				t.Fatalf("double Invert() error: %v", err)
			}
			if back.Type() != tt.op.Type() {
				t.Errorf("double Invert() type = %v, want %v", back.Type(), tt.op.Type())
			}
		})
	}
}

func TestDropOperationsRequireDefinitionsToInvert(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"drop table", &DropTable{TableOp: TableOp{Name: "band"}}},
		{"drop column", &DropColumn{TableRef: TableRef{Table_: "band"}, Name: "name"}},
		{"drop index", &DropIndex{TableRef: TableRef{Table_: "band"}, Name: "band_name_idx"}},
		{"drop fk", &DropForeignKey{TableRef: TableRef{Table_: "band"}, Name: "band_manager_id_fkey"}},
		{"raw sql without down", &RawSQL{SQL: "VACUUM"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.op.Invert()
			if !qerr.Is(err, qerr.ErrIrreversible) {
				t.Errorf("error code = %v, want %v", qerr.GetErrorCode(err), qerr.ErrIrreversible)
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	ops := []Operation{
		&CreateTable{
			TableOp: TableOp{Schema: "music", Name: "band"},
			Columns: []*ColumnDef{
				{Name: "id", Type: TypeSerial, PrimaryKey: true},
				{Name: "name", Type: TypeVarchar, TypeArgs: []any{100}},
				{Name: "created_at", Type: TypeTimestamptz, Default: Now(), DefaultSet: true},
			},
		},
		&AddColumn{
			TableRef: TableRef{Schema: "music", Table_: "band"},
			Column:   &ColumnDef{Name: "popularity", Type: TypeInteger, Nullable: true},
		},
		&RenameColumn{TableRef: TableRef{Table_: "band"}, OldName: "name", NewName: "title"},
		&RawSQL{SQL: "ANALYZE", Down: "SELECT 1"},
	}

	data, err := MarshalOperations(ops)
	if err != nil {
		t.Fatalf("MarshalOperations: %v", err)
	}
	decoded, err := UnmarshalOperations(data)
	if err != nil {
		t.Fatalf("UnmarshalOperations: %v", err)
	}
	if len(decoded) != len(ops) {
		t.Fatalf("decoded %d operations, want %d", len(decoded), len(ops))
	}
	for i := range ops {
		if decoded[i].Type() != ops[i].Type() {
			t.Errorf("op %d type = %v, want %v", i, decoded[i].Type(), ops[i].Type())
		}
	}

	// Deferred defaults survive as markers, not maps.
	ct := decoded[0].(*CreateTable)
	def := ct.Columns[2].Default
	expr, ok := def.(*SQLExpr)
	if !ok {
		t.Fatalf("decoded default = %T, want *SQLExpr", def)
	}
	if expr.Expr != "CURRENT_TIMESTAMP" {
		t.Errorf("decoded default expr = %q", expr.Expr)
	}
}

func TestUnmarshalUnknownOperation(t *testing.T) {
	_, err := UnmarshalOperations([]byte(`[{"op":"ExplodeTable","data":{}}]`))
	if !qerr.Is(err, qerr.ErrSchemaInvalid) {
		t.Errorf("error code = %v, want %v", qerr.GetErrorCode(err), qerr.ErrSchemaInvalid)
	}
}
