package schema

import (
	"reflect"
	"testing"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

func bandTable() *ast.TableDef {
	return &ast.TableDef{
		Schema:    "music",
		Tablename: "band",
		Columns: []*ast.ColumnDef{
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}},
			{Name: "manager_id", Type: ast.TypeInteger, Nullable: true,
				Reference: &ast.Reference{Table: ".manager"}},
		},
	}
}

func managerTable() *ast.TableDef {
	return &ast.TableDef{
		Schema:    "music",
		Tablename: "manager",
		Columns: []*ast.ColumnDef{
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{50}},
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(bandTable()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	def, ok := r.Get("music", "band")
	if !ok {
		t.Fatal("Get returned not found")
	}
	if def.PrimaryKey() == nil {
		t.Error("registered table should have the implicit id PK")
	}

	if err := r.Register(bandTable()); !qerr.Is(err, qerr.ErrSchemaDuplicate) {
		t.Errorf("duplicate register error = %v, want E1003", err)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref      string
		schema   string
		table    string
		relative bool
	}{
		{"music.band", "music", "band", false},
		{".band", "", "band", true},
		{"band", "", "band", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		schema, table, rel := ParseReference(tt.ref)
		if schema != tt.schema || table != tt.table || rel != tt.relative {
			t.Errorf("ParseReference(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.ref, schema, table, rel, tt.schema, tt.table, tt.relative)
		}
	}
}

func TestResolveFormats(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(managerTable()); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{"music.manager", ".manager", "manager"} {
		def, err := r.Resolve(ref, "music")
		if err != nil {
			t.Errorf("Resolve(%q): %v", ref, err)
			continue
		}
		if def.Tablename != "manager" {
			t.Errorf("Resolve(%q) = %s", ref, def.QualifiedName())
		}
	}

	if _, err := r.Resolve("music.nobody", "music"); !qerr.Is(err, qerr.ErrSchemaNotFound) {
		t.Errorf("missing table error = %v, want E1002", err)
	}
}

func TestResolveReferences(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(managerTable()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(bandTable()); err != nil {
		t.Fatal(err)
	}

	if r.Resolved() {
		t.Error("registry should not report resolved before the pass")
	}
	if err := r.ResolveReferences(); err != nil {
		t.Fatalf("ResolveReferences: %v", err)
	}
	if !r.Resolved() {
		t.Error("registry should report resolved after the pass")
	}

	band, _ := r.Get("music", "band")
	ref := band.GetColumn("manager_id").Reference
	if ref.Table != "music.manager" {
		t.Errorf("reference rewritten to %q, want music.manager", ref.Table)
	}
}

func TestResolveReferencesDangling(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(bandTable()); err != nil {
		t.Fatal(err)
	}
	err := r.ResolveReferences()
	if !qerr.Is(err, qerr.ErrSchemaUnresolved) {
		t.Errorf("dangling reference error = %v, want E1005", err)
	}
}

func TestResolveReferencesTypeMismatch(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(managerTable()); err != nil {
		t.Fatal(err)
	}
	bad := bandTable()
	bad.Columns[1].Type = ast.TypeText // FK to a serial id must be integer family
	if err := r.Register(bad); err != nil {
		t.Fatal(err)
	}
	if err := r.ResolveReferences(); !qerr.Is(err, qerr.ErrSchemaInvalid) {
		t.Errorf("type mismatch error = %v, want E1001", err)
	}
}

func TestDependencies(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(managerTable()); err != nil {
		t.Fatal(err)
	}
	band := bandTable()
	// Self-reference must be excluded from dependencies.
	band.Columns = append(band.Columns, &ast.ColumnDef{
		Name: "parent_id", Type: ast.TypeInteger, Nullable: true,
		Reference: &ast.Reference{Table: ".band"},
	})
	if err := r.Register(band); err != nil {
		t.Fatal(err)
	}
	if err := r.ResolveReferences(); err != nil {
		t.Fatal(err)
	}

	deps := r.Dependencies(band)
	if !reflect.DeepEqual(deps, []string{"music.manager"}) {
		t.Errorf("Dependencies = %v, want [music.manager]", deps)
	}
	if deps := r.Dependencies(managerTable()); len(deps) != 0 {
		t.Errorf("manager deps = %v, want none", deps)
	}
}
