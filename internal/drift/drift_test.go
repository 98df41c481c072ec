package drift

import (
	"reflect"
	"testing"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/engine"
)

func bandSchema() *engine.Schema {
	s := engine.NewSchema()
	s.Tables["music.manager"] = &ast.TableDef{
		Schema:    "music",
		Tablename: "manager",
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeSerial, PrimaryKey: true},
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}},
		},
	}
	s.Tables["music.band"] = &ast.TableDef{
		Schema:    "music",
		Tablename: "band",
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeSerial, PrimaryKey: true},
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}, Unique: true},
			{Name: "popularity", Type: ast.TypeInteger, Default: 0, DefaultSet: true},
			{Name: "manager_id", Type: ast.TypeInteger, Nullable: true,
				Reference: &ast.Reference{Table: "music.manager"}},
		},
		Indexes: []*ast.IndexDef{{Columns: []string{"popularity"}}},
	}
	return s
}

func TestHashDeterministic(t *testing.T) {
	first, err := Hash(bandSchema())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := Hash(bandSchema())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first.Root != second.Root {
		t.Fatalf("equal schemas hashed differently: %s vs %s", first.Root, second.Root)
	}
	if !reflect.DeepEqual(first.Tables["music.band"], second.Tables["music.band"]) {
		t.Fatal("table fingerprints differ between runs")
	}
	if first.Tables["music.band"].Columns["name"] == "" {
		t.Fatal("column hash missing")
	}
}

func TestHashEmptySchemaIsStable(t *testing.T) {
	a, err := Hash(nil)
	if err != nil {
		t.Fatalf("Hash(nil): %v", err)
	}
	b, err := Hash(engine.NewSchema())
	if err != nil {
		t.Fatalf("Hash(empty): %v", err)
	}
	if a.Root != b.Root || a.Root == "" {
		t.Fatalf("empty roots: %q vs %q", a.Root, b.Root)
	}
}

func TestHashSensitivity(t *testing.T) {
	base, err := Hash(bandSchema())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*engine.Schema)
	}{
		{
			name: "column type change",
			mutate: func(s *engine.Schema) {
				s.Tables["music.band"].GetColumn("name").TypeArgs = []any{200}
			},
		},
		{
			name: "default change",
			mutate: func(s *engine.Schema) {
				s.Tables["music.band"].GetColumn("popularity").Default = 5
			},
		},
		{
			name: "index uniqueness change",
			mutate: func(s *engine.Schema) {
				s.Tables["music.band"].Indexes[0].Unique = true
			},
		},
		{
			name: "reference action change",
			mutate: func(s *engine.Schema) {
				s.Tables["music.band"].GetColumn("manager_id").Reference.OnDelete = "CASCADE"
			},
		},
		{
			name: "dropped table",
			mutate: func(s *engine.Schema) {
				delete(s.Tables, "music.manager")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := bandSchema()
			tt.mutate(changed)
			fp, err := Hash(changed)
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			if fp.Root == base.Root {
				t.Fatal("mutation did not change the root hash")
			}
		})
	}
}

func TestCompareDrillsIntoDrift(t *testing.T) {
	expected := bandSchema()

	actual := bandSchema()
	delete(actual.Tables, "music.manager") // missing table
	band := actual.Tables["music.band"]
	band.GetColumn("popularity").Default = 99                       // modified column
	band.Columns = append(band.Columns, &ast.ColumnDef{
		Name: "genre", Type: ast.TypeText, Nullable: true}) // extra column
	actual.Tables["music.fan"] = &ast.TableDef{ // extra table
		Schema: "music", Tablename: "fan",
		Columns: []*ast.ColumnDef{{Name: "id", Type: ast.TypeSerial, PrimaryKey: true}},
	}

	report, err := Detect(expected, actual)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.Match {
		t.Fatal("drifted schemas reported as matching")
	}
	if !reflect.DeepEqual(report.MissingTables, []string{"music.manager"}) {
		t.Fatalf("missing = %v", report.MissingTables)
	}
	if !reflect.DeepEqual(report.ExtraTables, []string{"music.fan"}) {
		t.Fatalf("extra = %v", report.ExtraTables)
	}

	drift, ok := report.TableDrift["music.band"]
	if !ok {
		t.Fatalf("no drill-down for music.band: %+v", report.TableDrift)
	}
	if !drift.HasDrift() {
		t.Fatal("drill-down reports no drift")
	}
	if !reflect.DeepEqual(drift.ModifiedColumns, []string{"popularity"}) {
		t.Fatalf("modified = %v", drift.ModifiedColumns)
	}
	if !reflect.DeepEqual(drift.ExtraColumns, []string{"genre"}) {
		t.Fatalf("extra columns = %v", drift.ExtraColumns)
	}
}

func TestCompareMatchShortCircuits(t *testing.T) {
	fp, err := Hash(bandSchema())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	report := Compare(fp, fp)
	if !report.Match || len(report.TableDrift) != 0 {
		t.Fatalf("report = %+v", report)
	}
	lines := report.Summary()
	if len(lines) != 1 || lines[0] != "schema matches migration history" {
		t.Fatalf("summary = %v", lines)
	}
}

func TestSummaryListsFindings(t *testing.T) {
	expected := bandSchema()
	actual := bandSchema()
	actual.Tables["music.band"].GetColumn("name").TypeArgs = []any{200}

	report, err := Detect(expected, actual)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	lines := report.Summary()
	if len(lines) != 1 || lines[0] != "table music.band: column name differs" {
		t.Fatalf("summary = %v", lines)
	}
}
