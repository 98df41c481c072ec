package dialect

import (
	"strings"
	"testing"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
	}
	for _, tt := range tests {
		d := Get(tt.name)
		if d == nil || d.Name() != tt.want {
			t.Errorf("Get(%q) = %v, want %s", tt.name, d, tt.want)
		}
	}
	if Get("mysql") != nil {
		t.Error("Get(mysql) should be nil")
	}
}

func TestPostgresTableName(t *testing.T) {
	d := Postgres()
	if got := d.TableName("music", "band"); got != `"music"."band"` {
		t.Errorf("TableName = %q", got)
	}
	if got := d.TableName("", "band"); got != `"band"` {
		t.Errorf("TableName = %q", got)
	}
}

func TestSQLiteTableName(t *testing.T) {
	d := SQLite()
	if got := d.TableName("music", "band"); got != `"music_band"` {
		t.Errorf("TableName = %q", got)
	}
}

func TestTypeSQL(t *testing.T) {
	tests := []struct {
		tag      string
		args     []any
		postgres string
		sqlite   string
	}{
		{ast.TypeInteger, nil, "INTEGER", "INTEGER"},
		{ast.TypeBigInt, nil, "BIGINT", "INTEGER"},
		{ast.TypeVarchar, []any{100}, "VARCHAR(100)", "TEXT"},
		{ast.TypeVarchar, nil, "VARCHAR(255)", "TEXT"},
		{ast.TypeNumeric, []any{12, 4}, "NUMERIC(12, 4)", "TEXT"},
		{ast.TypeBoolean, nil, "BOOLEAN", "INTEGER"},
		{ast.TypeTimestamptz, nil, "TIMESTAMPTZ", "DATETIME"},
		{ast.TypeUUID, nil, "UUID", "TEXT"},
		{ast.TypeJSON, nil, "JSONB", "TEXT"},
		{ast.TypeBytes, nil, "BYTEA", "BLOB"},
		{ast.TypeArray, []any{ast.TypeText}, "TEXT[]", "TEXT"},
	}
	pg, lite := Postgres(), SQLite()
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := pg.TypeSQL(tt.tag, tt.args)
			if err != nil || got != tt.postgres {
				t.Errorf("postgres TypeSQL(%s) = %q, %v; want %q", tt.tag, got, err, tt.postgres)
			}
			got, err = lite.TypeSQL(tt.tag, tt.args)
			if err != nil || got != tt.sqlite {
				t.Errorf("sqlite TypeSQL(%s) = %q, %v; want %q", tt.tag, got, err, tt.sqlite)
			}
		})
	}

	if _, err := pg.TypeSQL("money9000", nil); !qerr.Is(err, qerr.ErrSchemaInvalid) {
		t.Errorf("unknown type should fail with E1001, got %v", err)
	}
}

func TestDefaultSQL(t *testing.T) {
	pg, lite := Postgres(), SQLite()

	if got := pg.DefaultSQL(true); got != "TRUE" {
		t.Errorf("postgres bool default = %q", got)
	}
	if got := lite.DefaultSQL(true); got != "1" {
		t.Errorf("sqlite bool default = %q", got)
	}
	if got := pg.DefaultSQL("it's"); got != "'it''s'" {
		t.Errorf("string default = %q", got)
	}
	if got := pg.DefaultSQL(ast.Now()); got != "CURRENT_TIMESTAMP" {
		t.Errorf("deferred default = %q", got)
	}
	if got := lite.DefaultSQL(ast.Raw("NOW()")); got != "CURRENT_TIMESTAMP" {
		t.Errorf("sqlite NOW() rewrite = %q", got)
	}
}

func TestCreateTableSQLPostgres(t *testing.T) {
	op := &ast.CreateTable{
		TableOp: ast.TableOp{Schema: "music", Name: "band"},
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeSerial, PrimaryKey: true},
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}, Unique: true},
			{Name: "manager_id", Type: ast.TypeInteger, Nullable: true,
				Reference: &ast.Reference{Table: "music.manager", OnDelete: "SET NULL"}},
			{Name: "popularity", Type: ast.TypeInteger, Default: 0, DefaultSet: true, Index: true},
		},
	}
	stmts, err := Postgres().CreateTableSQL(op)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected schema + table + index statements, got %d: %v", len(stmts), stmts)
	}
	if stmts[0] != `CREATE SCHEMA IF NOT EXISTS "music"` {
		t.Errorf("schema stmt = %q", stmts[0])
	}
	table := stmts[1]
	for _, want := range []string{
		`CREATE TABLE "music"."band"`,
		`"id" SERIAL PRIMARY KEY`,
		`"name" VARCHAR(100) NOT NULL UNIQUE`,
		`"manager_id" INTEGER REFERENCES "music"."manager"("id") ON DELETE SET NULL`,
		`"popularity" INTEGER NOT NULL DEFAULT 0`,
	} {
		if !strings.Contains(table, want) {
			t.Errorf("create table missing %q:\n%s", want, table)
		}
	}
	if !strings.Contains(stmts[2], `CREATE INDEX "music_band_popularity_idx"`) {
		t.Errorf("index stmt = %q", stmts[2])
	}
}

func TestCreateTableSQLSQLite(t *testing.T) {
	op := &ast.CreateTable{
		TableOp: ast.TableOp{Schema: "music", Name: "band"},
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeSerial, PrimaryKey: true},
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}},
		},
	}
	stmts, err := SQLite().CreateTableSQL(op)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("stmts = %v", stmts)
	}
	for _, want := range []string{
		`CREATE TABLE "music_band"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"name" TEXT NOT NULL`,
	} {
		if !strings.Contains(stmts[0], want) {
			t.Errorf("create table missing %q:\n%s", want, stmts[0])
		}
	}
}

func TestAlterColumnTypeUsingCast(t *testing.T) {
	op := &ast.AlterColumnType{
		TableRef: ast.TableRef{Schema: "music", Table_: "band"},
		Name:     "popularity",
		OldType:  ast.TypeInteger,
		NewType:  ast.TypeBigInt,
	}
	stmts, err := Postgres().AlterColumnTypeSQL(op)
	if err != nil {
		t.Fatalf("AlterColumnTypeSQL: %v", err)
	}
	want := `ALTER TABLE "music"."band" ALTER COLUMN "popularity" TYPE BIGINT USING "popularity"::BIGINT`
	if stmts[0] != want {
		t.Errorf("stmt = %q, want %q", stmts[0], want)
	}

	if _, err := SQLite().AlterColumnTypeSQL(op); !qerr.Is(err, qerr.ErrUnsupportedFeature) {
		t.Errorf("sqlite alter type error = %v, want E5004", err)
	}
}

func TestAlterColumnDefaultAndNullable(t *testing.T) {
	pg := Postgres()

	set := &ast.AlterColumnDefault{
		TableRef: ast.TableRef{Table_: "band"}, Name: "popularity",
		NewDefault: 10, NewSet: true,
	}
	stmts, err := pg.AlterColumnDefaultSQL(set)
	if err != nil || stmts[0] != `ALTER TABLE "band" ALTER COLUMN "popularity" SET DEFAULT 10` {
		t.Errorf("set default = %v, %v", stmts, err)
	}

	drop := &ast.AlterColumnDefault{TableRef: ast.TableRef{Table_: "band"}, Name: "popularity"}
	stmts, err = pg.AlterColumnDefaultSQL(drop)
	if err != nil || stmts[0] != `ALTER TABLE "band" ALTER COLUMN "popularity" DROP DEFAULT` {
		t.Errorf("drop default = %v, %v", stmts, err)
	}

	null := &ast.AlterColumnNullable{TableRef: ast.TableRef{Table_: "band"}, Name: "popularity", Nullable: true}
	stmts, err = pg.AlterColumnNullableSQL(null)
	if err != nil || stmts[0] != `ALTER TABLE "band" ALTER COLUMN "popularity" DROP NOT NULL` {
		t.Errorf("drop not null = %v, %v", stmts, err)
	}
}

func TestChangeSchemaSQL(t *testing.T) {
	op := &ast.ChangeSchema{Name: "band", OldSchema: "music", NewSchema: "archive"}

	stmts, err := Postgres().ChangeSchemaSQL(op)
	if err != nil {
		t.Fatalf("postgres ChangeSchemaSQL: %v", err)
	}
	if stmts[len(stmts)-1] != `ALTER TABLE "music"."band" SET SCHEMA "archive"` {
		t.Errorf("postgres stmt = %q", stmts[len(stmts)-1])
	}

	stmts, err = SQLite().ChangeSchemaSQL(op)
	if err != nil {
		t.Fatalf("sqlite ChangeSchemaSQL: %v", err)
	}
	if stmts[0] != `ALTER TABLE "music_band" RENAME TO "archive_band"` {
		t.Errorf("sqlite stmt = %q", stmts[0])
	}
}

func TestForeignKeyStatements(t *testing.T) {
	fk := &ast.ForeignKeyDef{
		Columns: []string{"manager_id"}, RefTable: "music.manager", RefColumns: []string{"id"},
		OnDelete: "CASCADE",
	}
	add := &ast.AddForeignKey{TableRef: ast.TableRef{Schema: "music", Table_: "band"}, FK: fk}

	stmts, err := Postgres().AddForeignKeySQL(add)
	if err != nil {
		t.Fatalf("AddForeignKeySQL: %v", err)
	}
	want := `ALTER TABLE "music"."band" ADD CONSTRAINT "music_band_manager_id_fkey" FOREIGN KEY ("manager_id") REFERENCES "music"."manager" ("id") ON DELETE CASCADE`
	if stmts[0] != want {
		t.Errorf("stmt = %q\nwant   %q", stmts[0], want)
	}

	if _, err := SQLite().AddForeignKeySQL(add); !qerr.Is(err, qerr.ErrUnsupportedFeature) {
		t.Errorf("sqlite add fk error = %v, want E5004", err)
	}
}

func TestRawSQLDialectOverride(t *testing.T) {
	op := &ast.RawSQL{SQL: "generic", Postgres: "pg only", SQLite: "lite only"}
	if stmts, _ := Postgres().RawSQLFor(op); stmts[0] != "pg only" {
		t.Errorf("postgres override = %q", stmts[0])
	}
	if stmts, _ := SQLite().RawSQLFor(op); stmts[0] != "lite only" {
		t.Errorf("sqlite override = %q", stmts[0])
	}
	plain := &ast.RawSQL{SQL: "generic"}
	if stmts, _ := SQLite().RawSQLFor(plain); stmts[0] != "generic" {
		t.Errorf("fallback = %q", stmts[0])
	}
}

func TestSQLDispatchCoversAllOperations(t *testing.T) {
	col := &ast.ColumnDef{Name: "x", Type: ast.TypeInteger}
	ops := []ast.Operation{
		&ast.CreateTable{TableOp: ast.TableOp{Name: "t"}, Columns: []*ast.ColumnDef{col}},
		&ast.DropTable{TableOp: ast.TableOp{Name: "t"}},
		&ast.RenameTable{OldName: "t", NewName: "u"},
		&ast.AddColumn{TableRef: ast.TableRef{Table_: "t"}, Column: col},
		&ast.DropColumn{TableRef: ast.TableRef{Table_: "t"}, Name: "x"},
		&ast.RenameColumn{TableRef: ast.TableRef{Table_: "t"}, OldName: "x", NewName: "y"},
		&ast.CreateIndex{TableRef: ast.TableRef{Table_: "t"}, Index: &ast.IndexDef{Columns: []string{"x"}}},
		&ast.DropIndex{TableRef: ast.TableRef{Table_: "t"}, Name: "t_x_idx"},
		&ast.RawSQL{SQL: "SELECT 1"},
	}
	pg := Postgres()
	for _, op := range ops {
		if _, err := SQL(pg, op); err != nil {
			t.Errorf("SQL(%s) error: %v", op.Type(), err)
		}
	}
}

func TestSupportsFeature(t *testing.T) {
	pg, lite := Postgres(), SQLite()
	if !pg.SupportsFeature(FeatureDistinctOn) || !pg.SupportsFeature(FeatureForUpdate) {
		t.Error("postgres should support distinct_on and for_update")
	}
	if lite.SupportsFeature(FeatureDistinctOn) || lite.SupportsFeature(FeatureForUpdate) {
		t.Error("sqlite should not support distinct_on or for_update")
	}
	if !lite.SupportsFeature(FeatureReturning) {
		t.Error("sqlite dialect-level returning should be true (runtime gate is the adapter's)")
	}
}
