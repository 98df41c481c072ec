package query

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/schema"
)

// newTestRegistry registers the defs and resolves references.
func newTestRegistry(t *testing.T, defs ...*ast.TableDef) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.ResolveReferences(); err != nil {
		t.Fatal(err)
	}
	return reg
}

// spyEngine records the last executed statement and serves canned rows.
type spyEngine struct {
	d    dialect.Dialect
	sql  string
	args []any
	rows []db.Row
}

func (s *spyEngine) Dialect() dialect.Dialect { return s.d }

func (s *spyEngine) Execute(ctx context.Context, sql string, args []any) (*db.Result, error) {
	s.sql, s.args = sql, args
	return &db.Result{Rows: s.rows}, nil
}

func (s *spyEngine) ExecuteMany(ctx context.Context, sql string, argSets [][]any) error {
	s.sql = sql
	return nil
}

func (s *spyEngine) Begin(ctx context.Context) (db.Tx, error) {
	return nil, qerr.New(qerr.ErrTransaction, "spy engine has no transactions")
}

func (s *spyEngine) Batch(ctx context.Context, sql string, args []any, size int) (db.Cursor, error) {
	return nil, qerr.New(qerr.ErrUnsupportedFeature, "spy engine has no cursors")
}

func (s *spyEngine) SupportsFeature(feature string) bool {
	return s.d.SupportsFeature(feature)
}

func musicRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	return newTestRegistry(t,
		&ast.TableDef{
			Schema: "music", Tablename: "manager",
			Columns: []*ast.ColumnDef{
				{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{50}},
			},
		},
		&ast.TableDef{
			Schema: "music", Tablename: "band",
			Columns: []*ast.ColumnDef{
				{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}},
				{Name: "popularity", Type: ast.TypeInteger, Default: 0, DefaultSet: true},
				{Name: "manager_id", Type: ast.TypeInteger, Nullable: true,
					Reference: &ast.Reference{Table: ".manager"}},
			},
		},
	)
}

func bandTable(t *testing.T, eng db.Engine) *Table {
	t.Helper()
	reg := musicRegistry(t)
	tbl, err := Bind(reg, db.NewCell(eng), "music", "band")
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestSelectJoinRenderPostgres(t *testing.T) {
	band := bandTable(t, nil)
	sel := band.Select(band.Col("name"), band.Through("manager_id").Col("name")).
		Where(band.Col("popularity").Gt(1000))

	qs, err := sel.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}

	want := `SELECT "band"."name" AS "name", "band$manager_id"."name" AS "manager_id.name" ` +
		`FROM "music"."band" AS "band" ` +
		`LEFT JOIN "music"."manager" "band$manager_id" ON "band"."manager_id" = "band$manager_id"."id" ` +
		`WHERE "band"."popularity" > $1`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{1000}) {
		t.Errorf("args = %v, want [1000]", args)
	}
}

func TestSelectSQLiteFlattensSchema(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Select(band.Col("name")).Render(dialect.SQLite())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := qs.Render(dialect.SQLite().Kind())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, `FROM "music_band" AS "band"`) {
		t.Errorf("sqlite FROM clause missing flattened name: %s", sql)
	}
}

func TestJoinDedupAcrossDepths(t *testing.T) {
	reg := newTestRegistry(t,
		&ast.TableDef{Schema: "tour", Tablename: "city",
			Columns: []*ast.ColumnDef{{Name: "name", Type: ast.TypeText}}},
		&ast.TableDef{Schema: "tour", Tablename: "agency",
			Columns: []*ast.ColumnDef{
				{Name: "name", Type: ast.TypeText},
				{Name: "city_id", Type: ast.TypeInteger, Reference: &ast.Reference{Table: ".city"}},
			}},
		&ast.TableDef{Schema: "tour", Tablename: "manager",
			Columns: []*ast.ColumnDef{
				{Name: "name", Type: ast.TypeText},
				{Name: "agency_id", Type: ast.TypeInteger, Reference: &ast.Reference{Table: ".agency"}},
			}},
		&ast.TableDef{Schema: "tour", Tablename: "band",
			Columns: []*ast.ColumnDef{
				{Name: "name", Type: ast.TypeText},
				{Name: "manager_id", Type: ast.TypeInteger, Reference: &ast.Reference{Table: ".manager"}},
			}},
		&ast.TableDef{Schema: "tour", Tablename: "concert",
			Columns: []*ast.ColumnDef{
				{Name: "venue", Type: ast.TypeText},
				{Name: "band_id", Type: ast.TypeInteger, Reference: &ast.Reference{Table: ".band"}},
			}},
	)
	concert, err := Bind(reg, db.NewCell(nil), "tour", "concert")
	if err != nil {
		t.Fatal(err)
	}

	deep := concert.Through("band_id").Through("manager_id").Through("agency_id").Through("city_id")
	sel := concert.Select(
		concert.Through("band_id").Col("name"),
		concert.Through("band_id").Through("manager_id").Col("name"),
		deep.Col("name"),
		deep.Col("name").As("city_again"), // same path twice must not add a join
	).Where(concert.Through("band_id").Col("name").Eq("Pythonistas"))

	qs, err := sel.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(sql, "LEFT JOIN"); got != 4 {
		t.Errorf("join count = %d, want 4 (one per distinct path)\nsql: %s", got, sql)
	}
	if !strings.Contains(sql, `"concert$band_id$manager_id$agency_id$city_id"."name"`) {
		t.Errorf("depth-4 alias missing: %s", sql)
	}
}

func TestPredicateGroupingPreserved(t *testing.T) {
	band := bandTable(t, nil)
	p := And(
		band.Col("name").Eq("Pythonistas"),
		Or(band.Col("popularity").Gt(1000), band.Col("popularity").Lt(10)),
	)
	qs, err := p.render(band, dialect.Postgres(), newJoinSet())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `("band"."name" = $1 AND ("band"."popularity" > $2 OR "band"."popularity" < $3))`
	if sql != want {
		t.Errorf("sql = %s, want %s", sql, want)
	}
}

func TestEmptyInRejected(t *testing.T) {
	band := bandTable(t, nil)
	_, err := band.Select().Where(band.Col("name").In()).Render(dialect.Postgres())
	if !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("empty IN error = %v, want E2001", err)
	}
}

func TestInSubqueryRender(t *testing.T) {
	reg := musicRegistry(t)
	cell := db.NewCell(nil)
	band, err := Bind(reg, cell, "music", "band")
	if err != nil {
		t.Fatal(err)
	}
	manager, err := Bind(reg, cell, "music", "manager")
	if err != nil {
		t.Fatal(err)
	}

	sub := manager.Select(manager.Col("id")).Where(manager.Col("name").Like("G%"))
	sel := band.Select(band.Col("name")).
		Where(band.Col("manager_id").In(sub)).
		Where(band.Col("popularity").Gt(10))

	qs, err := sel.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT "band"."name" AS "name" FROM "music"."band" AS "band" ` +
		`WHERE ("band"."manager_id" IN ` +
		`(SELECT "manager"."id" AS "id" FROM "music"."manager" AS "manager" WHERE "manager"."name" LIKE $1)` +
		` AND "band"."popularity" > $2)`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"G%", 10}) {
		t.Errorf("args = %v", args)
	}
}

func TestInSubqueryValidation(t *testing.T) {
	reg := musicRegistry(t)
	cell := db.NewCell(nil)
	band, err := Bind(reg, cell, "music", "band")
	if err != nil {
		t.Fatal(err)
	}
	manager, err := Bind(reg, cell, "music", "manager")
	if err != nil {
		t.Fatal(err)
	}

	// A sub-query mixed with literal values is rejected.
	mixed := band.Select().Where(band.Col("manager_id").In(
		manager.Select(manager.Col("id")), 7))
	if _, err := mixed.Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("mixed operands error = %v, want E2001", err)
	}

	// A sub-query selecting two columns is rejected.
	wide := band.Select().Where(band.Col("manager_id").NotIn(
		manager.Select(manager.Col("id"), manager.Col("name"))))
	if _, err := wide.Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("two-column sub-query error = %v, want E2001", err)
	}
}

func TestNullComparisons(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Col("manager_id").Eq(nil).render(band, dialect.Postgres(), newJoinSet())
	if err != nil {
		t.Fatal(err)
	}
	if sql, _, _ := qs.Render(dialect.Postgres().Kind()); sql != `"band"."manager_id" IS NULL` {
		t.Errorf("Eq(nil) = %s, want IS NULL", sql)
	}
	qs, err = band.Col("manager_id").Ne(nil).render(band, dialect.Postgres(), newJoinSet())
	if err != nil {
		t.Fatal(err)
	}
	if sql, _, _ := qs.Render(dialect.Postgres().Kind()); sql != `"band"."manager_id" IS NOT NULL` {
		t.Errorf("Ne(nil) = %s, want IS NOT NULL", sql)
	}
}

func TestILikeFallsBackOnSQLite(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Col("name").ILike("py%").render(band, dialect.SQLite(), newJoinSet())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, err := qs.Render(dialect.SQLite().Kind())
	if err != nil {
		t.Fatal(err)
	}
	if sql != `LOWER("band"."name") LIKE LOWER(?)` {
		t.Errorf("sqlite ILIKE = %s", sql)
	}
}

func TestFrozenSelectRejectsMutation(t *testing.T) {
	band := bandTable(t, nil)
	sel := band.Select(band.Col("name"))
	if _, err := sel.Render(dialect.Postgres()); err != nil {
		t.Fatal(err)
	}
	sel.Where(band.Col("name").Eq("x"))
	if _, err := sel.Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrFrozenQuery) {
		t.Errorf("post-render mutation error = %v, want E5001", err)
	}
}

func TestDistinctOnRequiresOrderPrefix(t *testing.T) {
	band := bandTable(t, nil)

	sel := band.Select(band.Col("name")).
		DistinctOn(band.Col("name")).
		OrderBy(band.Col("popularity"))
	if _, err := sel.Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrDistinctOn) {
		t.Errorf("mismatched DISTINCT ON error = %v, want E5005", err)
	}

	ok := band.Select(band.Col("name")).
		DistinctOn(band.Col("name")).
		OrderBy(band.Col("name"), band.Col("popularity"))
	qs, err := ok.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, _ := qs.Render(dialect.Postgres().Kind())
	if !strings.HasPrefix(sql, `SELECT DISTINCT ON ("band"."name")`) {
		t.Errorf("DISTINCT ON prefix missing: %s", sql)
	}
}

func TestDistinctOnUnsupportedOnSQLite(t *testing.T) {
	band := bandTable(t, nil)
	sel := band.Select(band.Col("name")).
		DistinctOn(band.Col("name")).
		OrderBy(band.Col("name"))
	if _, err := sel.Render(dialect.SQLite()); !qerr.Is(err, qerr.ErrDistinctOn) {
		t.Errorf("sqlite DISTINCT ON error = %v, want E5005", err)
	}
}

func TestSelectAllExcludesSecrets(t *testing.T) {
	reg := newTestRegistry(t, &ast.TableDef{
		Schema: "auth", Tablename: "user",
		Columns: []*ast.ColumnDef{
			{Name: "email", Type: ast.TypeText},
			{Name: "password", Type: ast.TypeText, Secret: true},
		},
	})
	user, err := Bind(reg, db.NewCell(nil), "auth", "user")
	if err != nil {
		t.Fatal(err)
	}
	qs, err := user.Select().ExcludeSecrets().Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, _ := qs.Render(dialect.Postgres().Kind())
	if strings.Contains(sql, "password") {
		t.Errorf("secret column leaked into select: %s", sql)
	}
	if !strings.Contains(sql, `"user"."email"`) {
		t.Errorf("non-secret column missing: %s", sql)
	}
}

func TestInsertUpsertRender(t *testing.T) {
	band := bandTable(t, nil)
	ins := band.Insert(db.Row{"name": "Pythonistas", "popularity": 1000}).
		OnConflictDoUpdate([]string{"name"})

	qs, err := ins.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "music"."band" ("name", "popularity") VALUES ($1, $2) ` +
		`ON CONFLICT ("name") DO UPDATE SET "popularity" = EXCLUDED."popularity"`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"Pythonistas", 1000}) {
		t.Errorf("args = %v", args)
	}
}

func TestInsertUpsertExplicitValues(t *testing.T) {
	band := bandTable(t, nil)
	ins := band.Insert(db.Row{"name": "Pythonistas", "popularity": 1000}).
		OnConflictDoUpdate([]string{"name"}).
		DoUpdateSet("popularity", 0)

	qs, err := ins.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "music"."band" ("name", "popularity") VALUES ($1, $2) ` +
		`ON CONFLICT ("name") DO UPDATE SET "popularity" = $3`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"Pythonistas", 1000, 0}) {
		t.Errorf("args = %v", args)
	}
}

func TestInsertUpsertExpressionValue(t *testing.T) {
	band := bandTable(t, nil)
	ins := band.Insert(db.Row{"name": "Pythonistas", "popularity": 1}).
		OnConflictDoUpdate([]string{"name"}).
		DoUpdateSet("popularity", band.Col("popularity").Add(1))

	qs, err := ins.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "music"."band" ("name", "popularity") VALUES ($1, $2) ` +
		`ON CONFLICT ("name") DO UPDATE SET "popularity" = "popularity" + $3`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"Pythonistas", 1, 1}) {
		t.Errorf("args = %v", args)
	}

	if _, err := band.Insert(db.Row{"name": "x"}).
		OnConflictDoUpdate([]string{"name"}).
		DoUpdateSet("nope", 1).
		Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("unknown upsert column error = %v, want E2001", err)
	}
}

func TestInsertMultiRowAndReturning(t *testing.T) {
	band := bandTable(t, nil)
	ins := band.Insert(
		db.Row{"name": "Pythonistas"},
		db.Row{"name": "Rustaceans"},
	).Returning("id")

	qs, err := ins.Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "VALUES ($1), ($2)") || !strings.HasSuffix(sql, `RETURNING "id"`) {
		t.Errorf("sql = %s", sql)
	}
	if len(args) != 2 {
		t.Errorf("args = %v, want 2 binds", args)
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	band := bandTable(t, nil)
	_, err := band.Insert(db.Row{"nope": 1}).Render(dialect.Postgres())
	if !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("unknown column error = %v, want E2001", err)
	}
}

func TestUpdateRequiresWhereOrForce(t *testing.T) {
	band := bandTable(t, nil)
	_, err := band.Update().Set("popularity", 0).Render(dialect.Postgres())
	if !qerr.Is(err, qerr.ErrUpdateWithoutWhere) {
		t.Errorf("guard error = %v, want E5002", err)
	}

	qs, err := band.Update().Set("popularity", 0).Force().Render(dialect.Postgres())
	if err != nil {
		t.Fatalf("forced update: %v", err)
	}
	sql, _, _ := qs.Render(dialect.Postgres().Kind())
	if strings.Contains(sql, "WHERE") {
		t.Errorf("forced update grew a WHERE: %s", sql)
	}
}

func TestUpdateWithExpression(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Update().
		Set("popularity", band.Col("popularity").Add(100)).
		Where(band.Col("name").Eq("Pythonistas")).
		Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `UPDATE "music"."band" SET "popularity" = "popularity" + $1 WHERE "band"."name" = $2`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{100, "Pythonistas"}) {
		t.Errorf("args = %v", args)
	}
}

func TestUpdateExpressionUsesDBName(t *testing.T) {
	// Expression helpers must render the database column name, not the
	// declared lookup name.
	reg := newTestRegistry(t, &ast.TableDef{
		Schema: "music", Tablename: "band",
		Columns: []*ast.ColumnDef{
			{Name: "name", Type: ast.TypeVarchar, TypeArgs: []any{100}},
			{Name: "popularity", DBName: "pop_count", Type: ast.TypeInteger},
		},
	})
	band, err := Bind(reg, db.NewCell(nil), "music", "band")
	if err != nil {
		t.Fatal(err)
	}

	qs, err := band.Update().
		Set("popularity", band.Col("popularity").Add(100)).
		Where(band.Col("name").Eq("Pythonistas")).
		Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `UPDATE "music"."band" SET "pop_count" = "pop_count" + $1 WHERE "band"."name" = $2`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{100, "Pythonistas"}) {
		t.Errorf("args = %v", args)
	}
}

func TestDeleteRequiresWhereOrForce(t *testing.T) {
	band := bandTable(t, nil)
	_, err := band.Delete().Render(dialect.Postgres())
	if !qerr.Is(err, qerr.ErrDeleteWithoutWhere) {
		t.Errorf("guard error = %v, want E5003", err)
	}

	qs, err := band.Delete().Force().Render(dialect.Postgres())
	if err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if sql, _, _ := qs.Render(dialect.Postgres().Kind()); sql != `DELETE FROM "music"."band"` {
		t.Errorf("sql = %s", sql)
	}
}

func TestCountDistinctRender(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Count().Of(band.Col("name")).Distinct().Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, _ := qs.Render(dialect.Postgres().Kind())
	want := `SELECT COUNT(DISTINCT "band"."name") AS "count" FROM "music"."band" AS "band"`
	if sql != want {
		t.Errorf("sql = %s, want %s", sql, want)
	}

	if _, err := band.Count().Distinct().Render(dialect.Postgres()); !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("DISTINCT without column error = %v, want E2001", err)
	}
}

func TestCountDistinctMultipleColumns(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Count().
		Of(band.Col("name"), band.Col("popularity")).
		Distinct().
		Where(band.Col("popularity").Gt(10)).
		Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, args, err := qs.Render(dialect.Postgres().Kind())
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT COUNT(*) AS "count" FROM ` +
		`(SELECT DISTINCT "band"."name", "band"."popularity" FROM "music"."band" AS "band" ` +
		`WHERE "band"."popularity" > $1) AS "distinct_rows"`
	if sql != want {
		t.Errorf("sql =\n  %s\nwant\n  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{10}) {
		t.Errorf("args = %v", args)
	}

	_, err = band.Count().Of(band.Col("name"), band.Col("popularity")).Render(dialect.Postgres())
	if !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("multi-column count without Distinct error = %v, want E2001", err)
	}
}

func TestCountRunReadsResult(t *testing.T) {
	eng := &spyEngine{d: dialect.Postgres(), rows: []db.Row{{"count": int64(42)}}}
	band := bandTable(t, eng)
	n, err := band.Count().Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
	if !strings.Contains(eng.sql, "COUNT(*)") {
		t.Errorf("executed sql = %s", eng.sql)
	}
}

func TestExists(t *testing.T) {
	eng := &spyEngine{d: dialect.Postgres(), rows: []db.Row{{"exists": true}}}
	band := bandTable(t, eng)
	ok, err := band.Exists(context.Background(), band.Col("name").Eq("Pythonistas"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Exists = false, want true")
	}
	if !strings.Contains(eng.sql, "SELECT EXISTS (SELECT 1 FROM") {
		t.Errorf("executed sql = %s", eng.sql)
	}
	if !strings.Contains(eng.sql, "LIMIT 1") {
		t.Errorf("inner select should cap at one row: %s", eng.sql)
	}
}

func TestSelectRunNestedOutput(t *testing.T) {
	eng := &spyEngine{d: dialect.Postgres(), rows: []db.Row{
		{"name": "Pythonistas", "manager_id.name": "Guido"},
	}}
	band := bandTable(t, eng)
	rows, err := band.Select(band.Col("name"), band.Through("manager_id").Col("name")).
		Nested().
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []db.Row{{"name": "Pythonistas", "manager_id": db.Row{"name": "Guido"}}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestSelectRunFlat(t *testing.T) {
	eng := &spyEngine{d: dialect.Postgres(), rows: []db.Row{
		{"name": "Pythonistas"},
		{"name": "Rustaceans"},
	}}
	band := bandTable(t, eng)

	values, err := band.Select(band.Col("name")).RunFlat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(values, []any{"Pythonistas", "Rustaceans"}) {
		t.Errorf("values = %v", values)
	}

	// Flat output needs exactly one selected column.
	_, err = band.Select(band.Col("name"), band.Col("popularity")).RunFlat(context.Background())
	if !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("two-column flat error = %v, want E2001", err)
	}
	_, err = band.Select().RunFlat(context.Background())
	if !qerr.Is(err, qerr.ErrValidation) {
		t.Errorf("no-column flat error = %v, want E2001", err)
	}
}

func TestUnboundTableCannotRun(t *testing.T) {
	band := bandTable(t, nil)
	if _, err := band.Select().Run(context.Background()); !qerr.Is(err, qerr.ErrConnection) {
		t.Errorf("unbound run error = %v, want E4002", err)
	}
}

func TestJoinThroughNonFKRejected(t *testing.T) {
	band := bandTable(t, nil)
	_, err := band.Through("name").Col("x").resolve()
	if !qerr.Is(err, qerr.ErrInvalidReference) {
		t.Errorf("non-FK traversal error = %v, want E2003", err)
	}
}

func TestLockClauses(t *testing.T) {
	band := bandTable(t, nil)
	qs, err := band.Select(band.Col("name")).
		Lock(LockUpdate).SkipLocked().
		Render(dialect.Postgres())
	if err != nil {
		t.Fatal(err)
	}
	sql, _, _ := qs.Render(dialect.Postgres().Kind())
	if !strings.HasSuffix(sql, "FOR UPDATE SKIP LOCKED") {
		t.Errorf("sql = %s", sql)
	}

	_, err = band.Select(band.Col("name")).Lock(LockShare).Render(dialect.SQLite())
	if !qerr.Is(err, qerr.ErrUnsupportedFeature) {
		t.Errorf("sqlite lock error = %v, want E5004", err)
	}
}
