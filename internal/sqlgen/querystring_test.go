package sqlgen

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hlop3z/cometdb/internal/qerr"
)

func TestComposeRenderPostgres(t *testing.T) {
	q := Compose("SELECT {} FROM {} WHERE {} = {}",
		Ident("name"), Ident("music.band"), Ident("popularity"), 1000)

	sql, binds, err := q.Render(Postgres)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `SELECT "name" FROM "music"."band" WHERE "popularity" = $1`
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(binds, []any{1000}) {
		t.Errorf("binds = %v", binds)
	}
}

func TestComposeRenderSQLite(t *testing.T) {
	q := Compose("{} = {} AND {} = {}", Ident("a"), 1, Ident("b"), 2)
	sql, binds, err := q.Render(SQLite)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if sql != `"a" = ? AND "b" = ?` {
		t.Errorf("sql = %q", sql)
	}
	if len(binds) != 2 {
		t.Errorf("binds = %v", binds)
	}
}

func TestNestedPlaceholderNumbering(t *testing.T) {
	// Binds inside a nested fragment must interleave with the outer binds in
	// source order: outer(1), inner(2), inner(3), outer(4).
	inner := Compose("({} + {})", 20, 30)
	q := Compose("UPDATE t SET a = {}, b = {}, c = {}", 10, inner, 40)

	sql, binds, err := q.Render(Postgres)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "UPDATE t SET a = $1, b = ($2 + $3), c = $4"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(binds, []any{10, 20, 30, 40}) {
		t.Errorf("binds = %v, want [10 20 30 40]", binds)
	}
}

func TestPlaceholderCountMatchesBinds(t *testing.T) {
	deep := Compose("x = {}", 1)
	for i := 2; i <= 6; i++ {
		deep = Compose("({}) AND y{} = {}", deep, Unsafe(""), i)
	}
	sql, binds, err := deep.Render(Postgres)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := strings.Count(sql, "$"); got != len(binds) {
		t.Errorf("placeholder count %d != bind count %d (sql %q)", got, len(binds), sql)
	}
}

func TestSlotArgumentMismatch(t *testing.T) {
	tests := []struct {
		name string
		q    QueryString
	}{
		{"too few args", Compose("a = {} AND b = {}", 1)},
		{"too many args", Compose("a = {}", 1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.q.Render(Postgres)
			if !qerr.Is(err, qerr.ErrValidation) {
				t.Errorf("error code = %v, want %v", qerr.GetErrorCode(err), qerr.ErrValidation)
			}
		})
	}
}

func TestConcatSkipsZeroFragments(t *testing.T) {
	q := Concat(" AND ",
		Compose("a = {}", 1),
		QueryString{},
		Compose("b = {}", 2),
	)
	sql, binds, err := q.Render(Postgres)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if sql != "a = $1 AND b = $2" {
		t.Errorf("sql = %q", sql)
	}
	if len(binds) != 2 {
		t.Errorf("binds = %v", binds)
	}
}

func TestKeyEquality(t *testing.T) {
	a := Compose("a = {}", 1)
	b := Compose("a = {}", 1)
	c := Compose("a = {}", 2)

	if !a.Equal(b) {
		t.Error("structurally equal fragments should be Equal")
	}
	if a.Equal(c) {
		t.Error("different bind values should not be Equal")
	}
	// Same rendered SQL but bind vs inline must differ.
	d := Compose("a = {}", Unsafe("1"))
	if a.Key() == d.Key() {
		t.Error("bound and inlined values must produce distinct keys")
	}
}

func TestStringSubstitutesBinds(t *testing.T) {
	args := make([]any, 12)
	slots := make([]string, 12)
	for i := range args {
		args[i] = i + 1
		slots[i] = "{}"
	}
	q := Compose(strings.Join(slots, ","), args...)
	if got := q.String(); got != "1,2,3,4,5,6,7,8,9,10,11,12" {
		t.Errorf("String() = %q", got)
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified(Postgres, "music.band"); got != `"music"."band"` {
		t.Errorf("QuoteQualified = %q", got)
	}
	if got := QuoteIdent(Postgres, `we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent = %q", got)
	}
}

func TestParseDialect(t *testing.T) {
	if d, ok := ParseDialect("postgresql"); !ok || d != Postgres {
		t.Errorf("ParseDialect(postgresql) = %v, %v", d, ok)
	}
	if d, ok := ParseDialect("sqlite3"); !ok || d != SQLite {
		t.Errorf("ParseDialect(sqlite3) = %v, %v", d, ok)
	}
	if _, ok := ParseDialect("oracle"); ok {
		t.Error("ParseDialect(oracle) should not be ok")
	}
}
