package qerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrUpdateWithoutWhere, "refusing UPDATE without WHERE clause").
		WithTable("music", "band").
		WithHint("add a Where clause or call Force()")

	got := err.Error()
	for _, want := range []string{
		"[E5002] refusing UPDATE without WHERE clause",
		"table: music.band",
		"hint: add a Where clause or call Force()",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() missing %q:\n%s", want, got)
		}
	}
}

func TestContextIsSorted(t *testing.T) {
	err := New(ErrValidation, "bad input").
		With("zebra", 1).
		With("alpha", 2).
		With("mango", 3)

	got := err.Error()
	alpha := strings.Index(got, "alpha")
	mango := strings.Index(got, "mango")
	zebra := strings.Index(got, "zebra")
	if !(alpha < mango && mango < zebra) {
		t.Fatalf("context keys not sorted:\n%s", got)
	}
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrConnection, cause, "cannot open database").
		With("url", "postgres://localhost/app")

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is does not find the cause")
	}
	if !strings.Contains(err.Error(), "cause: connection refused") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if err.Unwrap() != cause {
		t.Fatal("Unwrap did not return the cause")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(ErrMigrationChecksum, "migration changed after it was applied")

	if !Is(err, ErrMigrationChecksum) {
		t.Fatal("Is did not match the code")
	}
	if Is(err, ErrMigrationFailed) {
		t.Fatal("Is matched a different code")
	}

	// Matching survives fmt wrapping.
	wrapped := fmt.Errorf("running plan: %w", err)
	if !Is(wrapped, ErrMigrationChecksum) {
		t.Fatal("Is did not match through a wrapped error")
	}
}

func TestIsRejectsForeignErrors(t *testing.T) {
	if Is(errors.New("plain"), ErrValidation) {
		t.Fatal("Is matched a non-coded error")
	}
	if Is(nil, ErrValidation) {
		t.Fatal("Is matched nil")
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(New(ErrSavepoint, "bad name")); code != ErrSavepoint {
		t.Fatalf("code = %q", code)
	}
	if code := GetErrorCode(errors.New("plain")); code != "" {
		t.Fatalf("foreign error code = %q", code)
	}
	if HasCode(errors.New("plain")) {
		t.Fatal("HasCode true for foreign error")
	}
}

func TestNewfFormats(t *testing.T) {
	err := Newf(ErrSchemaNotFound, "table %q not found in schema %q", "band", "music")
	if got := err.GetMessage(); got != `table "band" not found in schema "music"` {
		t.Fatalf("message = %q", got)
	}
}
