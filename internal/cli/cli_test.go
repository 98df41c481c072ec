package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlainOutputHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	out := Plain(&buf)

	out.Success("applied %s", "r1")
	out.Warning("pending %d", 2)
	out.Error("checksum mismatch")
	out.SQL(`CREATE TABLE "music_band" (id INTEGER)`)
	out.Panel("SQL Preview", "line one\nline two")

	got := buf.String()
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("plain output contains ANSI escapes:\n%s", got)
	}
	for _, want := range []string{
		"✓ applied r1",
		"⚠ pending 2",
		"✗ checksum mismatch",
		`CREATE TABLE "music_band" (id INTEGER);`,
		"-- SQL Preview --",
		"  line one",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestStatusLabelPassesThroughInPlainMode(t *testing.T) {
	out := Plain(&bytes.Buffer{})
	for _, status := range []string{"applied", "pending", "missing", "modified", "unknown"} {
		if got := out.StatusLabel(status); got != status {
			t.Errorf("StatusLabel(%q) = %q", status, got)
		}
	}
}

func TestTablePadsColumns(t *testing.T) {
	var buf bytes.Buffer
	out := Plain(&buf)
	out.Table([][]string{
		{"REVISION", "STATUS"},
		{"20250301120000000000_add_band", "applied"},
		{"r2", "pending"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d", len(lines))
	}
	statusCol := strings.Index(lines[1], "applied")
	if statusCol < 0 || strings.Index(lines[2], "pending") != statusCol {
		t.Fatalf("columns not aligned:\n%s", buf.String())
	}
}
