package main

import "testing"

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CreateUser", "create_user"},
		{"create-user", "create_user"},
		{"create user", "create_user"},
		{"add.band.table", "add_band_table"},
		{"HTTPServer", "httpserver"},
		{"already_snake", "already_snake"},
		{"Mixed-Case Name", "mixed_case_name"},
		{"__trim__", "trim"},
		{"v2Migration", "v2_migration"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
