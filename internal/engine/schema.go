// Package engine provides migration planning and execution: schema diffing,
// rename detection, operation replay, revision files, and the transactional
// runner that applies plans to a database.
package engine

import (
	"sort"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/schema"
)

// Schema is a point-in-time snapshot of table definitions, keyed by qualified
// name. Snapshots are what Diff compares and what Replay builds.
type Schema struct {
	Tables map[string]*ast.TableDef
}

// NewSchema returns an empty snapshot.
func NewSchema() *Schema {
	return &Schema{Tables: make(map[string]*ast.TableDef)}
}

// SnapshotRegistry captures a registry's resolved tables as a snapshot.
func SnapshotRegistry(reg *schema.Registry) *Schema {
	s := NewSchema()
	for _, def := range reg.All() {
		s.Tables[def.QualifiedName()] = def.Clone()
	}
	return s
}

// Clone deep-copies the snapshot so replay can mutate freely.
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	for name, def := range s.Tables {
		out.Tables[name] = def.Clone()
	}
	return out
}

// Names returns the qualified table names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the table definition for a qualified name.
func (s *Schema) Get(qualified string) (*ast.TableDef, bool) {
	def, ok := s.Tables[qualified]
	return def, ok
}
