// Package schema provides the table registry: declared TableDefs organized by
// qualified name, with two-phase named-reference resolution. Tables are
// declared in any order with string references ("music.manager", ".manager",
// "manager"); Resolve binds every reference to a concrete table and fails on
// anything left dangling.
package schema

import (
	"sort"
	"strings"
	"sync"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Registry stores table definitions keyed by qualified name ("schema.table").
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tables   map[string]*ast.TableDef
	order    []string // registration order, for deterministic iteration
	resolved bool
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*ast.TableDef)}
}

// Register adds a table definition. The definition is normalized (implicit
// serial id PK) and validated. Duplicate qualified names are rejected.
func (r *Registry) Register(def *ast.TableDef) error {
	if def == nil {
		return qerr.New(qerr.ErrSchemaInvalid, "table definition cannot be nil")
	}
	def.Normalize()
	if err := def.Validate(); err != nil {
		return err
	}

	key := def.QualifiedName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[key]; exists {
		return qerr.New(qerr.ErrSchemaDuplicate, "table already registered").
			WithTable(def.Schema, def.Tablename)
	}
	r.tables[key] = def
	r.order = append(r.order, key)
	r.resolved = false
	return nil
}

// MustRegister registers a table and panics on error. For declaration-time
// schema setup where a failure is a programming error.
func (r *Registry) MustRegister(def *ast.TableDef) *ast.TableDef {
	if err := r.Register(def); err != nil {
		panic(err)
	}
	return def
}

// Get retrieves a table by schema and name.
func (r *Registry) Get(schema, name string) (*ast.TableDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tables[ast.QualifiedName(schema, name)]
	return def, ok
}

// All returns the registered tables in registration order.
func (r *Registry) All() []*ast.TableDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ast.TableDef, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.tables[key])
	}
	return out
}

// Sorted returns the registered tables sorted by qualified name.
func (r *Registry) Sorted() []*ast.TableDef {
	out := r.All()
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// ParseReference parses a reference string into its components.
// Returns schema, table, and whether the reference is relative (leading dot).
//
//   - "music.band" -> ("music", "band", false)
//   - ".band"      -> ("", "band", true)
//   - "band"       -> ("", "band", false)
func ParseReference(ref string) (schema, table string, isRelative bool) {
	if ref == "" {
		return "", "", false
	}
	if strings.HasPrefix(ref, ".") {
		return "", ref[1:], true
	}
	if idx := strings.Index(ref, "."); idx > 0 {
		return ref[:idx], ref[idx+1:], false
	}
	return "", ref, false
}

// NormalizeReference converts any reference format to a qualified
// "schema.table" form using currentSchema for relative and bare names.
func NormalizeReference(ref, currentSchema string) (string, error) {
	schema, table, isRelative := ParseReference(ref)
	if table == "" {
		return "", qerr.New(qerr.ErrInvalidReference, "empty table name in reference").
			With("ref", ref)
	}
	if schema != "" {
		return schema + "." + table, nil
	}
	if isRelative || currentSchema != "" {
		return ast.QualifiedName(currentSchema, table), nil
	}
	return table, nil
}

// Resolve looks up a reference relative to currentSchema.
func (r *Registry) Resolve(ref, currentSchema string) (*ast.TableDef, error) {
	normalized, err := NormalizeReference(ref, currentSchema)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	def, ok := r.tables[normalized]
	r.mu.RUnlock()

	if !ok {
		return nil, qerr.New(qerr.ErrSchemaNotFound, "referenced table not found").
			With("ref", ref).
			With("resolved_to", normalized)
	}
	return def, nil
}

// ResolveReferences is the second phase of schema declaration: it walks every
// column Reference, rewrites it to the qualified form, and verifies the
// target table and column exist and have compatible types. Call after all
// tables are registered; unresolved names are errors, never silent.
func (r *Registry) ResolveReferences() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.order {
		table := r.tables[key]
		for _, col := range table.Columns {
			if col.Reference == nil {
				continue
			}
			normalized, err := NormalizeReference(col.Reference.Table, table.Schema)
			if err != nil {
				return qerr.Wrap(qerr.ErrSchemaUnresolved, err, "unresolvable reference").
					WithTable(table.Schema, table.Tablename).
					WithColumn(col.Name)
			}
			target, ok := r.tables[normalized]
			if !ok {
				return qerr.New(qerr.ErrSchemaUnresolved, "reference to unregistered table").
					WithTable(table.Schema, table.Tablename).
					WithColumn(col.Name).
					With("ref", col.Reference.Table).
					With("resolved_to", normalized)
			}
			refCol := target.GetColumn(col.Reference.TargetColumn())
			if refCol == nil {
				return qerr.New(qerr.ErrSchemaUnresolved, "reference to unknown column").
					WithTable(table.Schema, table.Tablename).
					WithColumn(col.Name).
					With("target", normalized+"."+col.Reference.TargetColumn())
			}
			if !refTypesCompatible(refCol.Type, col.Type) {
				return qerr.Newf(qerr.ErrSchemaInvalid,
					"foreign key type %s does not match referenced column type %s",
					col.Type, refCol.Type).
					WithTable(table.Schema, table.Tablename).
					WithColumn(col.Name).
					With("target", normalized+"."+col.Reference.TargetColumn())
			}
			col.Reference.Table = normalized
		}
	}
	r.resolved = true
	return nil
}

// Resolved reports whether ResolveReferences has run since the last Register.
func (r *Registry) Resolved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

// Dependencies returns the qualified names of tables the given table
// references through column FKs and table-level constraints, self-references
// excluded. Used by the engine's topological sort.
func (r *Registry) Dependencies(def *ast.TableDef) []string {
	self := def.QualifiedName()
	seen := make(map[string]bool)
	var deps []string

	add := func(ref string) {
		normalized, err := NormalizeReference(ref, def.Schema)
		if err != nil || normalized == self || seen[normalized] {
			return
		}
		seen[normalized] = true
		deps = append(deps, normalized)
	}

	for _, col := range def.Columns {
		if col.Reference != nil {
			add(col.Reference.Table)
		}
	}
	for _, fk := range def.ForeignKeys {
		add(fk.RefTable)
	}
	sort.Strings(deps)
	return deps
}

// refTypesCompatible reports whether an FK column type can reference a target
// column type. Serial targets accept integer-family FK columns.
func refTypesCompatible(target, fk string) bool {
	if target == fk {
		return true
	}
	intFamily := map[string]bool{
		ast.TypeSerial:  true,
		ast.TypeInteger: true,
		ast.TypeBigInt:  true,
	}
	return intFamily[target] && intFamily[fk]
}
