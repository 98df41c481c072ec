package ast

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// validIdentifierPattern matches safe SQL identifiers (lowercase snake_case).
var validIdentifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks that a name is a safe SQL identifier (lowercase snake_case).
func ValidateIdentifier(name string) error {
	if !validIdentifierPattern.MatchString(name) {
		return qerr.Newf(qerr.ErrInvalidIdentifier,
			"invalid identifier %q; must match [a-z_][a-z0-9_]*", name)
	}
	return nil
}

// ValidFKActions is the set of valid ON DELETE / ON UPDATE actions.
var ValidFKActions = map[string]bool{
	"":            true, // empty = no action specified (valid)
	"CASCADE":     true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"RESTRICT":    true,
	"NO ACTION":   true,
}

// NormalizeFKAction normalizes and validates an FK action string.
// Returns the uppercased action or an error if invalid.
func NormalizeFKAction(action string) (string, error) {
	if action == "" {
		return "", nil
	}
	upper := strings.ToUpper(strings.TrimSpace(action))
	if !ValidFKActions[upper] {
		return "", qerr.Newf(qerr.ErrSchemaInvalid,
			"invalid foreign key action %q; must be one of: CASCADE, SET NULL, SET DEFAULT, RESTRICT, NO ACTION", action)
	}
	return upper, nil
}

// -----------------------------------------------------------------------------
// ColumnDef - complete column definition
// -----------------------------------------------------------------------------

// ColumnDef represents a complete column definition with type, constraints,
// and metadata. ColumnDefs are built once at schema declaration time and are
// immutable afterwards except when cloned for join aliasing.
type ColumnDef struct {
	Name     string `json:"name"`                // Column name in the model (snake_case)
	DBName   string `json:"db_name,omitempty"`   // Column name in the database, when it differs from Name
	Type     string `json:"type"`                // Value-type tag (TypeInteger, TypeText, ...)
	TypeArgs []any  `json:"type_args,omitempty"` // Type arguments (varchar length, numeric precision/scale, array element)

	// Constraints
	Nullable   bool `json:"nullable,omitempty"`
	Unique     bool `json:"unique,omitempty"`
	PrimaryKey bool `json:"primary_key,omitempty"`

	// Index
	Index       bool   `json:"index,omitempty"`
	IndexMethod string `json:"index_method,omitempty"` // btree, hash, gin, ... (dialect may ignore)

	// Default value: a Go literal or a *SQLExpr deferred-evaluation marker.
	Default    any  `json:"default,omitempty"`
	DefaultSet bool `json:"default_set,omitempty"`

	// Reference (foreign key), resolved lazily against the registry.
	Reference *Reference `json:"reference,omitempty"`

	// Secret marks a column whose values are redacted in shaped output.
	Secret bool `json:"secret,omitempty"`
}

// SQLName returns the column name used in SQL, preferring DBName.
func (c *ColumnDef) SQLName() string {
	if c.DBName != "" {
		return c.DBName
	}
	return c.Name
}

// Clone returns a deep copy of the column definition.
// Used when a column is re-homed onto a join alias.
func (c *ColumnDef) Clone() *ColumnDef {
	cp := *c
	if c.TypeArgs != nil {
		cp.TypeArgs = append([]any(nil), c.TypeArgs...)
	}
	if c.Reference != nil {
		ref := *c.Reference
		cp.Reference = &ref
	}
	return &cp
}

// Validate checks that the column definition is well-formed.
func (c *ColumnDef) Validate() error {
	if c.Name == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "column name is required")
	}
	if err := ValidateIdentifier(c.Name); err != nil {
		return err
	}
	if c.DBName != "" {
		if err := ValidateIdentifier(c.DBName); err != nil {
			return err
		}
	}
	if c.Type == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "column type is required").
			WithColumn(c.Name)
	}
	if !ValueTypes[c.Type] {
		return qerr.Newf(qerr.ErrSchemaInvalid, "unknown column type %q", c.Type).
			WithColumn(c.Name)
	}
	if c.Type == TypeArray {
		if len(c.TypeArgs) == 0 {
			return qerr.New(qerr.ErrSchemaInvalid, "array column requires an element type").
				WithColumn(c.Name)
		}
		elem, ok := c.TypeArgs[0].(string)
		if !ok || !ValueTypes[elem] || elem == TypeArray || elem == TypeSerial {
			return qerr.Newf(qerr.ErrSchemaInvalid, "invalid array element type %v", c.TypeArgs[0]).
				WithColumn(c.Name)
		}
	}
	if c.Reference != nil {
		if err := c.Reference.Validate(); err != nil {
			return qerr.Wrap(qerr.ErrSchemaInvalid, err, "invalid reference").
				WithColumn(c.Name)
		}
	}
	return nil
}

// HasDefault returns true if a default value is set.
func (c *ColumnDef) HasDefault() bool {
	return c.DefaultSet && c.Default != nil
}

// -----------------------------------------------------------------------------
// SQLExpr - deferred-evaluation default markers
// -----------------------------------------------------------------------------

// SQLExpr marks a string as a raw SQL expression evaluated by the database,
// not a literal value. Used for deferred defaults such as CURRENT_TIMESTAMP.
type SQLExpr struct {
	Expr string `json:"expr"`
}

// Now returns the current-timestamp deferred default.
func Now() *SQLExpr { return &SQLExpr{Expr: "CURRENT_TIMESTAMP"} }

// GenUUID returns a database-generated UUID default (Postgres only).
func GenUUID() *SQLExpr { return &SQLExpr{Expr: "gen_random_uuid()"} }

// Raw wraps an arbitrary SQL expression as a default marker.
func Raw(expr string) *SQLExpr { return &SQLExpr{Expr: expr} }

// CanonicalDefault serializes a default value to a canonical, order-independent
// string so that two structurally equal defaults compare equal regardless of
// how they were constructed. Non-primitive values fall back to %#v formatting.
func CanonicalDefault(v any) string {
	switch d := v.(type) {
	case nil:
		return "<nil>"
	case *SQLExpr:
		return "sql:" + d.Expr
	case string:
		return "str:" + d
	case bool:
		if d {
			return "bool:true"
		}
		return "bool:false"
	case int:
		return fmt.Sprintf("int:%d", d)
	case int64:
		return fmt.Sprintf("int:%d", d)
	case float64:
		return fmt.Sprintf("float:%g", d)
	case []string:
		return "strs:[" + strings.Join(d, ",") + "]"
	default:
		return fmt.Sprintf("go:%#v", v)
	}
}

// DefaultsEqual compares two default values by canonical representation.
func DefaultsEqual(a, b any) bool {
	return CanonicalDefault(a) == CanonicalDefault(b)
}

// -----------------------------------------------------------------------------
// Reference - lazy foreign key target
// -----------------------------------------------------------------------------

// Reference represents a foreign key reference from a column. The target is a
// named reference ("schema.table" or "table") bound to a concrete TableDef by
// the registry's resolution pass, not at declaration time. This keeps
// mutually-referencing tables declarable in any order.
type Reference struct {
	Table    string `json:"table"`               // Referenced table ("schema.table" or bare "table")
	Column   string `json:"column,omitempty"`    // Referenced column (default: "id")
	OnDelete string `json:"on_delete,omitempty"` // CASCADE, SET NULL, SET DEFAULT, RESTRICT, NO ACTION
	OnUpdate string `json:"on_update,omitempty"`
}

// TargetColumn returns the referenced column, defaulting to "id".
func (r *Reference) TargetColumn() string {
	if r.Column != "" {
		return r.Column
	}
	return "id"
}

// Validate checks that the reference is well-formed.
func (r *Reference) Validate() error {
	if r.Table == "" {
		return qerr.New(qerr.ErrSchemaInvalid, "reference must specify a table")
	}
	parts := strings.Split(r.Table, ".")
	if len(parts) > 2 {
		return qerr.Newf(qerr.ErrInvalidReference,
			"invalid reference %q; expected 'table' or 'schema.table'", r.Table)
	}
	for _, p := range parts {
		if err := ValidateIdentifier(p); err != nil {
			return err
		}
	}
	if _, err := NormalizeFKAction(r.OnDelete); err != nil {
		return err
	}
	if _, err := NormalizeFKAction(r.OnUpdate); err != nil {
		return err
	}
	return nil
}
