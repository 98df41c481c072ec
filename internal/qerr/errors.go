// Package qerr provides standardized error handling for cometdb.
// All errors have stable, machine-readable codes, structured context, and proper wrapping.
package qerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code represents a stable, machine-readable error code.
// Format: E{category}{number} where category is 1-5 and number is 001-999.
type Code string

// Error codes organized by category.
const (
	// Schema errors (E1xxx) - problems with schema definitions
	ErrSchemaInvalid     Code = "E1001" // Schema definition is malformed or invalid
	ErrSchemaNotFound    Code = "E1002" // Referenced table does not exist
	ErrSchemaDuplicate   Code = "E1003" // Table or column with same name already registered
	ErrSchemaCircularRef Code = "E1004" // Unresolvable circular reference in schema
	ErrSchemaUnresolved  Code = "E1005" // Named reference left unresolved after registry resolution

	// Validation errors (E2xxx) - problems with user input to query builders
	ErrValidation        Code = "E2001" // Query input failed validation (empty IN list, bad operator, ...)
	ErrInvalidIdentifier Code = "E2002" // Identifier does not match allowed pattern
	ErrInvalidReference  Code = "E2003" // Reference to non-existent table or column

	// Migration errors (E3xxx) - problems during migration operations
	ErrMigrationFailed   Code = "E3001" // Migration execution failed
	ErrMigrationNotFound Code = "E3002" // Migration revision not found
	ErrMigrationChecksum Code = "E3003" // Migration checksum does not match
	ErrIrreversible      Code = "E3004" // Operation cannot be inverted
	ErrAmbiguousRename   Code = "E3005" // Rename detection found multiple equally plausible candidates

	// Engine errors (E4xxx) - problems with database operations
	ErrSQLExecution Code = "E4001" // SQL statement failed to execute
	ErrConnection   Code = "E4002" // Database connection failed
	ErrTransaction  Code = "E4003" // Transaction operation failed (incl. strict nested begin)
	ErrSavepoint    Code = "E4004" // Savepoint name invalid or savepoint operation failed

	// Query build errors (E5xxx) - problems constructing or rendering queries
	ErrFrozenQuery        Code = "E5001" // Clause mutation after the query was rendered
	ErrUpdateWithoutWhere Code = "E5002" // UPDATE without WHERE and without force
	ErrDeleteWithoutWhere Code = "E5003" // DELETE without WHERE and without force
	ErrUnsupportedFeature Code = "E5004" // Feature not supported by the target dialect
	ErrDistinctOn         Code = "E5005" // DISTINCT ON columns are not a prefix of ORDER BY
)

// Error is the standard error type for cometdb.
// It provides structured error information with codes, context, and wrapping support.
type Error struct {
	code    Code           // Machine-readable error code
	message string         // Human-readable error message
	context map[string]any // Structured context data
	cause   error          // Wrapped underlying error
}

// Error returns the formatted error string.
// Format:
//
//	[E5002] refusing UPDATE without WHERE clause
//	  table: music.band
//	  hint: add a Where clause or call Force()
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.code, e.message))

	// Context in sorted order for deterministic output
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			b.WriteString(fmt.Sprintf("\n  %s: %v", k, e.context[k]))
		}
	}

	if e.cause != nil {
		b.WriteString(fmt.Sprintf("\n  cause: %v", e.cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error for errors.Unwrap compatibility.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether the target error matches this error.
// It matches if target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.code == targetErr.code
	}

	return false
}

// GetCode returns the error code.
func (e *Error) GetCode() Code {
	return e.code
}

// GetMessage returns the error message.
func (e *Error) GetMessage() string {
	return e.message
}

// GetContext returns the error context map.
func (e *Error) GetContext() map[string]any {
	return e.context
}

// GetCause returns the underlying cause error.
func (e *Error) GetCause() error {
	return e.cause
}

// With adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) With(key string, value any) *Error {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

// WithTable adds table context to the error.
// Format: "schema.table" or just "table" if schema is empty.
func (e *Error) WithTable(schema, table string) *Error {
	if schema != "" {
		return e.With("table", schema+"."+table)
	}
	return e.With("table", table)
}

// WithColumn adds column context to the error.
func (e *Error) WithColumn(name string) *Error {
	return e.With("column", name)
}

// WithSQL adds SQL statement context to the error.
func (e *Error) WithSQL(sql string) *Error {
	return e.With("sql", sql)
}

// WithHint adds a remediation hint to the error (displayed as "hint: ...").
func (e *Error) WithHint(hint string) *Error {
	return e.With("hint", hint)
}

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		code:    code,
		message: fmt.Sprintf(format, args...),
		context: make(map[string]any),
	}
}

// Wrap creates a new Error that wraps an existing error.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return New(code, msg)
	}
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
		cause:   err,
	}
}

// Wrapf creates a new Error that wraps an existing error with a formatted message.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	return Wrap(code, err, fmt.Sprintf(format, args...))
}

// GetErrorCode extracts the error code from an error chain.
// Returns empty string if no code is found.
func GetErrorCode(err error) Code {
	if err == nil {
		return ""
	}

	var qe *Error
	if errors.As(err, &qe) {
		return qe.code
	}

	return ""
}

// Is checks if an error has the specified code.
func Is(err error, code Code) bool {
	return GetErrorCode(err) == code
}

// HasCode checks if an error has any error code.
func HasCode(err error) bool {
	return GetErrorCode(err) != ""
}
