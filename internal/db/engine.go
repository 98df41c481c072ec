// Package db defines the Engine contract that query assemblers and the
// migration runner execute against, plus the database/sql-backed adapters for
// PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).
package db

import (
	"context"
	"sync"

	"github.com/hlop3z/cometdb/internal/dialect"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Result carries the outcome of a single statement.
type Result struct {
	Rows         []Row // nil for statements that return no rows
	RowsAffected int64
}

// Engine is the minimal execution surface the query and engine packages
// depend on. Adapters wrap database/sql; tests substitute spies.
type Engine interface {
	// Dialect returns the SQL dialect the engine speaks.
	Dialect() dialect.Dialect

	// Execute runs a single statement with bind args.
	Execute(ctx context.Context, sql string, args []any) (*Result, error)

	// ExecuteMany runs one statement repeatedly with multiple bind sets,
	// batched for efficiency where the driver allows.
	ExecuteMany(ctx context.Context, sql string, argSets [][]any) error

	// Begin opens a transaction handle. Inside an existing handle the scopes
	// flatten: the same handle is returned and only the outermost
	// Commit/Rollback takes effect.
	Begin(ctx context.Context) (Tx, error)

	// Batch opens a cursor that streams the query's rows in chunks of size.
	Batch(ctx context.Context, sql string, args []any, size int) (Cursor, error)

	// SupportsFeature reports engine capability, layering runtime gates
	// (library versions) on top of the dialect's static answer.
	SupportsFeature(feature string) bool
}

// Tx is a transaction handle. It is itself an Engine, so queries compose the
// same way inside and outside a transaction.
type Tx interface {
	Engine

	// Commit commits the outermost scope; inner flattened scopes are no-ops.
	Commit() error

	// Rollback aborts the transaction.
	Rollback() error

	// Savepoint creates a named savepoint. Names are validated against a
	// strict identifier charset before interpolation.
	Savepoint(ctx context.Context, name string) error

	// RollbackTo rolls back to a named savepoint.
	RollbackTo(ctx context.Context, name string) error

	// ReleaseSavepoint releases a named savepoint.
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Cursor streams query results in fixed-size chunks. Exactly one release
// path runs regardless of completion, early close, or error.
type Cursor interface {
	// Next returns the next chunk, or (nil, nil) after the final chunk.
	Next(ctx context.Context) ([]Row, error)

	// Close releases the cursor. Safe to call more than once.
	Close() error
}

// Cell is the single-writer reference holding the engine a table registry is
// bound to. Readers take the current engine; Refresh swaps it, giving tests
// an explicit isolation point instead of scattered global state.
type Cell struct {
	mu     sync.RWMutex
	engine Engine
}

// NewCell creates a cell bound to the given engine (may be nil).
func NewCell(engine Engine) *Cell {
	return &Cell{engine: engine}
}

// Current returns the bound engine, or nil when unbound.
func (c *Cell) Current() Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Refresh swaps the bound engine and returns the previous one.
func (c *Cell) Refresh(engine Engine) Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.engine
	c.engine = engine
	return prev
}
