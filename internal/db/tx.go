package db

import (
	"context"
	"database/sql"
	"regexp"
	"sync"

	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// savepointNamePattern is the identifier charset savepoint names must match
// before they are interpolated into SAVEPOINT statements.
var savepointNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxSavepointNameLen = 63

func validateSavepointName(name string) error {
	if len(name) == 0 || len(name) > maxSavepointNameLen || !savepointNamePattern.MatchString(name) {
		return qerr.Newf(qerr.ErrSavepoint,
			"invalid savepoint name %q; must match [A-Za-z_][A-Za-z0-9_]* and be at most %d chars",
			name, maxSavepointNameLen)
	}
	return nil
}

// SQLTx is a flattened transaction scope over *sql.Tx. Begin inside a
// transaction returns the same handle with an incremented depth; only the
// outermost Commit actually commits, and any Rollback aborts the whole
// transaction.
type SQLTx struct {
	eng *SQLEngine
	tx  *sql.Tx

	mu    sync.Mutex
	depth int
	done  bool
}

func (t *SQLTx) Dialect() dialect.Dialect { return t.eng.d }

func (t *SQLTx) Execute(ctx context.Context, query string, args []any) (*Result, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return execute(ctx, t.tx, query, args)
}

func (t *SQLTx) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return qerr.Wrap(qerr.ErrSQLExecution, err, "cannot prepare statement").WithSQL(query)
	}
	defer stmt.Close()
	for _, args := range argSets {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return qerr.Wrap(qerr.ErrSQLExecution, err, "batch statement failed").WithSQL(query)
		}
	}
	return nil
}

// Begin flattens: the same handle is returned and only the outermost
// Commit/Rollback takes effect. With strict transactions enabled on the
// engine, nesting is an error instead.
func (t *SQLTx) Begin(context.Context) (Tx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, qerr.New(qerr.ErrTransaction, "transaction already finished")
	}
	if t.eng.strictTx {
		return nil, qerr.New(qerr.ErrTransaction, "nested transaction in strict mode").
			WithHint("use a savepoint for partial rollback inside a transaction")
	}
	t.depth++
	return t, nil
}

func (t *SQLTx) Batch(ctx context.Context, query string, args []any, size int) (Cursor, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, qerr.New(qerr.ErrValidation, "batch size must be positive")
	}
	if t.eng.SupportsFeature(dialect.FeatureServerCursors) {
		// Reuse this transaction; the cursor must not commit it on close.
		return newServerCursorIn(ctx, t.tx, query, args, size, nil)
	}
	return newWindowCursor(t, query, args, size), nil
}

func (t *SQLTx) SupportsFeature(feature string) bool {
	return t.eng.SupportsFeature(feature)
}

// Commit commits the outermost scope; flattened inner scopes are no-ops.
func (t *SQLTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return qerr.New(qerr.ErrTransaction, "transaction already finished")
	}
	if t.depth > 0 {
		t.depth--
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return qerr.Wrap(qerr.ErrTransaction, err, "commit failed")
	}
	return nil
}

// Rollback aborts the whole transaction, no matter how deeply nested the
// caller is. Rolling back an already-finished transaction is a no-op so
// deferred rollbacks stay safe.
func (t *SQLTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return qerr.Wrap(qerr.ErrTransaction, err, "rollback failed")
	}
	return nil
}

func (t *SQLTx) Savepoint(ctx context.Context, name string) error {
	return t.savepointStmt(ctx, "SAVEPOINT ", name)
}

func (t *SQLTx) RollbackTo(ctx context.Context, name string) error {
	return t.savepointStmt(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (t *SQLTx) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointStmt(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *SQLTx) savepointStmt(ctx context.Context, verb, name string) error {
	if err := validateSavepointName(name); err != nil {
		return err
	}
	if err := t.checkOpen(); err != nil {
		return err
	}
	stmt := verb + name
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return qerr.Wrap(qerr.ErrSavepoint, err, "savepoint statement failed").WithSQL(stmt)
	}
	return nil
}

func (t *SQLTx) checkOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return qerr.New(qerr.ErrTransaction, "transaction already finished")
	}
	return nil
}
