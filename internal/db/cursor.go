package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hlop3z/cometdb/internal/qerr"
)

// serverCursor streams rows through a Postgres server-side cursor:
// DECLARE ... CURSOR FOR <query> inside a transaction, then FETCH in chunks.
// Exactly one release path runs, whether the caller drains it, closes early,
// or hits an error.
type serverCursor struct {
	tx    *sql.Tx
	name  string
	size  int
	done  bool
	close sync.Once
	// finish commits or rolls back the owning transaction; nil when the
	// cursor runs inside a caller-owned transaction.
	finish   func(commit bool) error
	closeErr error
}

// cursorName mints a collision-free identifier for DECLARE. UUIDs avoid any
// coordination between concurrent cursors on the same connection.
func cursorName() string {
	return "comet_cur_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newServerCursor opens a dedicated transaction for the cursor; closing the
// cursor ends the transaction.
func newServerCursor(ctx context.Context, eng *SQLEngine, query string, args []any, size int) (Cursor, error) {
	tx, err := eng.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrTransaction, err, "cannot begin cursor transaction")
	}
	finish := func(commit bool) error {
		if commit {
			return tx.Commit()
		}
		return tx.Rollback()
	}
	cur, err := newServerCursorIn(ctx, tx, query, args, size, finish)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return cur, nil
}

// newServerCursorIn declares a cursor inside an existing transaction.
func newServerCursorIn(ctx context.Context, tx *sql.Tx, query string, args []any, size int, finish func(bool) error) (Cursor, error) {
	name := cursorName()
	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR WITHOUT HOLD FOR %s", name, query)
	if _, err := tx.ExecContext(ctx, declare, args...); err != nil {
		return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "cannot declare cursor").WithSQL(query)
	}
	return &serverCursor{tx: tx, name: name, size: size, finish: finish}, nil
}

func (c *serverCursor) Next(ctx context.Context) ([]Row, error) {
	if c.done {
		return nil, nil
	}
	fetch := fmt.Sprintf("FETCH %d FROM %s", c.size, c.name)
	rows, err := c.tx.QueryContext(ctx, fetch)
	if err != nil {
		c.Close()
		return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "cursor fetch failed").WithSQL(fetch)
	}
	chunk, err := scanRows(rows)
	rows.Close()
	if err != nil {
		c.Close()
		return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "cannot read cursor rows")
	}
	if len(chunk) == 0 {
		c.done = true
		if err := c.Close(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if len(chunk) < c.size {
		c.done = true
	}
	return chunk, nil
}

func (c *serverCursor) Close() error {
	c.close.Do(func() {
		// CLOSE can fail when the transaction is already aborted; the
		// rollback below releases the cursor either way.
		c.tx.Exec("CLOSE " + c.name)
		if c.finish != nil {
			if err := c.finish(true); err != nil {
				c.closeErr = qerr.Wrap(qerr.ErrTransaction, err, "cannot finish cursor transaction")
			}
		}
	})
	return c.closeErr
}

// windowCursor emulates batching with LIMIT/OFFSET for engines without
// server-side cursors. Rows inserted or deleted mid-iteration can shift the
// windows; callers needing a stable view should iterate inside a transaction.
type windowCursor struct {
	eng    Engine
	query  string
	args   []any
	size   int
	offset int
	done   bool
}

func newWindowCursor(eng Engine, query string, args []any, size int) Cursor {
	return &windowCursor{eng: eng, query: query, args: args, size: size}
}

func (c *windowCursor) Next(ctx context.Context) ([]Row, error) {
	if c.done {
		return nil, nil
	}
	// Wrap the query so a LIMIT/OFFSET it already carries stays scoped to
	// the inner select instead of colliding with the window clause.
	windowed := fmt.Sprintf("SELECT * FROM (%s) AS batch_window LIMIT %d OFFSET %d", c.query, c.size, c.offset)
	res, err := c.eng.Execute(ctx, windowed, c.args)
	if err != nil {
		c.done = true
		return nil, err
	}
	if len(res.Rows) == 0 {
		c.done = true
		return nil, nil
	}
	c.offset += len(res.Rows)
	if len(res.Rows) < c.size {
		c.done = true
	}
	return res.Rows, nil
}

func (c *windowCursor) Close() error {
	c.done = true
	return nil
}
