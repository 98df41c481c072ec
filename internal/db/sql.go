package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// sqliteReturningVersion is the first SQLite release with RETURNING support.
const sqliteReturningVersion = 3035000 // 3.35.0

// SQLEngine is the database/sql-backed Engine implementation.
type SQLEngine struct {
	db *sql.DB
	d  dialect.Dialect

	// strictTx makes nested Begin calls fail instead of flattening.
	strictTx bool

	// sqliteVersion is the numeric server version, probed once at Open.
	// Zero for non-SQLite engines.
	sqliteVersion int
}

// driverFor maps a dialect name to its database/sql driver.
func driverFor(name string) string {
	switch name {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

// Open connects to a database by dialect name and URL and verifies the
// connection with a ping.
func Open(ctx context.Context, dialectName, url string) (*SQLEngine, error) {
	d := dialect.Get(dialectName)
	if d == nil {
		return nil, qerr.Newf(qerr.ErrConnection, "unsupported dialect %q; valid: %s",
			dialectName, strings.Join(dialect.Names(), ", "))
	}
	handle, err := sql.Open(driverFor(dialectName), url)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrConnection, err, "cannot open database").
			With("dialect", d.Name())
	}
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, qerr.Wrap(qerr.ErrConnection, err, "cannot reach database").
			With("dialect", d.Name())
	}

	eng := &SQLEngine{db: handle, d: d}
	if d.Name() == "sqlite" {
		eng.sqliteVersion = probeSQLiteVersion(ctx, handle)
	}
	return eng, nil
}

// Wrap adapts an existing *sql.DB. Tests use this to substitute sqlmock.
func Wrap(handle *sql.DB, d dialect.Dialect) *SQLEngine {
	return &SQLEngine{db: handle, d: d}
}

// SetStrictTransactions makes nested Begin calls fail with a transaction
// error instead of flattening into the outer scope.
func (e *SQLEngine) SetStrictTransactions(on bool) { e.strictTx = on }

// Close releases the underlying connection pool.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

// DB exposes the raw handle for introspection queries.
func (e *SQLEngine) DB() *sql.DB { return e.db }

func (e *SQLEngine) Dialect() dialect.Dialect { return e.d }

func (e *SQLEngine) Execute(ctx context.Context, query string, args []any) (*Result, error) {
	return execute(ctx, e.db, query, args)
}

func (e *SQLEngine) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	stmt, err := e.db.PrepareContext(ctx, query)
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

func (e *SQLEngine) Begin(ctx context.Context) (Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrTransaction, err, "cannot begin transaction")
	}
	return &SQLTx{eng: e, tx: tx}, nil
}

func (e *SQLEngine) Batch(ctx context.Context, query string, args []any, size int) (Cursor, error) {
	if size <= 0 {
		return nil, qerr.New(qerr.ErrValidation, "batch size must be positive")
	}
	if e.SupportsFeature(dialect.FeatureServerCursors) {
		return newServerCursor(ctx, e, query, args, size)
	}
	return newWindowCursor(e, query, args, size), nil
}

// SupportsFeature layers runtime gates on top of the dialect's static answer:
// SQLite only gains RETURNING at 3.35.0.
func (e *SQLEngine) SupportsFeature(feature string) bool {
	if !e.d.SupportsFeature(feature) {
		return false
	}
	if feature == dialect.FeatureReturning && e.d.Name() == "sqlite" {
		return e.sqliteVersion == 0 || e.sqliteVersion >= sqliteReturningVersion
	}
	return true
}

func probeSQLiteVersion(ctx context.Context, handle *sql.DB) int {
	var version string
	if err := handle.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return 0
	}
	return parseSQLiteVersion(version)
}

// parseSQLiteVersion converts "3.35.5" to 3035005, SQLite's own numbering.
func parseSQLiteVersion(version string) int {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return 0
	}
	n := 0
	for i := 0; i < 3; i++ {
		part := 0
		if i < len(parts) {
			part, _ = strconv.Atoi(parts[i])
		}
		n = n*1000 + part
	}
	return n
}

// executor is the subset of *sql.DB and *sql.Tx that statements run on.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execute(ctx context.Context, ex executor, query string, args []any) (*Result, error) {
	if returnsRows(query) {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "query failed").WithSQL(query)
		}
		defer rows.Close()
		scanned, err := scanRows(rows)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "cannot read result rows").WithSQL(query)
		}
		return &Result{Rows: scanned, RowsAffected: int64(len(scanned))}, nil
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "statement failed").WithSQL(query)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0 // driver cannot say; DDL statements commonly land here
	}
	return &Result{RowsAffected: affected}, nil
}

// returnsRows reports whether a statement produces a result set, which decides
// Query vs Exec. RETURNING turns any write into a row producer.
func returnsRows(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "VALUES", "EXPLAIN", "PRAGMA", "SHOW", "FETCH"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.Contains(trimmed, " RETURNING ")
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
