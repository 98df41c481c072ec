package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// VersionTable is the name of the revision tracking table.
const VersionTable = "comet_migrations"

// AppliedMigration is one row of the version table.
type AppliedMigration struct {
	Revision   string
	AppliedAt  time.Time
	Checksum   string
	ExecTimeMs int
}

// VersionManager tracks applied revisions in the comet_migrations table.
type VersionManager struct {
	eng db.Engine
}

// NewVersionManager returns a manager bound to the engine.
func NewVersionManager(eng db.Engine) *VersionManager {
	return &VersionManager{eng: eng}
}

// EnsureTable creates the tracking table if it doesn't exist.
func (v *VersionManager) EnsureTable(ctx context.Context) error {
	d := v.eng.Dialect()
	table := d.QuoteIdent(VersionTable)

	var stmt string
	switch d.Name() {
	case "sqlite":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    revision     TEXT PRIMARY KEY,
    applied_at   TEXT NOT NULL DEFAULT (datetime('now')),
    checksum     TEXT,
    exec_time_ms INTEGER
)`, table)
	default:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    revision     VARCHAR(255) PRIMARY KEY,
    applied_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    checksum     VARCHAR(64),
    exec_time_ms INTEGER
)`, table)
	}

	if _, err := v.eng.Execute(ctx, stmt, nil); err != nil {
		return qerr.Wrap(qerr.ErrSQLExecution, err, "cannot create version table").
			WithSQL(stmt)
	}
	return nil
}

// Applied returns every applied revision, oldest first.
func (v *VersionManager) Applied(ctx context.Context) ([]AppliedMigration, error) {
	d := v.eng.Dialect()
	stmt := fmt.Sprintf(
		"SELECT revision, applied_at, checksum, exec_time_ms FROM %s ORDER BY revision ASC",
		d.QuoteIdent(VersionTable))

	res, err := v.eng.Execute(ctx, stmt, nil)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrSQLExecution, err, "cannot read version table").
			WithSQL(stmt)
	}

	applied := make([]AppliedMigration, 0, len(res.Rows))
	for _, row := range res.Rows {
		m := AppliedMigration{
			Revision:  asString(row["revision"]),
			AppliedAt: asTime(row["applied_at"]),
			Checksum:  asString(row["checksum"]),
		}
		if n, ok := row["exec_time_ms"]; ok && n != nil {
			m.ExecTimeMs = int(asInt64(n))
		}
		applied = append(applied, m)
	}
	return applied, nil
}

// IsApplied reports whether a revision is recorded as applied.
func (v *VersionManager) IsApplied(ctx context.Context, revision string) (bool, error) {
	d := v.eng.Dialect()
	stmt := fmt.Sprintf("SELECT 1 AS one FROM %s WHERE revision = %s LIMIT 1",
		d.QuoteIdent(VersionTable), d.Placeholder(1))
	res, err := v.eng.Execute(ctx, stmt, []any{revision})
	if err != nil {
		return false, qerr.Wrap(qerr.ErrSQLExecution, err, "cannot check revision").
			With("revision", revision)
	}
	return len(res.Rows) > 0, nil
}

// RecordApplied inserts a revision row after a successful apply.
func (v *VersionManager) RecordApplied(ctx context.Context, revision, checksum string, execTime time.Duration) error {
	d := v.eng.Dialect()
	stmt := fmt.Sprintf("INSERT INTO %s (revision, checksum, exec_time_ms) VALUES (%s, %s, %s)",
		d.QuoteIdent(VersionTable), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	_, err := v.eng.Execute(ctx, stmt, []any{revision, checksum, execTime.Milliseconds()})
	if err != nil {
		return qerr.Wrap(qerr.ErrSQLExecution, err, "cannot record applied migration").
			With("revision", revision)
	}
	return nil
}

// RecordRollback deletes a revision row after a successful rollback.
func (v *VersionManager) RecordRollback(ctx context.Context, revision string) error {
	d := v.eng.Dialect()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE revision = %s",
		d.QuoteIdent(VersionTable), d.Placeholder(1))
	res, err := v.eng.Execute(ctx, stmt, []any{revision})
	if err != nil {
		return qerr.Wrap(qerr.ErrSQLExecution, err, "cannot remove migration record").
			With("revision", revision)
	}
	if res.RowsAffected == 0 {
		return qerr.New(qerr.ErrMigrationNotFound, "revision not found in version table").
			With("revision", revision)
	}
	return nil
}

// CheckIntegrity compares recorded checksums against the given migrations.
// A revision applied with a different checksum surfaces as E3003.
func (v *VersionManager) CheckIntegrity(ctx context.Context, migrations []Migration) error {
	applied, err := v.Applied(ctx)
	if err != nil {
		return err
	}
	byRevision := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byRevision[m.Revision] = m
	}
	for _, a := range applied {
		m, ok := byRevision[a.Revision]
		if !ok {
			continue // missing files are reported by Status, not here
		}
		if a.Checksum != "" && m.Checksum != "" && a.Checksum != m.Checksum {
			return qerr.New(qerr.ErrMigrationChecksum, "migration changed after it was applied").
				With("revision", a.Revision).
				With("expected", a.Checksum).
				With("actual", m.Checksum)
		}
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			"2006-01-02T15:04:05",
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case []byte:
		return asTime(string(t))
	}
	return time.Time{}
}
