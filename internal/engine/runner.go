package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Runner executes migration plans against a database engine. Each migration
// runs in its own transaction when the dialect supports transactional DDL, so
// a failed statement leaves the database at a revision boundary.
type Runner struct {
	eng      db.Engine
	versions *VersionManager
	// txOverride forces per-migration transactions on or off regardless of
	// the dialect default; nil keeps the dialect's behavior.
	txOverride *bool
}

// NewRunner returns a runner bound to the engine, or nil when eng is nil.
func NewRunner(eng db.Engine) *Runner {
	if eng == nil {
		return nil
	}
	return &Runner{eng: eng, versions: NewVersionManager(eng)}
}

// Versions exposes the runner's version manager for status queries.
func (r *Runner) Versions() *VersionManager { return r.versions }

// SetTransactional overrides whether each migration runs inside its own
// transaction. Turning it off lets statements that cannot run in a
// transaction block (CREATE INDEX CONCURRENTLY and friends) go through.
func (r *Runner) SetTransactional(on bool) {
	r.txOverride = &on
}

// Run executes every migration in the plan, recording each in the version
// table as it completes.
func (r *Runner) Run(ctx context.Context, plan *Plan) error {
	if plan.IsEmpty() {
		return nil
	}
	if err := r.versions.EnsureTable(ctx); err != nil {
		return err
	}
	for _, m := range plan.Migrations {
		if err := r.runOne(ctx, m, plan.Direction); err != nil {
			return qerr.Wrap(qerr.ErrMigrationFailed, err, "migration failed").
				With("revision", m.Revision).
				With("direction", plan.Direction.String())
		}
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, m Migration, dir Direction) error {
	start := time.Now()

	ops := m.Operations
	if dir == Down {
		reversed, err := m.Reverse()
		if err != nil {
			return err
		}
		ops = reversed
	}

	slog.Info("running migration",
		"revision", m.Revision,
		"direction", dir.String(),
		"operations", len(ops))

	transactional := r.eng.SupportsFeature(dialect.FeatureTransactionalDDL)
	if r.txOverride != nil {
		transactional = *r.txOverride
	}

	var err error
	if transactional {
		err = r.runTransactional(ctx, ops)
	} else {
		err = r.runStatements(ctx, r.eng, ops)
	}
	if err != nil {
		return err
	}

	execTime := time.Since(start)
	switch dir {
	case Up:
		return r.versions.RecordApplied(ctx, m.Revision, m.Checksum, execTime)
	case Down:
		return r.versions.RecordRollback(ctx, m.Revision)
	}
	return nil
}

func (r *Runner) runTransactional(ctx context.Context, ops []ast.Operation) error {
	tx, err := r.eng.Begin(ctx)
	if err != nil {
		return qerr.Wrap(qerr.ErrTransaction, err, "cannot begin migration transaction")
	}
	if err := r.runStatements(ctx, tx, ops); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("rollback after failed migration also failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return qerr.Wrap(qerr.ErrTransaction, err, "cannot commit migration transaction")
	}
	return nil
}

func (r *Runner) runStatements(ctx context.Context, eng db.Engine, ops []ast.Operation) error {
	d := eng.Dialect()
	for _, op := range ops {
		stmts, err := dialect.SQL(d, op)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := eng.Execute(ctx, stmt, nil); err != nil {
				return qerr.Wrap(qerr.ErrSQLExecution, err, "statement failed").
					WithSQL(stmt)
			}
		}
	}
	return nil
}
