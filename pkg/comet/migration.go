package comet

import (
	"context"
	"sort"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/drift"
	"github.com/hlop3z/cometdb/internal/engine"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Check resolves every named foreign-key reference in the declared schema.
// Dangling or type-mismatched references surface as E1005/E2003.
func (c *Client) Check() error {
	return c.reg.ResolveReferences()
}

// Declared returns the snapshot of the declared (registered) schema.
func (c *Client) Declared() (*engine.Schema, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	return engine.SnapshotRegistry(c.reg), nil
}

// Replayed returns the schema snapshot implied by the migration history:
// every stored migration's operations applied in order to an empty schema.
func (c *Client) Replayed() (*engine.Schema, error) {
	migrations, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	return engine.ReplayTo(migrations, "")
}

// Diff computes the operations that would bring the migration history in
// line with the declared schema. An empty result means they agree.
func (c *Client) Diff() ([]ast.Operation, error) {
	declared, err := c.Declared()
	if err != nil {
		return nil, err
	}
	replayed, err := c.Replayed()
	if err != nil {
		return nil, err
	}
	return engine.Diff(replayed, declared)
}

// DetectRenames inspects the pending diff for drop+add pairs that look like
// renames. Candidates must be confirmed by the caller before MigrationNew
// folds them in; the engine never guesses on its own.
func (c *Client) DetectRenames() ([]engine.RenameCandidate, error) {
	ops, err := c.Diff()
	if err != nil {
		return nil, err
	}
	return engine.DetectRenames(ops)
}

// MigrationNew diffs the declared schema against the migration history and
// writes a new migration file for the changes. Confirmed rename candidates
// replace their drop+add pairs. Returns nil without writing anything when
// there is nothing to migrate.
func (c *Client) MigrationNew(name string, confirmed []engine.RenameCandidate) (*engine.Migration, error) {
	ops, err := c.Diff()
	if err != nil {
		return nil, err
	}
	if len(confirmed) > 0 {
		ops = engine.ApplyRenames(ops, confirmed)
	}
	if !engine.HasChanges(ops) {
		return nil, nil
	}
	m, err := engine.NewMigration(c.clock, name, ops)
	if err != nil {
		return nil, err
	}
	path, err := c.store.Save(m)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// RunOptions controls MigrationRun.
type RunOptions struct {
	// DryRun renders the SQL without executing it.
	DryRun bool

	// Target stops after applying this revision. Empty applies everything.
	Target string

	// NoTransaction runs each migration's statements outside a transaction,
	// for DDL that refuses to run inside one.
	NoTransaction bool
}

// RollbackOptions controls MigrationRollback.
type RollbackOptions struct {
	// DryRun renders the SQL without executing it.
	DryRun bool

	// Target rolls back everything newer than this revision. Takes
	// precedence over Steps.
	Target string

	// Steps rolls back the newest N applied migrations. Defaults to 1.
	Steps int

	// NoTransaction runs each migration's statements outside a transaction.
	NoTransaction bool
}

// RunResult reports what a run did (or, for dry runs, would do).
type RunResult struct {
	// Applied lists the revisions executed, in order.
	Applied []string

	// Statements holds the rendered SQL for dry runs.
	Statements []engine.PreviewStatement
}

// MigrationRun applies pending migrations in revision order.
func (c *Client) MigrationRun(ctx context.Context, opts RunOptions) (*RunResult, error) {
	eng, err := c.engine()
	if err != nil {
		return nil, err
	}
	migrations, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	versions := engine.NewVersionManager(eng)
	if err := versions.EnsureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := versions.Applied(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := engine.PlanUp(migrations, applied, opts.Target)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, plan, opts.DryRun, opts.NoTransaction)
}

// MigrationRollback rolls back applied migrations, newest first.
func (c *Client) MigrationRollback(ctx context.Context, opts RollbackOptions) (*RunResult, error) {
	eng, err := c.engine()
	if err != nil {
		return nil, err
	}
	migrations, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	versions := engine.NewVersionManager(eng)
	if err := versions.EnsureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := versions.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var plan *engine.Plan
	switch {
	case opts.Target != "":
		plan, err = engine.PlanDown(migrations, applied, opts.Target)
	case opts.Steps > 1:
		plan, err = planDownSteps(migrations, applied, opts.Steps)
	default:
		plan, err = engine.PlanDown(migrations, applied, "")
	}
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, plan, opts.DryRun, opts.NoTransaction)
}

// planDownSteps builds a rollback plan for the newest N applied revisions.
func planDownSteps(migrations []engine.Migration, applied []engine.AppliedMigration, steps int) (*engine.Plan, error) {
	if steps > len(applied) {
		return nil, qerr.Newf(qerr.ErrMigrationNotFound, "cannot roll back %d migrations, only %d applied", steps, len(applied))
	}
	fileBy := make(map[string]engine.Migration, len(migrations))
	for _, m := range migrations {
		fileBy[m.Revision] = m
	}
	revs := make([]string, 0, len(applied))
	for _, a := range applied {
		revs = append(revs, a.Revision)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(revs)))

	plan := &engine.Plan{Direction: engine.Down}
	for _, rev := range revs[:steps] {
		m, ok := fileBy[rev]
		if !ok {
			return nil, qerr.New(qerr.ErrMigrationNotFound, "applied migration has no file to roll back").
				With("revision", rev)
		}
		plan.Migrations = append(plan.Migrations, m)
	}
	return plan, nil
}

func (c *Client) execute(ctx context.Context, plan *engine.Plan, dryRun, noTx bool) (*RunResult, error) {
	result := &RunResult{}
	if dryRun {
		stmts, err := engine.Preview(plan, c.d)
		if err != nil {
			return nil, err
		}
		result.Statements = stmts
	} else {
		runner := engine.NewRunner(c.eng)
		if noTx {
			runner.SetTransactional(false)
		}
		if err := runner.Run(ctx, plan); err != nil {
			return nil, err
		}
	}
	for _, m := range plan.Migrations {
		result.Applied = append(result.Applied, m.Revision)
	}
	return result, nil
}

// Preview renders the SQL for every pending migration without a database.
func (c *Client) Preview(ctx context.Context) ([]engine.PreviewStatement, error) {
	migrations, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	var applied []engine.AppliedMigration
	if c.eng != nil {
		versions := engine.NewVersionManager(c.eng)
		if err := versions.EnsureTable(ctx); err != nil {
			return nil, err
		}
		if applied, err = versions.Applied(ctx); err != nil {
			return nil, err
		}
	}
	plan, err := engine.PlanUp(migrations, applied, "")
	if err != nil {
		return nil, err
	}
	return engine.Preview(plan, c.d)
}

// MigrationStatus reconciles migration files against the version table.
func (c *Client) MigrationStatus(ctx context.Context) ([]engine.MigrationStatus, error) {
	eng, err := c.engine()
	if err != nil {
		return nil, err
	}
	migrations, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	versions := engine.NewVersionManager(eng)
	if err := versions.EnsureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := versions.Applied(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Status(migrations, applied), nil
}

// History returns the applied revisions recorded in the version table.
func (c *Client) History(ctx context.Context) ([]engine.AppliedMigration, error) {
	eng, err := c.engine()
	if err != nil {
		return nil, err
	}
	versions := engine.NewVersionManager(eng)
	if err := versions.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return versions.Applied(ctx)
}

// Drift compares the schema implied by the migration history against the
// declared schema and reports per-table differences. A clean report means
// every declared change has a migration.
func (c *Client) Drift() (*drift.Report, error) {
	declared, err := c.Declared()
	if err != nil {
		return nil, err
	}
	replayed, err := c.Replayed()
	if err != nil {
		return nil, err
	}
	return drift.Detect(replayed, declared)
}
