package engine

import (
	"sort"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Status reconciles migration files with the version table: pending files,
// applied revisions, files that vanished after apply, and files whose
// checksum changed after apply.
func Status(migrations []Migration, applied []AppliedMigration) []MigrationStatus {
	appliedBy := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedBy[a.Revision] = a
	}
	fileBy := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		fileBy[m.Revision] = m
	}

	var statuses []MigrationStatus
	for _, m := range migrations {
		st := MigrationStatus{Revision: m.Revision, Name: m.Name, Checksum: m.Checksum}
		if a, ok := appliedBy[m.Revision]; ok {
			st.Status = StatusApplied
			if !a.AppliedAt.IsZero() {
				st.AppliedAt = a.AppliedAt.Format("2006-01-02 15:04:05")
			}
			if a.Checksum != "" && m.Checksum != "" && a.Checksum != m.Checksum {
				st.Status = StatusModified
			}
		} else {
			st.Status = StatusPending
		}
		statuses = append(statuses, st)
	}
	for _, a := range applied {
		if _, ok := fileBy[a.Revision]; !ok {
			statuses = append(statuses, MigrationStatus{
				Revision:  a.Revision,
				Status:    StatusMissing,
				AppliedAt: a.AppliedAt.Format("2006-01-02 15:04:05"),
				Checksum:  a.Checksum,
			})
		}
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Revision < statuses[j].Revision
	})
	return statuses
}

// PlanUp builds the forward plan: every unapplied migration in revision
// order, optionally stopping at target (inclusive). Applied migrations whose
// files changed abort planning with E3003.
func PlanUp(migrations []Migration, applied []AppliedMigration, target string) (*Plan, error) {
	appliedBy := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedBy[a.Revision] = a
	}

	plan := &Plan{Direction: Up}
	for _, m := range migrations {
		if a, ok := appliedBy[m.Revision]; ok {
			if a.Checksum != "" && m.Checksum != "" && a.Checksum != m.Checksum {
				return nil, qerr.New(qerr.ErrMigrationChecksum, "migration changed after it was applied").
					With("revision", m.Revision)
			}
			continue
		}
		plan.Migrations = append(plan.Migrations, m)
		if target != "" && m.Revision == target {
			return plan, nil
		}
	}
	if target != "" && (len(plan.Migrations) == 0 ||
		plan.Migrations[len(plan.Migrations)-1].Revision != target) {
		if _, ok := appliedBy[target]; ok {
			return &Plan{Direction: Up}, nil // already at or past the target
		}
		return nil, qerr.New(qerr.ErrMigrationNotFound, "target revision not found").
			With("revision", target)
	}
	return plan, nil
}

// PlanDown builds the rollback plan: the newest applied migrations first,
// down to but not including target. With no target it rolls back only the
// newest one. Rolling back past a missing migration file is an error; there
// is nothing to invert.
func PlanDown(migrations []Migration, applied []AppliedMigration, target string) (*Plan, error) {
	fileBy := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		fileBy[m.Revision] = m
	}

	// Applied, newest first.
	revs := make([]string, 0, len(applied))
	for _, a := range applied {
		revs = append(revs, a.Revision)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(revs)))

	plan := &Plan{Direction: Down}
	for _, rev := range revs {
		if rev == target {
			return plan, nil
		}
		m, ok := fileBy[rev]
		if !ok {
			return nil, qerr.New(qerr.ErrMigrationNotFound, "applied migration has no file to roll back").
				With("revision", rev)
		}
		plan.Migrations = append(plan.Migrations, m)
		if target == "" {
			return plan, nil
		}
	}
	if target != "" {
		return nil, qerr.New(qerr.ErrMigrationNotFound, "target revision was never applied").
			With("revision", target)
	}
	return plan, nil
}

// PreviewStatement is one rendered DDL statement with its source revision.
type PreviewStatement struct {
	Revision string
	SQL      string
}

// Preview renders every statement the plan would execute, without touching a
// database. Rollback previews render the reverse operations.
func Preview(plan *Plan, d dialect.Dialect) ([]PreviewStatement, error) {
	var out []PreviewStatement
	for _, m := range plan.Migrations {
		ops := m.Operations
		if plan.Direction == Down {
			reversed, err := m.Reverse()
			if err != nil {
				return nil, err
			}
			ops = reversed
		}
		for _, op := range ops {
			stmts, err := dialect.SQL(d, op)
			if err != nil {
				return nil, err
			}
			for _, stmt := range stmts {
				out = append(out, PreviewStatement{Revision: m.Revision, SQL: stmt})
			}
		}
	}
	return out, nil
}

// ReplayTo computes the schema snapshot after applying migrations up to and
// including target. An empty target replays the whole history.
func ReplayTo(migrations []Migration, target string) (*Schema, error) {
	var ops []ast.Operation
	found := target == ""
	for _, m := range migrations {
		ops = append(ops, m.Operations...)
		if m.Revision == target {
			found = true
			break
		}
	}
	if !found {
		return nil, qerr.New(qerr.ErrMigrationNotFound, "target revision not found").
			With("revision", target)
	}
	return Replay(nil, ops)
}
