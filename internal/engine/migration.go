package engine

import (
	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Direction indicates whether migrations run up (apply) or down (rollback).
type Direction int

const (
	// Up applies migrations.
	Up Direction = iota
	// Down rolls migrations back.
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Migration is a single revision: its forward operations plus everything
// needed to verify and reverse it.
type Migration struct {
	// Revision is the unique identifier (timestamp_name).
	Revision string

	// Name is the human-readable label ("add_band_table").
	Name string

	// Path is the migration file on disk, when loaded from a store.
	Path string

	// Checksum is the SHA-256 of the serialized operations.
	Checksum string

	// Operations are the forward operations.
	Operations []ast.Operation

	// DownOps are explicit reverse operations. When empty the reverse plan is
	// derived by inverting Operations in reverse order.
	DownOps []ast.Operation

	// Irreversible marks migrations that must never be rolled back.
	Irreversible bool

	// Description is an optional human-readable summary.
	Description string
}

// Reverse returns the operations that undo this migration: the explicit
// DownOps when present, otherwise each forward operation inverted, in
// reverse order. Irreversible migrations and operations that cannot be
// inverted surface as E3004.
func (m *Migration) Reverse() ([]ast.Operation, error) {
	if m.Irreversible {
		return nil, qerr.New(qerr.ErrIrreversible, "migration is marked irreversible").
			With("revision", m.Revision)
	}
	if len(m.DownOps) > 0 {
		return m.DownOps, nil
	}
	down := make([]ast.Operation, 0, len(m.Operations))
	for i := len(m.Operations) - 1; i >= 0; i-- {
		inv, err := m.Operations[i].Invert()
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrIrreversible, err, "migration cannot be reversed").
				With("revision", m.Revision)
		}
		down = append(down, inv)
	}
	return down, nil
}

// Plan is an ordered set of migrations to execute in one direction.
type Plan struct {
	Migrations []Migration
	Direction  Direction
}

// IsEmpty reports whether the plan has nothing to do.
func (p *Plan) IsEmpty() bool {
	return len(p.Migrations) == 0
}

// PlanStatus is the state of one migration relative to the database.
type PlanStatus int

const (
	// StatusPending means the migration has not been applied.
	StatusPending PlanStatus = iota
	// StatusApplied means the migration has been applied.
	StatusApplied
	// StatusMissing means the migration was applied but its file is gone.
	StatusMissing
	// StatusModified means the file changed after it was applied.
	StatusModified
)

func (s PlanStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApplied:
		return "applied"
	case StatusMissing:
		return "missing"
	case StatusModified:
		return "modified"
	default:
		return "unknown"
	}
}

// MigrationStatus pairs a revision with its state for status output.
type MigrationStatus struct {
	Revision  string
	Name      string
	Status    PlanStatus
	AppliedAt string // empty when not applied
	Checksum  string
}
