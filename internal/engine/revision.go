package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hlop3z/cometdb/internal/ast"
)

// revision identifiers sort lexicographically by creation time:
// YYYYMMDDHHMMSS plus microseconds, then the migration name.
const revisionTimeFormat = "20060102150405"

// RevisionClock issues unique revision identifiers. Two revisions minted in
// the same microsecond get artificially bumped so ordering stays total.
type RevisionClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last string
}

// NewRevisionClock returns a clock backed by time.Now (UTC).
func NewRevisionClock() *RevisionClock {
	return &RevisionClock{now: func() time.Time { return time.Now().UTC() }}
}

// NewRevisionClockAt returns a clock backed by the given time source. Tests
// use this to mint deterministic revisions.
func NewRevisionClockAt(now func() time.Time) *RevisionClock {
	return &RevisionClock{now: now}
}

// Next mints a revision identifier for the given migration name.
func (c *RevisionClock) Next(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	stamp := t.Format(revisionTimeFormat) + fmt.Sprintf("%06d", t.Nanosecond()/1000)
	if stamp <= c.last {
		stamp = bumpStamp(c.last)
	}
	c.last = stamp
	if name == "" {
		return stamp
	}
	return stamp + "_" + sanitizeName(name)
}

// bumpStamp increments the microsecond part of a 20-digit stamp, carrying
// into the seconds at 999999 so the result stays 20 digits.
func bumpStamp(stamp string) string {
	if len(stamp) < 20 {
		return stamp + "0"
	}
	secs, micros := stamp[:14], stamp[14:20]
	n, err := strconv.Atoi(micros)
	if err != nil {
		return stamp + "0"
	}
	if n >= 999999 {
		t, err := time.Parse(revisionTimeFormat, secs)
		if err != nil {
			return stamp + "0"
		}
		return t.Add(time.Second).Format(revisionTimeFormat) + "000000"
	}
	return secs + fmt.Sprintf("%06d", n+1)
}

// sanitizeName lowercases and squeezes a migration name into identifier form.
func sanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// SplitRevision separates a revision identifier into its timestamp and name.
func SplitRevision(revision string) (stamp, name string) {
	if i := strings.IndexByte(revision, '_'); i >= 0 {
		return revision[:i], revision[i+1:]
	}
	return revision, ""
}

// NewMigration assembles a migration from a diff: revision, checksum, and a
// summary description.
func NewMigration(clock *RevisionClock, name string, ops []ast.Operation) (*Migration, error) {
	checksum, err := Checksum(ops)
	if err != nil {
		return nil, err
	}
	return &Migration{
		Revision:    clock.Next(name),
		Name:        sanitizeName(name),
		Checksum:    checksum,
		Operations:  ops,
		Description: describeOps(ops),
	}, nil
}

// describeOps builds a short human-readable summary from the diff tally.
func describeOps(ops []ast.Operation) string {
	s := Summarize(ops)
	var parts []string
	add := func(n int, noun string) {
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", noun))
		} else if n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", n, noun))
		}
	}
	add(s.TablesToCreate, "new table")
	add(s.TablesToDrop, "dropped table")
	add(s.TablesToRename, "renamed table")
	add(s.ColumnsToAdd, "new column")
	add(s.ColumnsToDrop, "dropped column")
	add(s.ColumnsToRename, "renamed column")
	add(s.ColumnsToAlter, "altered column")
	add(s.IndexesToAdd, "new index")
	add(s.IndexesToDrop, "dropped index")
	add(s.FKsToAdd, "new constraint")
	add(s.FKsToDrop, "dropped constraint")
	add(s.RawStatements, "raw statement")
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
