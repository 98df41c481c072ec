package query

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/sqlgen"
)

// LockStrength selects the row-locking clause of a select.
type LockStrength string

const (
	LockNone   LockStrength = ""
	LockUpdate LockStrength = "FOR UPDATE"
	LockShare  LockStrength = "FOR SHARE"
)

type orderTerm struct {
	col  *ColumnRef
	desc bool
}

type lockSpec struct {
	strength   LockStrength
	nowait     bool
	skipLocked bool
	of         []*Table
}

// Select assembles a SELECT statement. Builders chain; the first render
// freezes the statement and later mutation attempts surface as errors when
// the statement runs.
type Select struct {
	table          *Table
	columns        []any // *ColumnRef or *AllColumns
	where          *Predicate
	order          []orderTerm
	group          []*ColumnRef
	limit          int
	hasLimit       bool
	offset         int
	hasOffset      bool
	distinct       bool
	distinctOn     []*ColumnRef
	lock           lockSpec
	excludeSecrets bool
	nested         bool
	frozen         bool
	err            error
}

// Select starts a SELECT against the table. With no columns, all columns of
// the root table are selected.
func (t *Table) Select(columns ...any) *Select {
	s := &Select{table: t}
	return s.Columns(columns...)
}

func (s *Select) mutate() bool {
	if s.frozen {
		if s.err == nil {
			s.err = qerr.New(qerr.ErrFrozenQuery, "select was already rendered; build a new one").
				WithTable(s.table.def.Schema, s.table.def.Tablename)
		}
		return false
	}
	return true
}

// Columns appends column selections: *ColumnRef or *AllColumns entries.
func (s *Select) Columns(columns ...any) *Select {
	if !s.mutate() {
		return s
	}
	for _, c := range columns {
		switch c.(type) {
		case *ColumnRef, *AllColumns:
			s.columns = append(s.columns, c)
		default:
			s.err = qerr.Newf(qerr.ErrValidation, "unsupported column selection %T", c)
		}
	}
	return s
}

// Where sets the predicate. Repeated calls AND the predicates together.
func (s *Select) Where(p *Predicate) *Select {
	if !s.mutate() {
		return s
	}
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// OrderBy appends an ascending order term.
func (s *Select) OrderBy(cols ...*ColumnRef) *Select {
	if !s.mutate() {
		return s
	}
	for _, c := range cols {
		s.order = append(s.order, orderTerm{col: c})
	}
	return s
}

// OrderByDesc appends a descending order term.
func (s *Select) OrderByDesc(cols ...*ColumnRef) *Select {
	if !s.mutate() {
		return s
	}
	for _, c := range cols {
		s.order = append(s.order, orderTerm{col: c, desc: true})
	}
	return s
}

// GroupBy appends grouping columns.
func (s *Select) GroupBy(cols ...*ColumnRef) *Select {
	if !s.mutate() {
		return s
	}
	s.group = append(s.group, cols...)
	return s
}

// Limit caps the number of returned rows.
func (s *Select) Limit(n int) *Select {
	if !s.mutate() {
		return s
	}
	s.limit, s.hasLimit = n, true
	return s
}

// Offset skips the first n rows.
func (s *Select) Offset(n int) *Select {
	if !s.mutate() {
		return s
	}
	s.offset, s.hasOffset = n, true
	return s
}

// Distinct adds DISTINCT to the select.
func (s *Select) Distinct() *Select {
	if !s.mutate() {
		return s
	}
	s.distinct = true
	return s
}

// DistinctOn adds DISTINCT ON (cols). The columns must be a leading prefix of
// the ORDER BY terms; anything else is rejected at render time the way
// PostgreSQL itself would reject it.
func (s *Select) DistinctOn(cols ...*ColumnRef) *Select {
	if !s.mutate() {
		return s
	}
	s.distinct = true
	s.distinctOn = append(s.distinctOn, cols...)
	return s
}

// Lock adds a row-locking clause.
func (s *Select) Lock(strength LockStrength) *Select {
	if !s.mutate() {
		return s
	}
	s.lock.strength = strength
	return s
}

// Nowait makes the lock fail immediately instead of waiting.
func (s *Select) Nowait() *Select {
	if !s.mutate() {
		return s
	}
	s.lock.nowait = true
	return s
}

// SkipLocked makes the lock skip already-locked rows.
func (s *Select) SkipLocked() *Select {
	if !s.mutate() {
		return s
	}
	s.lock.skipLocked = true
	return s
}

// LockOf restricts the lock to the given tables.
func (s *Select) LockOf(tables ...*Table) *Select {
	if !s.mutate() {
		return s
	}
	s.lock.of = append(s.lock.of, tables...)
	return s
}

// ExcludeSecrets drops secret-tagged columns from all-column expansions.
func (s *Select) ExcludeSecrets() *Select {
	if !s.mutate() {
		return s
	}
	s.excludeSecrets = true
	return s
}

// Nested makes Run return joined columns as nested maps instead of dotted
// keys: {"manager_id": {"name": ...}} rather than {"manager_id.name": ...}.
func (s *Select) Nested() *Select {
	if !s.mutate() {
		return s
	}
	s.nested = true
	return s
}

// selected is one rendered output column.
type selected struct {
	sql    sqlgen.QueryString
	output string
}

func (s *Select) expandColumns(joins *joinSet) ([]selected, error) {
	entries := s.columns
	if len(entries) == 0 {
		entries = []any{s.table.All()}
	}
	var out []selected
	for _, entry := range entries {
		switch c := entry.(type) {
		case *ColumnRef:
			r, err := c.resolve()
			if err != nil {
				return nil, err
			}
			joins.add(r.joins)
			out = append(out, selected{sql: columnSQL(s.table, r), output: c.OutputName()})
		case *AllColumns:
			for _, col := range c.table.def.Columns {
				if c.exclude[col.Name] {
					continue
				}
				if s.excludeSecrets && col.Secret {
					continue
				}
				ref := c.table.Col(col.Name)
				r, err := ref.resolve()
				if err != nil {
					return nil, err
				}
				out = append(out, selected{sql: columnSQL(s.table, r), output: ref.OutputName()})
			}
		}
	}
	return out, nil
}

// Render produces the final statement fragment. The statement is frozen from
// this point on.
func (s *Select) Render(d dialect.Dialect) (sqlgen.QueryString, error) {
	s.frozen = true
	if s.err != nil {
		return sqlgen.QueryString{}, s.err
	}

	joins := newJoinSet()
	cols, err := s.expandColumns(joins)
	if err != nil {
		return sqlgen.QueryString{}, err
	}

	// Predicate and order terms may introduce joins of their own; render them
	// before assembling so the join set is complete.
	var whereQS sqlgen.QueryString
	if s.where != nil {
		whereQS, err = s.where.render(s.table, d, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
	}
	orderQS, err := s.renderOrder(d, joins)
	if err != nil {
		return sqlgen.QueryString{}, err
	}
	groupQS, err := s.renderGroup(d, joins)
	if err != nil {
		return sqlgen.QueryString{}, err
	}

	head := "SELECT"
	var parts []sqlgen.QueryString
	if len(s.distinctOn) > 0 {
		if !d.SupportsFeature(dialect.FeatureDistinctOn) {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrDistinctOn,
				"DISTINCT ON is not supported on %s", d.Name())
		}
		if err := s.checkDistinctOnOrder(); err != nil {
			return sqlgen.QueryString{}, err
		}
		onQS, err := s.renderRefs(s.distinctOn, joins)
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		parts = append(parts, sqlgen.Compose(head+" DISTINCT ON ({})", onQS))
	} else if s.distinct {
		parts = append(parts, sqlgen.Raw(head+" DISTINCT"))
	} else {
		parts = append(parts, sqlgen.Raw(head))
	}

	colParts := make([]sqlgen.QueryString, len(cols))
	for i, c := range cols {
		// Output names may contain dots ("manager_id.name"); quote them as a
		// single identifier rather than a qualified one.
		colParts[i] = sqlgen.Compose("{} AS {}", c.sql, sqlgen.Unsafe(d.QuoteIdent(c.output)))
	}
	parts = append(parts, sqlgen.Concat(", ", colParts...))

	// Alias the root to its bare name so column references render the same
	// whether the dialect qualifies ("music"."band") or flattens ("music_band").
	parts = append(parts, sqlgen.Compose("FROM {} AS {}",
		sqlgen.Unsafe(d.TableName(s.table.def.Schema, s.table.def.Tablename)),
		sqlgen.Ident(s.table.def.Tablename)))

	if joins.Len() > 0 {
		parts = append(parts, joins.render(d))
	}
	if !whereQS.IsZero() {
		parts = append(parts, sqlgen.Compose("WHERE {}", whereQS))
	}
	if !groupQS.IsZero() {
		parts = append(parts, sqlgen.Compose("GROUP BY {}", groupQS))
	}
	if !orderQS.IsZero() {
		parts = append(parts, sqlgen.Compose("ORDER BY {}", orderQS))
	}
	if s.hasLimit {
		parts = append(parts, sqlgen.Compose("LIMIT {}", sqlgen.Unsafe(strconv.Itoa(s.limit))))
	}
	if s.hasOffset {
		parts = append(parts, sqlgen.Compose("OFFSET {}", sqlgen.Unsafe(strconv.Itoa(s.offset))))
	}

	if s.lock.strength != LockNone {
		if !d.SupportsFeature(dialect.FeatureForUpdate) {
			return sqlgen.QueryString{}, qerr.Newf(qerr.ErrUnsupportedFeature,
				"row locking is not supported on %s", d.Name())
		}
		lock := string(s.lock.strength)
		if len(s.lock.of) > 0 {
			names := make([]string, len(s.lock.of))
			for i, t := range s.lock.of {
				names[i] = d.QuoteIdent(t.def.Tablename)
			}
			lock += " OF " + strings.Join(names, ", ")
		}
		if s.lock.nowait {
			lock += " NOWAIT"
		} else if s.lock.skipLocked {
			lock += " SKIP LOCKED"
		}
		parts = append(parts, sqlgen.Raw(lock))
	}

	return sqlgen.Concat(" ", parts...), nil
}

// innerRender renders the select for embedding as an IN sub-query, which
// requires exactly one explicitly selected column.
func (s *Select) innerRender(d dialect.Dialect) (sqlgen.QueryString, error) {
	if len(s.columns) != 1 {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
			"a sub-query must select exactly one column").
			WithTable(s.table.def.Schema, s.table.def.Tablename)
	}
	if _, ok := s.columns[0].(*ColumnRef); !ok {
		return sqlgen.QueryString{}, qerr.New(qerr.ErrValidation,
			"a sub-query must select a single column reference").
			WithTable(s.table.def.Schema, s.table.def.Tablename)
	}
	return s.Render(d)
}

func (s *Select) renderRefs(refs []*ColumnRef, joins *joinSet) (sqlgen.QueryString, error) {
	parts := make([]sqlgen.QueryString, len(refs))
	for i, ref := range refs {
		r, err := ref.resolve()
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		joins.add(r.joins)
		parts[i] = columnSQL(s.table, r)
	}
	return sqlgen.Concat(", ", parts...), nil
}

func (s *Select) renderOrder(d dialect.Dialect, joins *joinSet) (sqlgen.QueryString, error) {
	if len(s.order) == 0 {
		return sqlgen.QueryString{}, nil
	}
	parts := make([]sqlgen.QueryString, len(s.order))
	for i, term := range s.order {
		r, err := term.col.resolve()
		if err != nil {
			return sqlgen.QueryString{}, err
		}
		joins.add(r.joins)
		col := columnSQL(s.table, r)
		if term.desc {
			parts[i] = sqlgen.Compose("{} DESC", col)
		} else {
			parts[i] = sqlgen.Compose("{} ASC", col)
		}
	}
	return sqlgen.Concat(", ", parts...), nil
}

func (s *Select) renderGroup(d dialect.Dialect, joins *joinSet) (sqlgen.QueryString, error) {
	if len(s.group) == 0 {
		return sqlgen.QueryString{}, nil
	}
	return s.renderRefs(s.group, joins)
}

// checkDistinctOnOrder enforces the PostgreSQL rule that DISTINCT ON
// expressions must be a leading prefix of ORDER BY.
func (s *Select) checkDistinctOnOrder() error {
	if len(s.order) < len(s.distinctOn) {
		return qerr.New(qerr.ErrDistinctOn,
			"DISTINCT ON columns must be a leading prefix of ORDER BY")
	}
	for i, on := range s.distinctOn {
		if on.PathKey() != s.order[i].col.PathKey() || on.name != s.order[i].col.name {
			return qerr.Newf(qerr.ErrDistinctOn,
				"DISTINCT ON column %q does not match ORDER BY position %d", on.name, i+1).
				WithColumn(on.name)
		}
	}
	return nil
}

// Run executes the select and returns its rows. Joined columns appear under
// dotted keys, or as nested maps when Nested was requested.
func (s *Select) Run(ctx context.Context) ([]db.Row, error) {
	eng, err := s.table.engine()
	if err != nil {
		return nil, err
	}
	qs, err := s.Render(eng.Dialect())
	if err != nil {
		return nil, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return nil, err
	}
	res, err := eng.Execute(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	rows := res.Rows
	if s.nested {
		nested := make([]db.Row, len(rows))
		for i, r := range rows {
			nested[i] = nestRow(r)
		}
		rows = nested
	}
	return rows, nil
}

// RunFlat executes the select and returns the single selected column as a
// flat list of values, one per row.
func (s *Select) RunFlat(ctx context.Context) ([]any, error) {
	if len(s.columns) != 1 {
		return nil, qerr.New(qerr.ErrValidation, "flat output requires exactly one selected column").
			WithTable(s.table.def.Schema, s.table.def.Tablename)
	}
	ref, ok := s.columns[0].(*ColumnRef)
	if !ok {
		return nil, qerr.New(qerr.ErrValidation, "flat output requires a single column reference").
			WithTable(s.table.def.Schema, s.table.def.Tablename)
	}
	name := ref.OutputName()
	rows, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[name]
	}
	return out, nil
}

// First executes the select with LIMIT 1 and returns the single row, or nil
// when nothing matches.
func (s *Select) First(ctx context.Context) (db.Row, error) {
	if !s.frozen && !s.hasLimit {
		s.Limit(1)
	}
	rows, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// RunJSON executes the select and returns the rows as a JSON array.
func (s *Select) RunJSON(ctx context.Context) (string, error) {
	rows, err := s.Run(ctx)
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = []db.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", qerr.Wrap(qerr.ErrValidation, err, "encoding result rows")
	}
	return string(data), nil
}

// Batch executes the select through a cursor, yielding rows in chunks of
// size. The caller must Close the cursor.
func (s *Select) Batch(ctx context.Context, size int) (db.Cursor, error) {
	if size <= 0 {
		return nil, qerr.Newf(qerr.ErrValidation, "batch size must be positive, got %d", size)
	}
	eng, err := s.table.engine()
	if err != nil {
		return nil, err
	}
	qs, err := s.Render(eng.Dialect())
	if err != nil {
		return nil, err
	}
	sql, args, err := qs.Render(eng.Dialect().Kind())
	if err != nil {
		return nil, err
	}
	return eng.Batch(ctx, sql, args, size)
}

// nestRow converts dotted keys into nested maps. "manager_id.name" becomes
// row["manager_id"]["name"].
func nestRow(flat db.Row) db.Row {
	out := make(db.Row, len(flat))
	for k, v := range flat {
		parts := strings.Split(k, ".")
		if len(parts) == 1 {
			out[k] = v
			continue
		}
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(db.Row)
			if !ok {
				next = db.Row{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return out
}

