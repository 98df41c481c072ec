package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hlop3z/cometdb/internal/ast"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// Store reads and writes migration files in a directory. One file per
// revision, named <revision>.json, so lexicographic file order is apply
// order.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the migration directory.
func (s *Store) Dir() string { return s.dir }

// migrationFile is the on-disk shape of a migration.
type migrationFile struct {
	Revision     string          `json:"revision"`
	Name         string          `json:"name,omitempty"`
	Checksum     string          `json:"checksum,omitempty"`
	Description  string          `json:"description,omitempty"`
	Irreversible bool            `json:"irreversible,omitempty"`
	Operations   json.RawMessage `json:"operations"`
	Down         json.RawMessage `json:"down,omitempty"`
}

// Save writes the migration to <dir>/<revision>.json, creating the directory
// on first use.
func (s *Store) Save(m *Migration) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot create migration directory").
			With("dir", s.dir)
	}

	ops, err := ast.MarshalOperations(m.Operations)
	if err != nil {
		return "", err
	}
	file := migrationFile{
		Revision:     m.Revision,
		Name:         m.Name,
		Checksum:     m.Checksum,
		Description:  m.Description,
		Irreversible: m.Irreversible,
		Operations:   ops,
	}
	if len(m.DownOps) > 0 {
		down, err := ast.MarshalOperations(m.DownOps)
		if err != nil {
			return "", err
		}
		file.Down = down
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return "", qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot encode migration").
			With("revision", m.Revision)
	}
	data = append(data, '\n')

	path := filepath.Join(s.dir, m.Revision+".json")
	if _, err := os.Stat(path); err == nil {
		return "", qerr.New(qerr.ErrMigrationFailed, "migration file already exists").
			With("path", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot write migration file").
			With("path", path)
	}
	return path, nil
}

// Load reads every migration in the directory, sorted by revision. A missing
// directory is an empty history, not an error.
func (s *Store) Load() ([]Migration, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot read migration directory").
			With("dir", s.dir)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		m, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Revision < migrations[j].Revision
	})
	return migrations, nil
}

// Get loads a single migration by revision.
func (s *Store) Get(revision string) (*Migration, error) {
	path := filepath.Join(s.dir, revision+".json")
	if _, err := os.Stat(path); err != nil {
		return nil, qerr.New(qerr.ErrMigrationNotFound, "no such migration").
			With("revision", revision)
	}
	return s.loadFile(path)
}

func (s *Store) loadFile(path string) (*Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot read migration file").
			With("path", path)
	}
	var file migrationFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot parse migration file").
			With("path", path)
	}
	if file.Revision == "" {
		return nil, qerr.New(qerr.ErrMigrationFailed, "migration file has no revision").
			With("path", path)
	}

	ops, err := ast.UnmarshalOperations(file.Operations)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot parse migration operations").
			With("path", path)
	}
	m := &Migration{
		Revision:     file.Revision,
		Name:         file.Name,
		Path:         path,
		Checksum:     file.Checksum,
		Description:  file.Description,
		Irreversible: file.Irreversible,
		Operations:   ops,
	}
	if len(file.Down) > 0 {
		down, err := ast.UnmarshalOperations(file.Down)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrMigrationFailed, err, "cannot parse down operations").
				With("path", path)
		}
		m.DownOps = down
	}
	return m, nil
}
