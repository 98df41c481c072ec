// Package comet is the public entry point for the cometdb migration engine.
// It wraps the declared-schema registry, the migration store, and a database
// connection behind a single Client.
//
// Create a Client with New and close it with Close when done:
//
//	client, err := comet.New(
//	    comet.WithDatabaseURL("postgres://localhost/mydb"),
//	    comet.WithMigrationsDir("./migrations"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.MigrationRun(ctx, comet.RunOptions{}); err != nil {
//	    log.Fatal(err)
//	}
package comet

import (
	"context"
	"strings"

	"github.com/hlop3z/cometdb/internal/db"
	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/engine"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/internal/schema"
)

// Client binds the declared schema, the migration store, and a database
// connection. Methods are grouped by lifecycle: schema checks (Check,
// Declared), migration authoring (Diff, DetectRenames, MigrationNew), and
// execution (MigrationRun, MigrationRollback, MigrationStatus, History).
type Client struct {
	cfg   *Config
	reg   *schema.Registry
	d     dialect.Dialect
	eng   db.Engine
	store *engine.Store
	clock *engine.RevisionClock
	owned *db.SQLEngine // set when New opened the connection itself
}

// New creates a Client. At minimum WithDatabaseURL must be provided, unless
// WithSchemaOnly or WithEngine is used. The dialect is auto-detected from the
// URL when not set explicitly.
func New(opts ...Option) (*Client, error) {
	cfg := &Config{MigrationsDir: "./migrations"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = defaultRegistry
	}

	name := cfg.Dialect
	if name == "" {
		name = DetectDialect(cfg.DatabaseURL)
	}
	d := dialect.Get(name)
	if d == nil {
		return nil, qerr.Newf(qerr.ErrValidation, "unknown dialect %q", name).
			WithHint(`valid dialects: ` + strings.Join(dialect.Names(), ", "))
	}

	c := &Client{
		cfg:   cfg,
		reg:   cfg.Registry,
		d:     d,
		store: engine.NewStore(cfg.MigrationsDir),
		clock: engine.NewRevisionClock(),
	}

	switch {
	case cfg.Engine != nil:
		c.eng = cfg.Engine
	case cfg.SchemaOnly:
		// No connection: database-backed methods return E4002.
	default:
		if cfg.DatabaseURL == "" {
			return nil, qerr.New(qerr.ErrValidation, "database url is required").
				WithHint("pass WithDatabaseURL, or WithSchemaOnly for offline operations")
		}
		eng, err := db.Open(context.Background(), name, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		eng.SetStrictTransactions(cfg.StrictTransactions)
		c.eng = eng
		c.owned = eng
	}
	return c, nil
}

// Close releases the database connection if the client opened it.
func (c *Client) Close() error {
	if c.owned != nil {
		return c.owned.Close()
	}
	return nil
}

// Dialect returns the active dialect.
func (c *Client) Dialect() dialect.Dialect { return c.d }

// MigrationsDir returns the directory migration files are written to.
func (c *Client) MigrationsDir() string { return c.store.Dir() }

// engine returns the connection, or E4002 in schema-only mode.
func (c *Client) engine() (db.Engine, error) {
	if c.eng == nil {
		return nil, qerr.New(qerr.ErrConnection, "no database connection").
			WithHint("this operation needs a database; drop WithSchemaOnly")
	}
	return c.eng, nil
}

// DetectDialect guesses the dialect from a connection URL. Postgres URLs
// carry a postgres:// or postgresql:// scheme; everything else is treated as
// an SQLite path.
func DetectDialect(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}
