// Package config loads the comet.yaml project file: migration directory,
// named database environments, and transaction strictness.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "comet.yaml"

// DefaultEnvironment is used when neither the config nor the caller names one.
const DefaultEnvironment = "development"

// Database is one named connection target.
type Database struct {
	// Dialect is "postgres" or "sqlite".
	Dialect string `yaml:"dialect"`

	// URL is the connection string. ${VAR} references expand from the
	// process environment at load time, so secrets stay out of the file.
	URL string `yaml:"url"`
}

// Config is the parsed comet.yaml.
type Config struct {
	// MigrationsDir holds the migration files. Defaults to ./migrations.
	MigrationsDir string `yaml:"migrations_dir"`

	// DefaultEnv names the environment used when none is given.
	DefaultEnv string `yaml:"default_env"`

	// Environments maps environment names to their databases.
	Environments map[string]Database `yaml:"environments"`

	// StrictTransactions makes nested transactions an error instead of
	// flattening them into the outer scope.
	StrictTransactions bool `yaml:"strict_transactions"`
}

func defaults() *Config {
	return &Config{
		MigrationsDir: "./migrations",
		DefaultEnv:    DefaultEnvironment,
		Environments:  make(map[string]Database),
	}
}

// Load reads the config file, expanding ${VAR} in connection URLs and
// layering COMET_* environment variables on top. A missing file yields the
// defaults; a malformed one is an error.
//
// Precedence: env vars > config file > defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, qerr.Wrap(qerr.ErrValidation, err, "cannot parse config file").
				With("path", path)
		}
	case os.IsNotExist(err):
		// No file: defaults plus env vars.
	default:
		return nil, qerr.Wrap(qerr.ErrValidation, err, "cannot read config file").
			With("path", path)
	}

	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "./migrations"
	}
	if cfg.DefaultEnv == "" {
		cfg.DefaultEnv = DefaultEnvironment
	}
	if cfg.Environments == nil {
		cfg.Environments = make(map[string]Database)
	}
	for name, db := range cfg.Environments {
		db.URL = os.Expand(db.URL, os.Getenv)
		cfg.Environments[name] = db
	}

	if dir := os.Getenv("COMET_MIGRATIONS_DIR"); dir != "" {
		cfg.MigrationsDir = dir
	}
	if url := os.Getenv("COMET_DATABASE_URL"); url != "" {
		db := cfg.Environments[cfg.DefaultEnv]
		db.URL = url
		if d := os.Getenv("COMET_DIALECT"); d != "" {
			db.Dialect = d
		}
		cfg.Environments[cfg.DefaultEnv] = db
	}

	return cfg, cfg.validate(path)
}

func (c *Config) validate(path string) error {
	for name, db := range c.Environments {
		if db.Dialect == "" {
			continue // tolerated until the environment is actually used
		}
		if dialect.Get(db.Dialect) == nil {
			return qerr.Newf(qerr.ErrValidation, "unknown dialect %q in environment %q", db.Dialect, name).
				With("path", path)
		}
	}
	return nil
}

// Database resolves a named environment, falling back to the default. An
// environment must name both a dialect and a URL before it is usable.
func (c *Config) Database(env string) (Database, error) {
	if env == "" {
		env = c.DefaultEnv
	}
	db, ok := c.Environments[env]
	if !ok {
		return Database{}, qerr.Newf(qerr.ErrValidation, "environment %q is not configured", env).
			WithHint("add it under environments: in " + DefaultFile)
	}
	if db.Dialect == "" || db.URL == "" {
		return Database{}, qerr.Newf(qerr.ErrValidation, "environment %q needs both dialect and url", env)
	}
	return db, nil
}

// sample is the scaffold written by `comet init`.
const sample = `# comet project configuration
migrations_dir: ./migrations
default_env: development

environments:
  development:
    dialect: sqlite
    url: file:comet_dev.db
  production:
    dialect: postgres
    url: ${DATABASE_URL}

# Fail on nested transactions instead of flattening them.
strict_transactions: false
`

// WriteSample scaffolds a starter config file. Refuses to overwrite.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return qerr.New(qerr.ErrValidation, "config file already exists").
			With("path", path)
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return qerr.Wrap(qerr.ErrValidation, err, "cannot write config file").
			With("path", path)
	}
	return nil
}
