package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/hlop3z/cometdb/internal/config"
	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/pkg/comet"
)

// newClient builds a client from config file, environment variables, and
// flags. When needsDB is false and no database is configured, the client
// falls back to schema-only mode so offline commands still work.
func newClient(needsDB bool) (*comet.Client, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	opts := []comet.Option{
		comet.WithMigrationsDir(cfg.MigrationsDir),
	}
	if cfg.StrictTransactions {
		opts = append(opts, comet.WithStrictTransactions())
	}

	switch {
	case databaseURL != "":
		opts = append(opts, comet.WithDatabaseURL(databaseURL))
	default:
		db, dbErr := cfg.Database(envName)
		if dbErr != nil {
			if needsDB {
				return nil, dbErr
			}
			opts = append(opts, comet.WithSchemaOnly())
			break
		}
		opts = append(opts,
			comet.WithDatabaseURL(db.URL),
			comet.WithDialect(db.Dialect),
		)
	}

	return comet.New(opts...)
}

var underscoreRuns = regexp.MustCompile(`_+`)

// toSnakeCase normalizes a migration name to lowercase snake_case.
// Examples: "CreateUser" -> "create_user", "create-user" -> "create_user"
func toSnakeCase(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ".", "_")

	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			prev := rune(s[i-1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(unicode.ToLower(r))
	}

	cleaned := underscoreRuns.ReplaceAllString(result.String(), "_")
	return strings.Trim(cleaned, "_")
}

// confirm asks a yes/no question on the terminal. Non-interactive sessions
// must pass the command's --yes flag instead.
func confirm(question string) (bool, error) {
	if !out.IsTTY() {
		return false, qerr.New(qerr.ErrValidation, "refusing to proceed without confirmation").
			WithHint("re-run with --yes in non-interactive sessions")
	}
	fmt.Fprintf(os.Stdout, "%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
