// Package main provides the comet CLI: schema migrations for Postgres and
// SQLite driven by Go-declared table definitions.
//
// Usage:
//
//	comet init                   # Create comet.yaml and migrations/
//	comet new <name>             # Create migration (auto-generates from schema changes)
//	comet diff                   # Show pending changes between schema and migration history
//	comet preview                # Render the SQL pending migrations would execute
//	comet migrate                # Apply pending migrations
//	comet rollback [steps]       # Rollback (default: 1 step)
//	comet status                 # Show applied/pending migrations
//	comet history                # Show applied migrations with details
//
// The binary on its own manages migration files and the version table. To
// diff against a declared schema, embed the commands in your own main and
// register tables via comet.Register before calling Execute.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/cli"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// Global flags
var (
	databaseURL string
	configFile  string
	envName     string
)

// out is the styled terminal sink shared by all commands.
var out = cli.Detect()

func main() {
	rootCmd := &cobra.Command{
		Use:     "comet",
		Short:   "Schema migrations for Postgres and SQLite",
		Long:    `Comet manages schema evolution via migrations generated from Go-declared table definitions.`,
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "d", "", "Database connection URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "comet.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Config environment to use")

	rootCmd.AddCommand(
		initCmd(),
		newCmd(),
		diffCmd(),
		previewCmd(),
		migrateCmd(),
		rollbackCmd(),
		statusCmd(),
		historyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
