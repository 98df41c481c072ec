package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/pkg/comet"
)

// migrateCmd applies pending migrations in revision order.
func migrateCmd() *cobra.Command {
	var dryRun bool
	var target string
	var noTx bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.MigrationRun(cmd.Context(), comet.RunOptions{
				DryRun:        dryRun,
				Target:        target,
				NoTransaction: noTx,
			})
			if err != nil {
				return err
			}

			if dryRun {
				if len(result.Statements) == 0 {
					out.Info("database is up to date")
					return nil
				}
				var b strings.Builder
				for _, stmt := range result.Statements {
					b.WriteString(stmt.SQL + ";\n")
				}
				out.Panel("SQL Preview (dry run)", strings.TrimRight(b.String(), "\n"))
				out.Warning("dry run: nothing was executed")
				return nil
			}

			if len(result.Applied) == 0 {
				out.Info("database is up to date")
				return nil
			}
			for _, rev := range result.Applied {
				out.Success("applied %s", rev)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry", false, "Show SQL without executing it")
	cmd.Flags().StringVar(&target, "target", "", "Stop after applying this revision")
	cmd.Flags().BoolVar(&noTx, "no-transaction", false, "Run statements outside a transaction")
	return cmd
}
