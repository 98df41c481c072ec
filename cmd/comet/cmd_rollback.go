package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/qerr"
	"github.com/hlop3z/cometdb/pkg/comet"
)

// rollbackCmd rolls back applied migrations, newest first.
func rollbackCmd() *cobra.Command {
	var dryRun bool
	var target string
	var yes bool
	var noTx bool

	cmd := &cobra.Command{
		Use:   "rollback [steps]",
		Short: "Rollback migrations (default: 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return qerr.Newf(qerr.ErrValidation, "steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}

			client, err := newClient(true)
			if err != nil {
				return err
			}
			defer client.Close()

			if !dryRun && !yes {
				what := fmt.Sprintf("%d migration(s)", steps)
				if target != "" {
					what = "everything newer than " + target
				}
				ok, err := confirm("Roll back " + what + "?")
				if err != nil {
					return err
				}
				if !ok {
					out.Info("aborted")
					return nil
				}
			}

			result, err := client.MigrationRollback(cmd.Context(), comet.RollbackOptions{
				DryRun:        dryRun,
				Target:        target,
				Steps:         steps,
				NoTransaction: noTx,
			})
			if err != nil {
				return err
			}

			if dryRun {
				if len(result.Statements) == 0 {
					out.Info("nothing to roll back")
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
				out.Info("nothing to roll back")
				return nil
			}
			for _, rev := range result.Applied {
				out.Success("rolled back %s", rev)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry", false, "Show SQL without executing it")
	cmd.Flags().StringVar(&target, "target", "", "Roll back everything newer than this revision")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&noTx, "no-transaction", false, "Run statements outside a transaction")
	return cmd
}
