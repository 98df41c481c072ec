package main

import (
	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/dialect"
	"github.com/hlop3z/cometdb/internal/engine"
)

// diffCmd shows the pending changes between the declared schema and the
// migration history: drift findings plus the DDL a new migration would carry.
func diffCmd() *cobra.Command {
	var sqlOutput bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show differences between schema and migration history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(false)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Drift()
			if err != nil {
				return err
			}
			if report.Match {
				out.Success("schema matches migration history")
				return nil
			}

			for _, line := range report.Summary() {
				out.Warning("%s", line)
			}

			ops, err := client.Diff()
			if err != nil {
				return err
			}
			summary := engine.Summarize(ops)
			out.Plainln("")
			out.Info("%d operation(s) pending", summary.TotalOps)

			if sqlOutput {
				for _, op := range ops {
					stmts, err := dialect.SQL(client.Dialect(), op)
					if err != nil {
						return err
					}
					for _, stmt := range stmts {
						out.SQL(stmt)
					}
				}
			}
			out.Dim("run: comet new <name> to capture these changes")
			return nil
		},
	}

	cmd.Flags().BoolVar(&sqlOutput, "sql", false, "Render the DDL for the pending changes")
	return cmd
}
