package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// historyCmd lists the applied migrations recorded in the version table.
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show applied migrations with details",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}
			defer client.Close()

			applied, err := client.History(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				out.Info("no migrations applied yet")
				return nil
			}

			out.Header("Applied Migrations")
			rows := [][]string{{"REVISION", "APPLIED AT", "DURATION"}}
			for _, a := range applied {
				rows = append(rows, []string{
					a.Revision,
					a.AppliedAt.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%dms", a.ExecTimeMs),
				})
			}
			out.Table(rows)
			return nil
		},
	}
}
