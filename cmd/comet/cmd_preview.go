package main

import (
	"github.com/spf13/cobra"
)

// previewCmd renders the SQL pending migrations would execute. With a
// database configured, already-applied migrations are filtered out; without
// one the whole history is rendered.
func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Render the SQL pending migrations would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(false)
			if err != nil {
				return err
			}
			defer client.Close()

			statements, err := client.Preview(cmd.Context())
			if err != nil {
				return err
			}
			if len(statements) == 0 {
				out.Info("nothing pending")
				return nil
			}

			current := ""
			for _, stmt := range statements {
				if stmt.Revision != current {
					current = stmt.Revision
					out.Header(current)
				}
				out.SQL(stmt.SQL)
			}
			return nil
		},
	}
}
