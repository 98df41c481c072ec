package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/engine"
)

// statusCmd shows the status of all migrations.
func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied/pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}
			defer client.Close()

			statuses, err := client.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}

			var applied, pending int
			for _, s := range statuses {
				if s.Status == engine.StatusApplied {
					applied++
				} else {
					pending++
				}
			}

			// JSON output mode for CI/CD integration. Exits 1 when
			// migrations are pending so pipelines can gate on it.
			if jsonOutput {
				migrations := make([]map[string]any, len(statuses))
				for i, s := range statuses {
					migrations[i] = map[string]any{
						"revision":   s.Revision,
						"name":       s.Name,
						"status":     s.Status.String(),
						"applied_at": s.AppliedAt,
					}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"applied":    applied,
					"pending":    pending,
					"migrations": migrations,
				}); err != nil {
					return err
				}
				if pending > 0 {
					os.Exit(1)
				}
				return nil
			}

			if len(statuses) == 0 {
				out.Info("no migrations found")
				return nil
			}

			out.Header("Migration Status")
			rows := [][]string{{"REVISION", "NAME", "STATUS", "APPLIED AT"}}
			for _, s := range statuses {
				rows = append(rows, []string{
					s.Revision,
					s.Name,
					out.StatusLabel(s.Status.String()),
					s.AppliedAt,
				})
			}
			out.Table(rows)
			out.Plainln("")
			out.Dim("%d applied, %d pending", applied, pending)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Machine-readable output (exits 1 when migrations are pending)")
	return cmd
}
