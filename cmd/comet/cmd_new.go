package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/engine"
	"github.com/hlop3z/cometdb/internal/qerr"
)

// newCmd creates a migration file from the pending schema diff.
func newCmd() *cobra.Command {
	var acceptRenames bool

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create migration (auto-generates from schema changes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := toSnakeCase(args[0])

			client, err := newClient(false)
			if err != nil {
				return err
			}
			defer client.Close()

			candidates, err := client.DetectRenames()
			if err != nil {
				if qerr.Is(err, qerr.ErrAmbiguousRename) {
					out.Error("%v", err)
					out.Dim("rename detection is ambiguous; adjust the schema in two steps")
					return err
				}
				return err
			}

			var confirmed []engine.RenameCandidate
			for _, cand := range candidates {
				if acceptRenames {
					confirmed = append(confirmed, cand)
					continue
				}
				ok, err := confirm(fmt.Sprintf("Is %s %q -> %q a rename (keeps the data)?", cand.Kind, cand.OldName, cand.NewName))
				if err != nil {
					out.Warning("%d possible rename(s) detected", len(candidates))
					out.Dim("re-run with --accept-renames, or leave as drop+add")
					return err
				}
				if ok {
					confirmed = append(confirmed, cand)
				}
			}

			m, err := client.MigrationNew(name, confirmed)
			if err != nil {
				return err
			}
			if m == nil {
				out.Info("no schema changes detected, nothing to migrate")
				return nil
			}

			summary := engine.Summarize(m.Operations)
			out.Success("created %s", m.Path)
			out.Dim("%d operation(s): %s", summary.TotalOps, m.Description)
			return nil
		},
	}

	cmd.Flags().BoolVar(&acceptRenames, "accept-renames", false, "Treat detected drop+add pairs as renames without prompting")
	return cmd
}
