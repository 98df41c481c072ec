package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hlop3z/cometdb/internal/config"
)

// initCmd scaffolds a new project: config file plus migrations directory.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize project structure (comet.yaml, migrations/)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteSample(configFile); err != nil {
				return err
			}
			out.Success("created %s", configFile)

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.MigrationsDir, 0o755); err != nil {
				return err
			}
			out.Success("created %s", cfg.MigrationsDir)
			out.Dim("declare tables with comet.Register, then run: comet new initial")
			return nil
		},
	}
}
