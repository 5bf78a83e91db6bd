package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/settlement/internal/config"
	"github.com/congo-pay/settlement/internal/infra"
	"github.com/congo-pay/settlement/internal/logging"
	"github.com/congo-pay/settlement/migrations"
)

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			if args[0] == "down" {
				return infra.MigrateDown(cfg.DatabaseURL, migrations.FS, steps, logger)
			}
			return infra.MigrateUp(cfg.DatabaseURL, migrations.FS, logger)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}
