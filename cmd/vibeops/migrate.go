package main

import (
	"fmt"

	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/vibeops/internal/server"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var steps int

	var migrate = &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(*cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			if migDir == "" {
				migDir = cfg.Server.MigrationsDir
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			if direction == "version" {
				v, dirty, err := srv.MigrationVersion(migDir, dsn)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%v\n", v, dirty)
				return nil
			}
			if err := srv.Migrate(migDir, dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s done\n", direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default server.migrations_dir)")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
