package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/internal/cache"
	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	srv "github.com/mohammad-safakhou/vibeops/internal/server"
)

func jobCMD(cfgPath *string) *cobra.Command {
	var job = &cobra.Command{
		Use:   "job",
		Short: "Inspect or run scheduled maintenance jobs",
	}
	job.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one job now, ignoring its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx, cancel := runtime.SignalContext(context.Background())
			defer cancel()
			deps, err := runtime.OpenDeps(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			params := cache.NewParams(deps.Redis, deps.Store, cfg.Feed.ConfigCacheTTL, log)
			sched, err := srv.NewScheduler(cfg.Scheduler, nil, log, srv.MaintenanceJobs(deps.Store, params, nil, log)...)
			if err != nil {
				return err
			}
			if err := sched.RunNow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s done\n", args[0])
			return nil
		},
	})
	job.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured job schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(*cfgPath)
			if err != nil {
				return err
			}
			for _, name := range []string{srv.JobActivateScheduledConfigs, srv.JobReconcileBalances, srv.JobReindexSearch, srv.JobPruneIdempotency} {
				spec := cfg.Scheduler.Jobs[name]
				if strings.TrimSpace(spec) == "" {
					spec = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", name, spec)
			}
			return nil
		},
	})
	return job
}
