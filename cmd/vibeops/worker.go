package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	srv "github.com/mohammad-safakhou/vibeops/internal/server"
)

func workerCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the realtime dispatcher and scheduled jobs without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			// the search index belongs to the API process
			cfg.Search.Enabled = false

			ctx, cancel := runtime.SignalContext(context.Background())
			defer cancel()
			deps, err := runtime.OpenDeps(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			bg, err := srv.StartBackground(ctx, cfg, deps, true, log)
			if err != nil {
				return err
			}
			defer bg.Close()
			log.Info("worker running", "jobs", bg.Scheduler.Jobs())
			<-ctx.Done()
			log.Info("worker stopping")
			return nil
		},
	}
}
