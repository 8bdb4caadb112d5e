package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	srv "github.com/mohammad-safakhou/vibeops/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if addr != "" {
				cfg.Server.Address = addr
			}
			ctx, cancel := runtime.SignalContext(context.Background())
			defer cancel()
			return srv.Run(ctx, cfg, log)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}
