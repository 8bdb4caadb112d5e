package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/internal/realtime"
	"github.com/mohammad-safakhou/vibeops/internal/runtime"
)

func tailCMD(cfgPath *string) *cobra.Command {
	var userID string
	var tail = &cobra.Command{
		Use:   "tail",
		Short: "Print the ops events delivered to one user's channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx, cancel := runtime.SignalContext(context.Background())
			defer cancel()

			rdb := runtime.NewRedis(cfg.Storage.Redis)
			defer rdb.Close()
			bus := realtime.NewBus(rdb, cfg.Realtime.ChannelPrefix, log)

			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := bus.Subscribe(ctx, userID, func(m realtime.Message) {
				_ = enc.Encode(m)
			}); err != nil {
				return err
			}
			log.Info("tailing", "channel", bus.Channel(userID))
			<-ctx.Done()
			return nil
		},
	}
	tail.Flags().StringVar(&userID, "user", "", "user id")
	_ = tail.MarkFlagRequired("user")
	return tail
}
