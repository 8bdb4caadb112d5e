package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/internal/runtime"
)

func tokenCMD(cfgPath *string) *cobra.Command {
	var subject string
	var scopes []string
	var ttl time.Duration

	var token = &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(*cfgPath)
			if err != nil {
				return err
			}
			secret, err := runtime.LoadJWTSecret(cfg)
			if err != nil {
				return err
			}
			normalised, err := runtime.NormaliseScopes(scopes)
			if err != nil {
				return err
			}
			signed, err := runtime.SignJWT(subject, secret, ttl, normalised...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "sub", "", "token subject (user or admin id)")
	token.Flags().StringSliceVar(&scopes, "scopes", nil, "ops scopes to grant")
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = token.MarkFlagRequired("sub")
	return token
}
