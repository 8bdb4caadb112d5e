package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

func adminCMD(cfgPath *string) *cobra.Command {
	var email string
	var scopes []string

	var admin = &cobra.Command{
		Use:   "admin",
		Short: "Manage ops console accounts",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an ops admin (password from VIBEOPS_ADMIN_PASSWORD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("VIBEOPS_ADMIN_PASSWORD")
			if len(password) < 8 {
				return fmt.Errorf("VIBEOPS_ADMIN_PASSWORD must be at least 8 characters")
			}
			email = strings.ToLower(strings.TrimSpace(email))
			if err := runtime.Validator().Var(email, "required,email"); err != nil {
				return fmt.Errorf("invalid --email: %w", err)
			}
			normalised, err := runtime.NormaliseScopes(scopes)
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := openStore(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			id, err := st.CreateOpsAdmin(ctx, email, string(hash), normalised)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s) scopes=%s\n", email, id, strings.Join(normalised, ","))
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringSliceVar(&scopes, "scopes", runtime.OpsScopes, "granted scopes")
	_ = create.MarkFlagRequired("email")
	admin.AddCommand(create, creditCMD(cfgPath))
	return admin
}

func creditCMD(cfgPath *string) *cobra.Command {
	var creator string
	var amount int64
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Credit earned coins to a creator's pending payout",
		RunE: func(cmd *cobra.Command, args []string) error {
			creator = strings.TrimSpace(creator)
			if creator == "" {
				return fmt.Errorf("--creator is required")
			}
			ctx := context.Background()
			st, err := openStore(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			bal, err := st.CreditEarnings(ctx, creator, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "creator %s pending=%d reserved=%d withdrawn=%d\n",
				bal.CreatorID, bal.PendingPayout, bal.ReservedPayout, bal.TotalWithdrawn)
			return nil
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "creator user id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "coins to add to pending_payout")
	_ = cmd.MarkFlagRequired("creator")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func openStore(ctx context.Context, cfgPath string) (*store.Store, error) {
	cfg, _, err := load(cfgPath)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	return store.NewWithDSN(ctx, dsn)
}
