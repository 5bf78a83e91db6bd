package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/settlement/internal/config"
	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/infra"
)

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage resolver accounts",
	}
	admin.AddCommand(newRoleCmd("grant <phone>", "Allow a user to resolve funding requests", identity.RoleAdmin))
	admin.AddCommand(newRoleCmd("revoke <phone>", "Return a resolver to the user role", identity.RoleUser))
	return admin
}

func newRoleCmd(use, short, role string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := infra.NewPostgresPool(cmd.Context(), cfg.DatabaseURL, infra.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()

			ids := identity.NewService(identity.NewPostgresRepository(db))
			user, err := ids.SetRole(cmd.Context(), args[0], role)
			if err != nil {
				return err
			}
			cmd.Printf("%s is now %s\n", user.Phone, user.Role)
			return nil
		},
	}
}
