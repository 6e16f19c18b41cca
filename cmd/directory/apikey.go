package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/directory/internal/apikey"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage operator API keys",
}

var (
	apikeyName string
	apikeyRole string
)

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator API key and print the secret once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		var svc apikeydomain.Service
		return runOnce(ctx, func(ctx context.Context) error {
			resp, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: apikeyName, Role: apikeyRole})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key_id: %s\nrole:   %s\napi_key: %s\n", resp.KeyID, resp.Role, resp.APIKey)
			return nil
		},
			infrastructure(),
			apikey.Module,
			fx.Populate(&svc),
		)
	},
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "display name of the key")
	apikeyCreateCmd.Flags().StringVar(&apikeyRole, "role", apikeydomain.RoleAdmin, "operator role: admin, moderator or finance")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
	apikeyCmd.AddCommand(apikeyCreateCmd)
}
