package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/usher/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
		Long:  "Revoke the API token of an account. The next login issues a fresh token.",
	}

	cmd.AddCommand(newTokenRevokeCmd())

	return cmd
}

func newTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "revoke <username>",
		Short:   "Revoke the token held by an account",
		Example: `  usher token revoke alice`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRevoke(args[0])
		},
	}
}

func runTokenRevoke(username string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	acct, err := a.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("no account named %q", username)
		}
		return err
	}
	if err := a.auth.RevokeToken(ctx, acct.ID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	fmt.Printf("Token for %q revoked\n", username)
	return nil
}
