package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/usher/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Moderate user accounts",
		Long:  "Suspend, reactivate and inspect user accounts by ID.",
	}

	cmd.AddCommand(newUserActionCmd("suspend", "Suspend an account",
		func(ctx context.Context, a *app, id int64) error { return a.accounts.Suspend(ctx, id) },
		"suspended"))
	cmd.AddCommand(newUserActionCmd("unsuspend", "Reactivate a suspended account",
		func(ctx context.Context, a *app, id int64) error { return a.accounts.Unsuspend(ctx, id) },
		"unsuspended"))
	cmd.AddCommand(newUserStatsCmd())

	return cmd
}

func newUserActionCmd(use, short string, action func(context.Context, *app, int64) error, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := action(context.Background(), a, id); err != nil {
				return userError(id, err)
			}
			fmt.Printf("Account %d %s\n", id, done)
			return nil
		},
	}
}

func newUserStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show order statistics for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.accounts.Stats(context.Background(), id)
			if err != nil {
				return userError(id, err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func userError(id int64, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fmt.Errorf("account %d not found", id)
	case errors.Is(err, service.ErrForbidden):
		return fmt.Errorf("account %d is a superuser and cannot be suspended", id)
	default:
		return err
	}
}
