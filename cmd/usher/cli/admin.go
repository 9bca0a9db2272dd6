package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrative accounts",
		Long:  "Bootstrap the superuser, create accounts and list them directly against the database.",
	}

	cmd.AddCommand(newAdminBootstrapCmd())
	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminPasswordCmd())

	return cmd
}

// ---------- admin bootstrap ----------

func newAdminBootstrapCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the default superuser if it does not exist",
		Long: `Create a superuser (staff + superuser) unless an account with the same
username already exists. Safe to run on every deploy.`,
		Example: `  usher admin bootstrap --password secret
  USHER_BOOTSTRAP_PASSWORD=secret usher admin bootstrap
  usher admin bootstrap --username root --email root@example.com  # prompts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := bootstrapPassword(password, true)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return bootstrapSuperuser(context.Background(), a, username, email, pw)
		},
	}

	cmd.Flags().StringVar(&username, "username", "Admin", "Superuser username")
	cmd.Flags().StringVar(&email, "email", "admin@example.com", "Superuser email address")
	cmd.Flags().StringVar(&password, "password", "", "Superuser password (env USHER_BOOTSTRAP_PASSWORD, prompted if omitted)")

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		in       model.NewAccount
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		Example: `  usher admin create --username alice --email alice@example.com --staff --password secret
  usher admin create --username bob  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword()
				if err != nil {
					return err
				}
				password = pw
			}
			in.Password = password
			return runAdminCreate(in)
		},
	}

	cmd.Flags().StringVar(&in.Username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVar(&in.IsStaff, "staff", false, "Grant staff access to the user administration API")
	cmd.Flags().BoolVar(&in.IsSuperuser, "superuser", false, "Grant superuser access (implies --staff)")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runAdminCreate(in model.NewAccount) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.accounts.Create(context.Background(), in)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid account: %v", verr)
		}
		if errors.Is(err, service.ErrConflict) {
			return fmt.Errorf("a user named %q already exists", in.Username)
		}
		return err
	}

	fmt.Printf("Created account %q (id %d)\n", acct.Username, acct.ID)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var (
		jsonOutput bool
		page       int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(page, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")

	return cmd
}

func runAdminList(page int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.accounts.List(context.Background(), page)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("page %d is out of range", page)
		}
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p.Accounts)
	}

	if p.Count == 0 {
		fmt.Println("No accounts. Use 'usher admin bootstrap' to create the superuser.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-30s %-6s %-6s %-10s %-16s\n", "ID", "USERNAME", "EMAIL", "STAFF", "SUPER", "ACTIVE", "JOINED")
	fmt.Printf("%-6s %-24s %-30s %-6s %-6s %-10s %-16s\n", "--", "--------", "-----", "-----", "-----", "------", "------")
	for _, acct := range p.Accounts {
		active := "yes"
		if acct.Suspended() {
			active = "suspended"
		}
		fmt.Printf("%-6d %-24s %-30s %-6s %-6s %-10s %-16s\n",
			acct.ID, acct.Username, acct.Email,
			yesNo(acct.IsStaff), yesNo(acct.IsSuperuser), active,
			acct.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("\nPage %d of %d (%d accounts)\n", p.Page, p.NumPages, p.Count)

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---------- admin set-password ----------

func newAdminPasswordCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "set-password <username>",
		Short: "Replace an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword()
				if err != nil {
					return err
				}
				password = pw
			}
			return runAdminSetPassword(args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func runAdminSetPassword(username, password string) error {
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
	if err := a.accounts.SetPassword(ctx, acct.ID, password); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid password: %v", verr)
		}
		return err
	}

	fmt.Printf("Password for %q updated\n", username)
	return nil
}
