package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/usher/internal/config"
)

var (
	cfgFile    string
	dataDir    string
	appVersion string

	// v holds the layered configuration: defaults, usher.yaml, USHER_* env.
	v = viper.New()
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usher",
		Short: "User administration API server",
		Long: `Usher: token-authenticated user administration over HTTP.

Usher issues opaque API tokens on login and gives staff accounts a paginated
user list with CRUD, suspend/unsuspend and per-user stats. It also ships an
MCP server so agents can browse and moderate users.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./usher.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite database (default: ~/.usher)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if err := config.Init(v, cfgFile); err != nil {
		return err
	}
	if dataDir != "" {
		v.Set("database.data_dir", dataDir)
	}
	return nil
}
