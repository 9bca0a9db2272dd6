package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/usher/internal/metrics"
	"github.com/faucetdb/usher/internal/server"
)

const banner = `
 _   _ ___ _  _ ___ ___
| | | / __| || | __| _ \
| |_| \__ \ __ | _||   /
 \___/|___/_||_|___|_|_\
`

func newServeCmd() *cobra.Command {
	var (
		bootstrap bool
		username  string
		email     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the usher API server",
		Long:  "Start the HTTP server that exposes the authentication and user administration API.",
		Example: `  usher serve
  usher serve --port 9000 --dev
  USHER_BOOTSTRAP_PASSWORD=secret usher serve --bootstrap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(bootstrap, username, email)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Bool("dev", false, "Enable development mode (debug logging, pretty output)")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Create the default superuser before serving")
	cmd.Flags().StringVar(&username, "bootstrap-username", "Admin", "Username for --bootstrap")
	cmd.Flags().StringVar(&email, "bootstrap-email", "admin@example.com", "Email for --bootstrap")

	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	v.BindPFlag("dev", cmd.Flags().Lookup("dev"))

	return cmd
}

func runServe(bootstrap bool, username, email string) error {
	fmt.Print(banner)
	fmt.Println()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	a.logger.Info("account store initialized", "driver", a.store.Driver())

	if bootstrap {
		password, err := bootstrapPassword("", false)
		if err != nil {
			return err
		}
		if err := bootstrapSuperuser(ctx, a, username, email, password); err != nil {
			return err
		}
	}

	hasSuper, err := a.store.HasAnySuperuser(ctx)
	if err != nil {
		a.logger.Warn("failed to check for superuser", "error", err)
	}
	if !hasSuper {
		a.logger.Warn("no superuser account found - run: usher admin bootstrap")
	}

	srv := server.New(a.settings, server.Deps{
		Store:    a.store,
		Auth:     a.auth,
		Accounts: a.accounts,
		Metrics:  metrics.New(),
		Logger:   a.logger,
		Version:  versionString(),
	})

	addr := a.settings.Addr()
	fmt.Printf("→ Usher %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", addr)
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", addr)
	fmt.Printf("→ Health:     http://%s/healthz\n", addr)
	fmt.Printf("→ Metrics:    http://%s/metrics\n", addr)
	fmt.Println()

	return srv.ListenAndServe()
}
