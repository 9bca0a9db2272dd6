package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/faucetdb/usher/internal/config"
	"github.com/faucetdb/usher/internal/logging"
	"github.com/faucetdb/usher/internal/service"
	"github.com/faucetdb/usher/internal/store"
)

// app bundles the services a command needs. Close releases the store.
type app struct {
	settings *config.Settings
	logger   *slog.Logger
	store    *store.Store
	auth     *service.AuthService
	accounts *service.AccountService
}

func (a *app) Close() error {
	return a.store.Close()
}

// loadSettings resolves the effective settings from the root viper instance.
func loadSettings() (*config.Settings, error) {
	s, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// resolveDataDir returns the SQLite data directory. The CLI never runs
// against an in-memory database, so an unset directory falls back to
// ~/.usher.
func resolveDataDir(s *config.Settings) string {
	if s.DataDir != "" {
		return s.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".usher"
	}
	return filepath.Join(home, ".usher")
}

// openApp loads settings and opens the store and services.
func openApp() (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, s.LogLevel, s.LogFormat)
	if err != nil {
		return nil, err
	}

	opts := store.Options{Driver: s.DatabaseDriver, DSN: s.DatabaseDSN, DataDir: s.DataDir}
	if opts.Driver == store.DriverSQLite && opts.DSN == "" {
		opts.DataDir = resolveDataDir(s)
	}
	st, err := store.New(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	auth := service.NewAuthService(st, logger, service.WithTokenCacheTTL(s.TokenCacheTTL))
	accounts := service.NewAccountService(st, auth, logger, service.WithPageSize(s.PageSize))

	return &app{
		settings: s,
		logger:   logger,
		store:    st,
		auth:     auth,
		accounts: accounts,
	}, nil
}

// bootstrapSuperuser creates the default superuser if it does not exist.
func bootstrapSuperuser(ctx context.Context, a *app, username, email, password string) error {
	created, err := a.accounts.EnsureSuperuser(ctx, username, email, password)
	if err != nil {
		return fmt.Errorf("bootstrap superuser: %w", err)
	}
	if created {
		fmt.Printf("Superuser %q created\n", username)
	} else {
		fmt.Printf("Superuser %q already exists\n", username)
	}
	return nil
}

// parseID parses a positive account ID argument.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid account id %q", raw)
	}
	return id, nil
}

// promptPassword reads a password twice from the terminal.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// bootstrapPassword returns the password from the flag, the environment, or
// an interactive prompt, in that order.
func bootstrapPassword(flagValue string, interactive bool) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(config.EnvPrefix + "_BOOTSTRAP_PASSWORD"); env != "" {
		return env, nil
	}
	if interactive && term.IsTerminal(int(os.Stdin.Fd())) {
		return promptPassword()
	}
	return "", fmt.Errorf("no password given: use --password or set %s_BOOTSTRAP_PASSWORD", config.EnvPrefix)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
