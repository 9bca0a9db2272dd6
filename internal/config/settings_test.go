package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if s.Port != 8000 || s.Host != "0.0.0.0" {
		t.Errorf("addr = %s", s.Addr())
	}
	if s.PageSize != 20 {
		t.Errorf("page size = %d, want 20", s.PageSize)
	}
	if s.MaxBodySize != 1000*1000 {
		t.Errorf("max body size = %d", s.MaxBodySize)
	}
	if s.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v", s.ShutdownTimeout)
	}
	if s.TokenCacheTTL != time.Minute {
		t.Errorf("token cache ttl = %v", s.TokenCacheTTL)
	}
	if s.DatabaseDriver != "sqlite" {
		t.Errorf("driver = %q", s.DatabaseDriver)
	}
	if s.Security.FrameOptions != "DENY" || s.Security.HSTSSeconds != 31536000 {
		t.Errorf("security = %+v", s.Security)
	}
}

func TestFromViperEnvOverrides(t *testing.T) {
	t.Setenv("USHER_SERVER_PORT", "9090")
	t.Setenv("USHER_SERVER_ALLOWED_HOSTS", "api.example.com,.example.org")
	t.Setenv("USHER_API_PAGE_SIZE", "50")

	v := viper.New()
	if err := Init(v, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if s.Port != 9090 {
		t.Errorf("port = %d, want 9090", s.Port)
	}
	if s.PageSize != 50 {
		t.Errorf("page size = %d, want 50", s.PageSize)
	}
	want := []string{"api.example.com", ".example.org"}
	if len(s.AllowedHosts) != 2 || s.AllowedHosts[0] != want[0] || s.AllowedHosts[1] != want[1] {
		t.Errorf("allowed hosts = %v, want %v", s.AllowedHosts, want)
	}
}

func TestFromViperValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"bad driver", "database.driver", "oracle"},
		{"zero page size", "api.page_size", 0},
		{"bad duration", "server.shutdown_timeout", "soon"},
		{"bad size", "server.max_body_size", "lots"},
		{"bad frame options", "server.security.frame_options", "ALLOW"},
		{"bad trusted proxy", "server.trusted_proxies", []string{"proxy.internal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			if _, err := FromViper(v); err == nil {
				t.Errorf("expected error for %s=%v", tt.key, tt.val)
			}
		})
	}

	v := viper.New()
	SetDefaults(v)
	v.Set("database.driver", "postgres")
	if _, err := FromViper(v); err == nil {
		t.Error("expected error for postgres without a DSN")
	}
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("USHER_SERVER_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7")

	v := viper.New()
	if err := Init(v, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.7/32"}
	if len(s.TrustedProxies) != len(want) {
		t.Fatalf("trusted proxies = %v, want %v", s.TrustedProxies, want)
	}
	for i, p := range s.TrustedProxies {
		if p.String() != want[i] {
			t.Errorf("trusted proxy %d = %s, want %s", i, p, want[i])
		}
	}
}

func TestDevModeLogging(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("dev", true)
	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if s.LogLevel != "debug" || s.LogFormat != "pretty" {
		t.Errorf("dev logging = %s/%s", s.LogLevel, s.LogFormat)
	}
}

func TestWriteAndLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usher.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 8000 || cfg.API.PageSize != 20 {
		t.Errorf("round trip lost defaults: %+v", cfg)
	}

	// The written file is readable through viper.
	v := viper.New()
	if err := Init(v, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if v.GetInt("auth.login_rate_limit") != 10 {
		t.Errorf("login rate limit = %d", v.GetInt("auth.login_rate_limit"))
	}
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("TEST_USHER_DSN", "postgres://u:p@db/usher")
	path := filepath.Join(t.TempDir(), "usher.yaml")
	body := "database:\n  driver: postgres\n  dsn: ${TEST_USHER_DSN}\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Database.DSN != "postgres://u:p@db/usher" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8000 {
		t.Error("unset keys should keep their defaults")
	}
}

func TestInitExplicitMissingFile(t *testing.T) {
	v := viper.New()
	if err := Init(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("USHER_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("USHER_TEST_DOTENV", "")
	os.Unsetenv("USHER_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("USHER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("USHER_TEST_DOTENV = %q", got)
	}
}
