package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. USHER_SERVER_PORT.
const EnvPrefix = "USHER"

// Settings is the resolved process configuration. It is built once at
// startup and not modified afterwards.
type Settings struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	AllowedHosts    []string
	TrustedProxies  []netip.Prefix
	CORSOrigins     []string
	Security        SecurityConfig

	DatabaseDriver string
	DatabaseDSN    string
	DataDir        string

	LoginRateLimit int
	TokenCacheTTL  time.Duration
	PageSize       int

	LogLevel  string
	LogFormat string
	Dev       bool
}

// Addr returns host:port.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetDefaults registers every key with its default on v so that environment
// variables are picked up even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := DefaultYAMLConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_hosts", d.Server.AllowedHosts)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("server.security.hsts_seconds", d.Server.Security.HSTSSeconds)
	v.SetDefault("server.security.hsts_include_subdomains", d.Server.Security.HSTSIncludeSubdomains)
	v.SetDefault("server.security.hsts_preload", d.Server.Security.HSTSPreload)
	v.SetDefault("server.security.content_type_nosniff", d.Server.Security.ContentTypeNosniff)
	v.SetDefault("server.security.frame_options", d.Server.Security.FrameOptions)
	v.SetDefault("server.security.xss_filter", d.Server.Security.XSSFilter)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.data_dir", d.Database.DataDir)
	v.SetDefault("auth.login_rate_limit", d.Auth.LoginRateLimit)
	v.SetDefault("auth.token_cache_ttl", d.Auth.TokenCacheTTL)
	v.SetDefault("api.page_size", d.API.PageSize)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("dev", d.Dev)
}

// Init prepares v: defaults, environment binding and the optional config
// file. A missing config file is not an error unless cfgFile names one
// explicitly.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("usher")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.usher")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromViper resolves and validates Settings from v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Host:         v.GetString("server.host"),
		Port:         v.GetInt("server.port"),
		AllowedHosts: stringList(v, "server.allowed_hosts"),
		CORSOrigins:  stringList(v, "server.cors.origins"),
		Security: SecurityConfig{
			HSTSSeconds:           v.GetInt("server.security.hsts_seconds"),
			HSTSIncludeSubdomains: v.GetBool("server.security.hsts_include_subdomains"),
			HSTSPreload:           v.GetBool("server.security.hsts_preload"),
			ContentTypeNosniff:    v.GetBool("server.security.content_type_nosniff"),
			FrameOptions:          strings.ToUpper(v.GetString("server.security.frame_options")),
			XSSFilter:             v.GetBool("server.security.xss_filter"),
		},
		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		DatabaseDSN:    v.GetString("database.dsn"),
		DataDir:        v.GetString("database.data_dir"),
		LoginRateLimit: v.GetInt("auth.login_rate_limit"),
		PageSize:       v.GetInt("api.page_size"),
		LogLevel:       v.GetString("logging.level"),
		LogFormat:      v.GetString("logging.format"),
		Dev:            v.GetBool("dev"),
	}

	var err error
	if s.ShutdownTimeout, err = parseDuration("server.shutdown_timeout", v.GetString("server.shutdown_timeout")); err != nil {
		return nil, err
	}
	if s.TokenCacheTTL, err = parseDuration("auth.token_cache_ttl", v.GetString("auth.token_cache_ttl")); err != nil {
		return nil, err
	}
	size, err := humanize.ParseBytes(v.GetString("server.max_body_size"))
	if err != nil {
		return nil, fmt.Errorf("server.max_body_size: %w", err)
	}
	s.MaxBodySize = int64(size)
	if s.TrustedProxies, err = parseTrustedProxies(stringList(v, "server.trusted_proxies")); err != nil {
		return nil, err
	}

	if s.DataDir != "" {
		s.DataDir = expandHome(s.DataDir)
	}
	if s.Dev {
		s.LogLevel = "debug"
		if s.LogFormat == "" || s.LogFormat == "text" {
			s.LogFormat = "pretty"
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch s.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q (want sqlite, postgres or mysql)", s.DatabaseDriver)
	}
	if s.DatabaseDriver != "sqlite" && s.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", s.DatabaseDriver)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", s.Port)
	}
	if s.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive, got %d", s.PageSize)
	}
	if s.LoginRateLimit < 0 {
		return fmt.Errorf("auth.login_rate_limit must not be negative, got %d", s.LoginRateLimit)
	}
	switch s.Security.FrameOptions {
	case "", "DENY", "SAMEORIGIN":
	default:
		return fmt.Errorf("server.security.frame_options: %q (want DENY or SAMEORIGIN)", s.Security.FrameOptions)
	}
	return nil
}

// stringList reads a list key. Environment values may separate entries with
// commas or whitespace.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseTrustedProxies accepts single IPs and CIDR ranges.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, e := range entries {
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
