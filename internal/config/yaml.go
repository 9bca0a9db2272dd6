package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level usher configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dev      bool           `yaml:"dev"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string         `yaml:"host"`
	Port            int            `yaml:"port"`
	MaxBodySize     string         `yaml:"max_body_size"`
	ShutdownTimeout string         `yaml:"shutdown_timeout"`
	AllowedHosts    []string       `yaml:"allowed_hosts"`
	TrustedProxies  []string       `yaml:"trusted_proxies"`
	CORS            CORSConfig     `yaml:"cors"`
	Security        SecurityConfig `yaml:"security"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// SecurityConfig controls the security response headers.
type SecurityConfig struct {
	HSTSSeconds           int    `yaml:"hsts_seconds"`
	HSTSIncludeSubdomains bool   `yaml:"hsts_include_subdomains"`
	HSTSPreload           bool   `yaml:"hsts_preload"`
	ContentTypeNosniff    bool   `yaml:"content_type_nosniff"`
	FrameOptions          string `yaml:"frame_options"`
	XSSFilter             bool   `yaml:"xss_filter"`
}

// DatabaseConfig selects the account database.
type DatabaseConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig controls login and token handling.
type AuthConfig struct {
	LoginRateLimit int    `yaml:"login_rate_limit"`
	TokenCacheTTL  string `yaml:"token_cache_ttl"`
}

// APIConfig controls response shaping.
type APIConfig struct {
	PageSize int `yaml:"page_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with the defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			MaxBodySize:     "1MB",
			ShutdownTimeout: "30s",
			AllowedHosts:    []string{"localhost", "127.0.0.1"},
			CORS: CORSConfig{
				Origins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
			},
			Security: SecurityConfig{
				HSTSSeconds:           31536000,
				HSTSIncludeSubdomains: true,
				HSTSPreload:           true,
				ContentTypeNosniff:    true,
				FrameOptions:          "DENY",
				XSSFilter:             true,
			},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			LoginRateLimit: 10,
			TokenCacheTTL:  "1m",
		},
		API: APIConfig{
			PageSize: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultYAMLConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
