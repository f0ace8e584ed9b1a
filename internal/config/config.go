package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Network   NetworkConfig   `koanf:"network"`
	Callback  CallbackConfig  `koanf:"callback"`
	Reporting ReportingConfig `koanf:"reporting"`
	Directory DirectoryConfig `koanf:"directory"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// NetworkConfig describes the upstream ad network: the publisher API
// endpoints, their credentials, the legacy callback signing key, and the
// published egress addresses the callback endpoint may trust.
type NetworkConfig struct {
	AuthURL            string   `koanf:"auth_url"`
	ReportURL          string   `koanf:"report_url"`
	SecretKey          string   `koanf:"secret_key"`
	RefreshToken       string   `koanf:"refresh_token"`
	PrivateKey         string   `koanf:"private_key"`
	AdSources          []string `koanf:"ad_sources"`
	EnforceIPAllowList bool     `koanf:"enforce_ip_allowlist"`
	AllowedIPs         []string `koanf:"allowed_ips"`
	RequestTimeout     string   `koanf:"request_timeout"`
}

type CallbackConfig struct {
	ForwardTimeout string `koanf:"forward_timeout"`
}

type ReportingConfig struct {
	Enabled    bool   `koanf:"enabled"`
	RunAt      string `koanf:"run_at"` // "HH:MM", UTC
	RunOnStart bool   `koanf:"run_on_start"`
	SheetDir   string `koanf:"sheet_dir"`
}

type DirectoryConfig struct {
	SeedFile string `koanf:"seed_file"`
}

func (c NetworkConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c CallbackConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ForwardTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Network.PrivateKey) == "" {
		return fmt.Errorf("network.private_key is required")
	}
	if c.Network.EnforceIPAllowList && len(c.Network.AllowedIPs) == 0 {
		return fmt.Errorf("network.allowed_ips must not be empty when network.enforce_ip_allowlist is set")
	}
	for _, ip := range c.Network.AllowedIPs {
		if net.ParseIP(strings.TrimSpace(ip)) == nil {
			return fmt.Errorf("invalid address %q in network.allowed_ips", ip)
		}
	}
	if _, err := time.ParseDuration(c.Network.RequestTimeout); c.Network.RequestTimeout != "" && err != nil {
		return fmt.Errorf("invalid network.request_timeout %q: %w", c.Network.RequestTimeout, err)
	}
	if _, err := time.ParseDuration(c.Callback.ForwardTimeout); c.Callback.ForwardTimeout != "" && err != nil {
		return fmt.Errorf("invalid callback.forward_timeout %q: %w", c.Callback.ForwardTimeout, err)
	}

	if c.Reporting.Enabled {
		if strings.TrimSpace(c.Network.AuthURL) == "" {
			return fmt.Errorf("network.auth_url is required when reporting is enabled")
		}
		if strings.TrimSpace(c.Network.ReportURL) == "" {
			return fmt.Errorf("network.report_url is required when reporting is enabled")
		}
		if strings.TrimSpace(c.Network.SecretKey) == "" {
			return fmt.Errorf("network.secret_key is required when reporting is enabled")
		}
		if strings.TrimSpace(c.Network.RefreshToken) == "" {
			return fmt.Errorf("network.refresh_token is required when reporting is enabled")
		}
		if len(c.Network.AdSources) == 0 {
			return fmt.Errorf("network.ad_sources must not be empty when reporting is enabled")
		}
		if _, err := time.Parse("15:04", c.Reporting.RunAt); err != nil {
			return fmt.Errorf("invalid reporting.run_at %q (want HH:MM): %w", c.Reporting.RunAt, err)
		}
		if strings.TrimSpace(c.Reporting.SheetDir) == "" {
			return fmt.Errorf("reporting.sheet_dir is required when reporting is enabled")
		}
	}

	return nil
}

// Load parses config from defaults, an optional YAML file, and ADBRIDGE_*
// environment variables (double underscore maps to a dot), then validates.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"network.ad_sources":      []string{"ironSource"},
		// Published egress addresses of the mediation network's S2S callers.
		"network.allowed_ips": []string{
			"79.125.5.179",
			"79.125.26.193",
			"79.125.117.130",
			"176.34.224.39",
			"176.34.224.41",
			"176.34.224.49",
			"34.194.180.125",
			"34.196.56.165",
			"34.196.251.81",
			"34.196.253.23",
		},
		"network.enforce_ip_allowlist": false,
		"network.request_timeout":      "30s",
		"callback.forward_timeout":     "10s",
		"reporting.enabled":            false,
		"reporting.run_at":             "02:00",
		"reporting.run_on_start":       false,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("ADBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ADBRIDGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
