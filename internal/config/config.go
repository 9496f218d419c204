package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// TechnitiumConfig points the console at the DNS server's management API.
type TechnitiumConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	APIToken   string        `yaml:"api_token"` // service token, used by LDAP logins and `isotope check`
	SkipVerify bool          `yaml:"skip_verify"`
}

type SessionConfig struct {
	MaxAge         time.Duration `yaml:"max_age"`
	VerifyInterval time.Duration `yaml:"verify_interval"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // empty keeps sessions in memory
}

type LDAPConfig struct {
	Enabled      bool              `yaml:"enabled"`
	URL          string            `yaml:"url"`
	BindDN       string            `yaml:"bind_dn"`
	BindPassword string            `yaml:"bind_password"`
	BaseDN       string            `yaml:"base_dn"`
	UserFilter   string            `yaml:"user_filter"`
	UsernameAttr string            `yaml:"username_attr"`
	EmailAttr    string            `yaml:"email_attr"`
	StartTLS     bool              `yaml:"starttls"`
	SkipVerify   bool              `yaml:"skip_verify"`
	GroupFilter  string            `yaml:"group_filter"` // Defaults to (|(member=%s)(uniqueMember=%s))
	GroupMapping map[string]string `yaml:"group_mapping"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// On reports whether the metrics endpoint is mounted. Metrics are on unless
// explicitly disabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Technitium TechnitiumConfig `yaml:"technitium"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	LDAP       LDAPConfig       `yaml:"ldap"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("ISOTOPE_TECHNITIUM_URL"); v != "" {
		cfg.Technitium.URL = v
	}
	if v := os.Getenv("ISOTOPE_API_TOKEN"); v != "" {
		cfg.Technitium.APIToken = v
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Technitium.Timeout == 0 {
		cfg.Technitium.Timeout = 30 * time.Second
	}
	if cfg.Session.MaxAge == 0 {
		cfg.Session.MaxAge = 24 * time.Hour
	}
	if cfg.Session.VerifyInterval == 0 {
		cfg.Session.VerifyInterval = 5 * time.Minute
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Technitium.URL == "" {
		return nil, fmt.Errorf("technitium.url is required")
	}
	u, err := url.Parse(cfg.Technitium.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("technitium.url must be an absolute http(s) URL, got %q", cfg.Technitium.URL)
	}
	cfg.Technitium.URL = strings.TrimSuffix(cfg.Technitium.URL, "/")

	if cfg.LDAP.Enabled {
		if cfg.LDAP.URL == "" {
			return nil, fmt.Errorf("ldap.url is required when LDAP is enabled")
		}
		if cfg.LDAP.BindDN == "" || cfg.LDAP.BindPassword == "" {
			return nil, fmt.Errorf("ldap.bind_dn and ldap.bind_password are required")
		}
		if cfg.LDAP.BaseDN == "" {
			return nil, fmt.Errorf("ldap.base_dn is required")
		}
		if len(cfg.LDAP.GroupMapping) == 0 {
			return nil, fmt.Errorf("ldap.group_mapping must define at least one role")
		}
		if cfg.Technitium.APIToken == "" {
			return nil, fmt.Errorf("technitium.api_token is required when LDAP is enabled")
		}
		if cfg.LDAP.UserFilter == "" {
			cfg.LDAP.UserFilter = "(sAMAccountName=%s)"
		}
		if cfg.LDAP.UsernameAttr == "" {
			cfg.LDAP.UsernameAttr = "sAMAccountName"
		}
	}

	return &cfg, nil
}

// Warnings lists insecure but valid settings worth logging at startup.
func (c *Config) Warnings() []string {
	var out []string
	if c.LDAP.Enabled && strings.HasPrefix(c.LDAP.URL, "ldap://") && !c.LDAP.StartTLS {
		out = append(out, "LDAP is configured with ldap:// but StartTLS is disabled. Credentials will be sent in cleartext.")
	}
	if c.Technitium.SkipVerify {
		out = append(out, "TLS verification of the DNS server is disabled.")
	}
	if !c.Server.SecureCookies {
		out = append(out, "Session cookies are not marked Secure; serve the console behind TLS in production.")
	}
	return out
}
