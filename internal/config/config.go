package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Config is the process configuration, populated from the environment.
// Issuer and ClientID identify the OAuth identity provider; both are
// required and their absence is fatal at startup.
type Config struct {
	Port   string `env:"MARKS_PORT,default=8080"`
	DBPath string `env:"MARKS_DB_PATH,default=marks.db"`

	// BaseURL is the canonical public origin of this deployment, e.g.
	// "https://marks.example.com". The OAuth provider redirects codes here.
	BaseURL string `env:"MARKS_BASE_URL,default=http://localhost:8080"`

	// ExtraOrigins lists additional origins the app may be served from
	// (comma separated). A code landing on one of these is forwarded to
	// BaseURL for exchange, since the authorization code is single-use.
	ExtraOrigins string `env:"MARKS_EXTRA_ORIGINS"`

	Issuer       string `env:"MARKS_OIDC_ISSUER,required"`
	ClientID     string `env:"MARKS_OIDC_CLIENT_ID,required"`
	ClientSecret string `env:"MARKS_OIDC_CLIENT_SECRET"`

	// RedisAddr enables the cross-instance change notification bridge when
	// set, e.g. "localhost:6379". Empty means single-instance operation.
	RedisAddr string `env:"MARKS_REDIS_ADDR"`

	LogLevel string `env:"MARKS_LOG_LEVEL,default=info"`
	Env      string `env:"MARKS_ENV,default=development"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &cfg, nil
}

// Production reports whether the deployment should use secure cookies.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// RedirectURL is the provider-facing callback URL on the canonical origin.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/callback"
}

// CanonicalHost returns the host[:port] of the canonical origin.
func (c *Config) CanonicalHost() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ForeignOrigin reports whether host belongs to a known non-canonical
// deployment origin. Codes arriving there must not be exchanged locally.
func (c *Config) ForeignOrigin(host string) bool {
	if host == "" || host == c.CanonicalHost() {
		return false
	}
	for _, o := range strings.Split(c.ExtraOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host == host {
			return true
		}
		if o == host {
			return true
		}
	}
	return false
}
