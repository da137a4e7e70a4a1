package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
)

type Config interface {
	EnvConfig
	AuthorityConfig
	SessionConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetSiteURL() string
}

type mainConfig struct {
	EnvVars
	Authority
	Session
}

// New reads the configuration from the environment. It does not validate it.
func New() (Config, error) {
	var c mainConfig
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, apperrors.Wrapf(err, "read environment")
	}
	return c, nil
}

// Validate reports every setting the portal cannot start with. Callers treat a
// non-nil result as fatal before any authentication attempt.
func (c mainConfig) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: "+format, append([]any{apperrors.ErrInvalidConfig}, args...)...))
	}

	if err := absoluteURL(c.SiteURL); err != nil {
		add("SITE_URL %v", err)
	}
	if err := absoluteURL(c.AuthorityURL); err != nil {
		add("AUTHORITY_URL %v", err)
	}
	if c.AnonKey == "" {
		add("AUTHORITY_ANON_KEY is required")
	}
	if c.Timeout <= 0 {
		add("AUTHORITY_TIMEOUT must be positive")
	}
	if c.TokenEndpointURL != "" {
		if err := absoluteURL(c.TokenEndpointURL); err != nil {
			add("TOKEN_ENDPOINT_URL %v", err)
		}
	}

	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			add("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		add("SESSION_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Backend)
	}
	if c.TTL <= 0 {
		add("SESSION_TTL must be positive")
	}
	if c.RelayTimeout <= 0 {
		add("RELAY_TIMEOUT must be positive")
	}

	return errors.Join(problems...)
}

func absoluteURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
