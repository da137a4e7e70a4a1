package config

import (
	"strings"
	"time"
)

type EnvVars struct {
	Port     string `env:"PORT" env-default:"8080"`
	AppName  string `env:"APP_NAME" env-default:"Ops Portal"`
	Env      string `env:"ENV" env-default:"DEV"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	SiteURL  string `env:"SITE_URL" env-default:"http://localhost:8080"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetSiteURL returns the portal's registered base URL (e.g., "https://ops.example.com/").
// Redirects from the identity authority land here.
func (e EnvVars) GetSiteURL() string {
	return trimSlash(e.SiteURL) + "/"
}

type AuthorityConfig interface {
	GetAuthorityURL() string
	GetAuthorityAnonKey() string
	GetAuthorityTimeout() time.Duration
	GetTokenEndpointURL() string
	GetOAuthClientID() string
	GetProfileTable() string
}

type Authority struct {
	AuthorityURL     string        `env:"AUTHORITY_URL"`
	AnonKey          string        `env:"AUTHORITY_ANON_KEY"`
	Timeout          time.Duration `env:"AUTHORITY_TIMEOUT" env-default:"10s"`
	TokenEndpointURL string        `env:"TOKEN_ENDPOINT_URL"`
	ClientID         string        `env:"OAUTH_CLIENT_ID" env-default:"ops-portal"`
	ProfileTable     string        `env:"PROFILE_TABLE" env-default:"profiles"`
}

var _ AuthorityConfig = Authority{}

func (a Authority) GetAuthorityURL() string {
	return trimSlash(a.AuthorityURL)
}

func (a Authority) GetAuthorityAnonKey() string {
	return a.AnonKey
}

func (a Authority) GetAuthorityTimeout() time.Duration {
	return a.Timeout
}

// GetTokenEndpointURL is the plain OAuth2 token endpoint used when the authority client
// cannot exchange codes itself. Empty disables the fallback.
func (a Authority) GetTokenEndpointURL() string {
	return a.TokenEndpointURL
}

func (a Authority) GetOAuthClientID() string {
	return a.ClientID
}

func (a Authority) GetProfileTable() string {
	return a.ProfileTable
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type SessionConfig interface {
	GetSessionBackend() string
	GetRedisURL() string
	GetSessionTTL() time.Duration
	GetRelayTimeout() time.Duration
	GetCookieSecure() bool
	GetMinPasswordLength() int
}

type Session struct {
	Backend      string        `env:"SESSION_BACKEND" env-default:"memory"`
	RedisURL     string        `env:"REDIS_URL"`
	TTL          time.Duration `env:"SESSION_TTL" env-default:"12h"`
	RelayTimeout time.Duration `env:"RELAY_TIMEOUT" env-default:"15s"`
	CookieSecure bool          `env:"COOKIE_SECURE" env-default:"false"`
}

var _ SessionConfig = Session{}

func (s Session) GetSessionBackend() string {
	return s.Backend
}

func (s Session) GetRedisURL() string {
	return s.RedisURL
}

func (s Session) GetSessionTTL() time.Duration {
	return s.TTL
}

// GetRelayTimeout bounds how long the loading page waits for the fragment relay.
func (s Session) GetRelayTimeout() time.Duration {
	return s.RelayTimeout
}

func (s Session) GetCookieSecure() bool {
	return s.CookieSecure
}

func (Session) GetMinPasswordLength() int {
	return 6
}
