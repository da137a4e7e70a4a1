package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/ops-portal/credentials"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/sessionstore"
)

const (
	DefaultTimeout           = 10 * time.Second
	DefaultMinPasswordLength = 6
)

// Recorder receives auth events. *metrics.Metrics satisfies it.
type Recorder interface {
	IncrementGateDecision(state string)
	IncrementAuthError(kind string)
	IncrementSessionEstablished(kind string)
	IncrementSessionPurged()
}

type noopRecorder struct{}

func (noopRecorder) IncrementGateDecision(string)       {}
func (noopRecorder) IncrementAuthError(string)          {}
func (noopRecorder) IncrementSessionEstablished(string) {}
func (noopRecorder) IncrementSessionPurged()            {}

// CodeFallback exchanges a code directly at a token endpoint.
type CodeFallback interface {
	Exchange(ctx context.Context, code, codeVerifier string) (provider.TokenPair, error)
}

type settings struct {
	timeout           time.Duration
	minPasswordLength int
	fallback          CodeFallback
	recorder          Recorder
	nowTime           func() time.Time
	siteURL           string
}

func newSettings(opts []Option) settings {
	s := settings{
		timeout:           DefaultTimeout,
		minPasswordLength: DefaultMinPasswordLength,
		recorder:          noopRecorder{},
		nowTime:           time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the Establisher, Rehydrator, Gate and Accounts alike.
type Option func(*settings)

// WithTimeout bounds every authority call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCodeFallback sets the exchange used when a handle cannot exchange codes itself.
func WithCodeFallback(f CodeFallback) Option {
	return func(s *settings) {
		s.fallback = f
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *settings) {
		s.nowTime = nowFunc
	}
}

func WithMinPasswordLength(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.minPasswordLength = n
		}
	}
}

// WithSiteURL is where password-reset links send the user back to.
func WithSiteURL(u string) Option {
	return func(s *settings) {
		s.siteURL = u
	}
}

func (s settings) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Rerun is everything one pass over the view sees. Handle is owned by the rerun and may
// be replaced by the Rehydrator; nothing about it is assumed to survive to the next one.
type Rerun struct {
	Params url.Values
	URL    *url.URL
	Scope  sessionstore.Scope
	Handle provider.Client
}

// NewRerun builds a rerun for the request URL u.
func NewRerun(u *url.URL, scope sessionstore.Scope, handle provider.Client) *Rerun {
	return &Rerun{Params: u.Query(), URL: u, Scope: scope, Handle: handle}
}

// CleanURL is the rerun's URL without any handshake parameter.
func (rr *Rerun) CleanURL() string {
	if rr.URL == nil {
		return "/"
	}
	return credentials.StripAuthParams(*rr.URL)
}
