// Package provider defines the portal's view of the external identity authority.
//
// A Client is a handle: it holds at most one session in process memory and may be
// freshly constructed at any time with no memory of prior calls. Everything durable
// lives in the session store, never in a handle.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNoSession     = errors.New("handle has no session")
	ErrMissingTokens = errors.New("access and refresh tokens are required")
	ErrUnsupported   = errors.New("operation not supported by this handle")
)

// User is the identity the authority vouches for.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// TokenPair is the credential material of a session.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether both halves of the pair are present.
func (p TokenPair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Matches reports whether two pairs carry the same tokens.
func (p TokenPair) Matches(o TokenPair) bool {
	return p.AccessToken == o.AccessToken && p.RefreshToken == o.RefreshToken
}

// MarshalZerologObject never writes token values.
func (p TokenPair) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("has_access_token", p.AccessToken != "").
		Bool("has_refresh_token", p.RefreshToken != "").
		Time("expires_at", p.ExpiresAt)
}

// AuthResponse is what session-producing calls return.
type AuthResponse struct {
	Tokens TokenPair
	User   User
}

// UserAttributes are the user fields UpdateUser can change.
type UserAttributes struct {
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// ResetOptions configure a password-reset email.
type ResetOptions struct {
	RedirectTo          string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Client is the set of authority operations every handle supports.
//
// SetSession takes the two tokens as discrete values. Handing the authority a composite
// session object where it expects two strings is the classic integration defect; the
// signature makes that a compile error.
type Client interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthResponse, error)
	GetUser(ctx context.Context) (*User, error)
	ResetPasswordForEmail(ctx context.Context, email string, opts ResetOptions) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error)
	SignOut(ctx context.Context) error

	// CurrentSession returns the tokens held in process memory, nil for a fresh handle.
	CurrentSession() *TokenPair
}

// CodeExchanger is the optional authorization-code capability.
type CodeExchanger interface {
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*AuthResponse, error)
}

// TokenPairSetter is the composite-object session-set shape some client versions expose.
type TokenPairSetter interface {
	SetSessionPair(ctx context.Context, pair TokenPair) (*AuthResponse, error)
}

// Profile is the cross-reference into the profile storage subsystem.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
	Active   bool   `json:"is_active,omitempty"`
}

// ProfileFetcher is the optional profile lookup capability.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
}

// Factory builds a fresh handle with no session.
type Factory func() Client

// ApplySession re-applies a stored pair to a handle. The discrete call shape is used
// whenever the handle offers it; the composite shape is the fallback.
func ApplySession(ctx context.Context, c any, pair TokenPair) (*AuthResponse, error) {
	if !pair.Valid() {
		return nil, ErrMissingTokens
	}
	switch h := c.(type) {
	case Client:
		return h.SetSession(ctx, pair.AccessToken, pair.RefreshToken)
	case TokenPairSetter:
		return h.SetSessionPair(ctx, pair)
	}
	return nil, ErrUnsupported
}
