package auth

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/sessionstore"
)

// Purpose says what a session may be used for.
type Purpose string

const (
	PurposeNormal Purpose = "normal"
	// PurposeRecovery sessions allow a single password update before general use.
	PurposeRecovery Purpose = "recovery"
)

// Session is the durable authenticated identity. It is either absent from a scope or
// fully populated with tokens the authority has verified.
type Session struct {
	UserID        string
	Email         string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	Purpose       Purpose
	EstablishedAt time.Time
	Profile       *provider.Profile
}

func (s *Session) Tokens() provider.TokenPair {
	return provider.TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: s.ExpiresAt}
}

func (s *Session) User() provider.User {
	return provider.User{ID: s.UserID, Email: s.Email}
}

// IsRecovery reports whether the session still owes its password update.
func (s *Session) IsRecovery() bool {
	return s.Purpose == PurposeRecovery
}

// DisplayName prefers the profile's full name.
func (s *Session) DisplayName() string {
	if s.Profile != nil && s.Profile.FullName != "" {
		return s.Profile.FullName
	}
	return s.Email
}

// Role is the portal role from the profile, empty when there is none.
func (s *Session) Role() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// storedSession is the auth_session value.
type storedSession struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	Purpose       Purpose   `json:"purpose"`
	EstablishedAt time.Time `json:"established_at"`
}

// pendingCode is the auth_code_verifier value: the PKCE verifier of a link the portal
// requested and the flow it belongs to, since code redirects do not say.
type pendingCode struct {
	Verifier string `json:"verifier"`
	FlowType string `json:"flow_type"`
}

// LoadSession reads the session of scope. A missing or half-written session is nil.
func LoadSession(ctx context.Context, scope sessionstore.Scope) (*Session, error) {
	var stored storedSession
	ok, err := scope.Get(ctx, sessionstore.KeySession, &stored)
	if err != nil || !ok {
		return nil, err
	}
	var user provider.User
	ok, err = scope.Get(ctx, sessionstore.KeyUser, &user)
	if err != nil || !ok {
		return nil, err
	}
	if user.ID == "" || !stored.tokens().Valid() {
		return nil, nil
	}

	sess := &Session{
		UserID:        user.ID,
		Email:         user.Email,
		AccessToken:   stored.AccessToken,
		RefreshToken:  stored.RefreshToken,
		ExpiresAt:     stored.ExpiresAt,
		Purpose:       stored.Purpose,
		EstablishedAt: stored.EstablishedAt,
	}
	if sess.Purpose == "" {
		sess.Purpose = PurposeNormal
	}

	var profile provider.Profile
	if ok, err := scope.Get(ctx, sessionstore.KeyProfileCache, &profile); err == nil && ok {
		sess.Profile = &profile
	}
	return sess, nil
}

// saveSession writes the user, the tokens and the profile cache in one store update,
// so a failed save leaves any previous session intact.
func saveSession(ctx context.Context, scope sessionstore.Scope, sess *Session) error {
	set := map[string]any{
		sessionstore.KeyUser: sess.User(),
		sessionstore.KeySession: storedSession{
			AccessToken:   sess.AccessToken,
			RefreshToken:  sess.RefreshToken,
			ExpiresAt:     sess.ExpiresAt,
			Purpose:       sess.Purpose,
			EstablishedAt: sess.EstablishedAt,
		},
	}
	var del []string
	if sess.Profile != nil {
		set[sessionstore.KeyProfileCache] = sess.Profile
	} else {
		del = append(del, sessionstore.KeyProfileCache)
	}
	if err := scope.Update(ctx, set, del...); err != nil {
		return apperrors.Wrapf(err, "save session")
	}
	return nil
}

// purgeSession removes every auth key of scope.
func purgeSession(ctx context.Context, scope sessionstore.Scope) error {
	return scope.Delete(ctx, sessionstore.AuthKeys...)
}

func (s storedSession) tokens() provider.TokenPair {
	return provider.TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: s.ExpiresAt}
}

func loadPendingCode(ctx context.Context, scope sessionstore.Scope) (pendingCode, bool) {
	var pc pendingCode
	ok, err := scope.Get(ctx, sessionstore.KeyCodeVerifier, &pc)
	if err != nil || !ok {
		return pendingCode{}, false
	}
	return pc, true
}

// corrupt reports whether err means the stored session cannot be decoded.
func corrupt(err error) bool {
	return errors.Is(err, apperrors.ErrCorruptValue)
}
