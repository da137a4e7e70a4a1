// Package fakeprovider is an in-memory identity authority for tests.
package fakeprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/ops-portal/provider"
)

// Operation names used by FailNext, StallNext and Calls.
const (
	OpSignIn       = "sign_in_with_password"
	OpSetSession   = "set_session"
	OpExchangeCode = "exchange_code_for_session"
	OpGetUser      = "get_user"
	OpReset        = "reset_password_for_email"
	OpUpdateUser   = "update_user"
	OpSignOut      = "sign_out"
	OpFetchProfile = "fetch_profile"
)

const defaultAccessTTL = time.Hour

type account struct {
	user     provider.User
	password string
}

type accessState struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type refreshState struct {
	userID string
	access string
	used   bool
}

type codeState struct {
	userID   string
	verifier string
	used     bool
}

// ResetRequest records a password-reset email the authority was asked to send.
type ResetRequest struct {
	Email string
	Opts  provider.ResetOptions
}

// Authority holds users, sessions and single-use codes.
type Authority struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       int
	accounts  map[string]*account // by email
	byID      map[string]*account
	access    map[string]*accessState
	refresh   map[string]*refreshState
	codes     map[string]*codeState
	profiles  map[string]provider.Profile
	calls     map[string]int
	failures  map[string]error
	stalls    map[string]bool
	resets    []ResetRequest
	accessTTL time.Duration
}

func New() *Authority {
	return &Authority{
		now:       time.Now,
		accounts:  make(map[string]*account),
		byID:      make(map[string]*account),
		access:    make(map[string]*accessState),
		refresh:   make(map[string]*refreshState),
		codes:     make(map[string]*codeState),
		profiles:  make(map[string]provider.Profile),
		calls:     make(map[string]int),
		failures:  make(map[string]error),
		stalls:    make(map[string]bool),
		accessTTL: defaultAccessTTL,
	}
}

// AddUser registers an account.
func (a *Authority) AddUser(id, email, password string) provider.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc := &account{user: provider.User{ID: id, Email: email, Role: "authenticated"}, password: password}
	a.accounts[email] = acc
	a.byID[id] = acc
	return acc.user
}

// SetProfile stores a profile row for FetchProfile.
func (a *Authority) SetProfile(p provider.Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles[p.ID] = p
}

// IssueSession mints a token pair the way a magic or recovery link would.
func (a *Authority) IssueSession(userID string) provider.TokenPair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mintLocked(userID)
}

// IssueCode mints a single-use authorization code bound to codeVerifier.
func (a *Authority) IssueCode(userID, codeVerifier string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	code := fmt.Sprintf("code-%d", a.seq)
	a.codes[code] = &codeState{userID: userID, verifier: codeVerifier}
	return code
}

// Revoke invalidates a refresh token and the access token issued with it.
func (a *Authority) Revoke(refreshToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rs, ok := a.refresh[refreshToken]; ok {
		rs.used = true
		if as, ok := a.access[rs.access]; ok {
			as.revoked = true
		}
	}
}

// ExpireAccess makes an access token lapse while its refresh token stays usable.
func (a *Authority) ExpireAccess(accessToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if as, ok := a.access[accessToken]; ok {
		as.expiresAt = a.now().Add(-time.Minute)
	}
}

// FailNext makes the next call of op return err.
func (a *Authority) FailNext(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = err
}

// StallNext makes the next call of op block until its context ends.
func (a *Authority) StallNext(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stalls[op] = true
}

// Calls reports how many times op has been invoked across all handles.
func (a *Authority) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// Password returns the current password of email.
func (a *Authority) Password(email string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.accounts[email]; ok {
		return acc.password
	}
	return ""
}

// Resets returns every password-reset request received.
func (a *Authority) Resets() []ResetRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ResetRequest(nil), a.resets...)
}

// Client returns a fresh handle.
func (a *Authority) Client() *Client {
	return &Client{a: a}
}

// Factory returns a provider.Factory of fresh handles.
func (a *Authority) Factory() provider.Factory {
	return func() provider.Client { return a.Client() }
}

// BasicFactory returns handles without the code-exchange capability.
func (a *Authority) BasicFactory() provider.Factory {
	return func() provider.Client { return basicClient{a.Client()} }
}

type basicClient struct {
	provider.Client
}

func (b basicClient) FetchProfile(ctx context.Context, userID string) (*provider.Profile, error) {
	return b.Client.(*Client).FetchProfile(ctx, userID)
}

// enter records the call and applies any injected failure or stall.
func (a *Authority) enter(ctx context.Context, op string) error {
	a.mu.Lock()
	a.calls[op]++
	err := a.failures[op]
	delete(a.failures, op)
	stall := a.stalls[op]
	delete(a.stalls, op)
	a.mu.Unlock()

	if stall {
		<-ctx.Done()
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Authority) mintLocked(userID string) provider.TokenPair {
	a.seq++
	pair := provider.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", a.seq),
		RefreshToken: fmt.Sprintf("refresh-%d", a.seq),
		ExpiresAt:    a.now().Add(a.accessTTL).Truncate(time.Second),
	}
	a.access[pair.AccessToken] = &accessState{userID: userID, expiresAt: pair.ExpiresAt}
	a.refresh[pair.RefreshToken] = &refreshState{userID: userID, access: pair.AccessToken}
	return pair
}

func (a *Authority) userForAccessLocked(accessToken string) (provider.User, error) {
	as, ok := a.access[accessToken]
	if !ok || as.revoked {
		return provider.User{}, &provider.Error{Status: http.StatusForbidden, Code: "session_not_found", Message: "Session from session_id claim in JWT does not exist"}
	}
	if !as.expiresAt.After(a.now()) {
		return provider.User{}, &provider.Error{Status: http.StatusForbidden, Code: "bad_jwt", Message: "invalid JWT: token is expired"}
	}
	acc, ok := a.byID[as.userID]
	if !ok {
		return provider.User{}, &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	return acc.user, nil
}

func (a *Authority) refreshLocked(refreshToken string) (*provider.AuthResponse, error) {
	rs, ok := a.refresh[refreshToken]
	if !ok {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	if rs.used {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "refresh_token_already_used", Message: "Invalid Refresh Token: Already Used"}
	}
	rs.used = true
	pair := a.mintLocked(rs.userID)
	return &provider.AuthResponse{Tokens: pair, User: a.byID[rs.userID].user}, nil
}
