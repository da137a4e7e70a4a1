package fakeprovider

import (
	"context"
	"net/http"

	"github.com/jrsteele09/ops-portal/provider"
)

var (
	_ provider.Client         = (*Client)(nil)
	_ provider.CodeExchanger  = (*Client)(nil)
	_ provider.ProfileFetcher = (*Client)(nil)
)

// Client is a handle onto an Authority. Fresh handles hold no session.
type Client struct {
	a       *Authority
	session *provider.TokenPair
}

func (c *Client) CurrentSession() *provider.TokenPair {
	if c.session == nil {
		return nil
	}
	pair := *c.session
	return &pair
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResponse, error) {
	if err := c.a.enter(ctx, OpSignIn); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	acc, ok := c.a.accounts[email]
	if !ok || acc.password != password {
		return nil, &provider.Error{Op: OpSignIn, Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	pair := c.a.mintLocked(acc.user.ID)
	c.session = &pair
	return &provider.AuthResponse{Tokens: pair, User: acc.user}, nil
}

func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*provider.AuthResponse, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, provider.ErrMissingTokens
	}
	if err := c.a.enter(ctx, OpSetSession); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()

	if as, ok := c.a.access[accessToken]; ok && !as.revoked && as.expiresAt.After(c.a.now()) {
		user, err := c.a.userForAccessLocked(accessToken)
		if err != nil {
			return nil, err
		}
		pair := provider.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: as.expiresAt}
		c.session = &pair
		return &provider.AuthResponse{Tokens: pair, User: user}, nil
	}

	resp, err := c.a.refreshLocked(refreshToken)
	if err != nil {
		return nil, err
	}
	c.session = &resp.Tokens
	return resp, nil
}

func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*provider.AuthResponse, error) {
	if err := c.a.enter(ctx, OpExchangeCode); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	cs, ok := c.a.codes[code]
	if !ok {
		return nil, &provider.Error{Op: OpExchangeCode, Status: http.StatusNotFound, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}
	}
	if cs.used {
		return nil, &provider.Error{Op: OpExchangeCode, Status: http.StatusBadRequest, Code: "flow_state_expired", Message: "invalid flow state, flow state has expired"}
	}
	if cs.verifier != codeVerifier {
		return nil, &provider.Error{Op: OpExchangeCode, Status: http.StatusBadRequest, Code: "bad_code_verifier", Message: "code challenge does not match previously saved code verifier"}
	}
	cs.used = true
	pair := c.a.mintLocked(cs.userID)
	c.session = &pair
	return &provider.AuthResponse{Tokens: pair, User: c.a.byID[cs.userID].user}, nil
}

func (c *Client) GetUser(ctx context.Context) (*provider.User, error) {
	if err := c.a.enter(ctx, OpGetUser); err != nil {
		return nil, err
	}
	if c.session == nil {
		return nil, provider.ErrNoSession
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	user, err := c.a.userForAccessLocked(c.session.AccessToken)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string, opts provider.ResetOptions) error {
	if err := c.a.enter(ctx, OpReset); err != nil {
		return err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	c.a.resets = append(c.a.resets, ResetRequest{Email: email, Opts: opts})
	return nil
}

func (c *Client) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	if err := c.a.enter(ctx, OpUpdateUser); err != nil {
		return nil, err
	}
	if c.session == nil {
		return nil, provider.ErrNoSession
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	user, err := c.a.userForAccessLocked(c.session.AccessToken)
	if err != nil {
		return nil, err
	}
	acc := c.a.byID[user.ID]
	if attrs.Password != "" {
		if attrs.Password == acc.password {
			return nil, &provider.Error{Op: OpUpdateUser, Status: http.StatusUnprocessableEntity, Code: "same_password", Message: "New password should be different from the old password."}
		}
		acc.password = attrs.Password
	}
	updated := acc.user
	return &updated, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	refresh := c.session.RefreshToken
	c.session = nil
	if err := c.a.enter(ctx, OpSignOut); err != nil {
		return err
	}
	c.a.Revoke(refresh)
	return nil
}

func (c *Client) FetchProfile(ctx context.Context, userID string) (*provider.Profile, error) {
	if err := c.a.enter(ctx, OpFetchProfile); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	p, ok := c.a.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
