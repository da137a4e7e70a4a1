// Package gotrue is a provider.Client for GoTrue-compatible identity authorities.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/ops-portal/provider"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultProfileTable = "profiles"

	// expiryMargin refreshes tokens that are about to lapse mid-rerun.
	expiryMargin = 10 * time.Second

	authPath = "/auth/v1"
	restPath = "/rest/v1"
)

var (
	_ provider.Client         = (*Client)(nil)
	_ provider.CodeExchanger  = (*Client)(nil)
	_ provider.ProfileFetcher = (*Client)(nil)
)

// Observer is told about every authority round trip.
type Observer func(op string, elapsed time.Duration, err error)

// Client is one handle onto the authority. It is not safe for concurrent use; each
// rerun owns its handle.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	profileTable string
	now          func() time.Time
	observe      Observer

	session *provider.TokenPair
	user    *provider.User
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout bounds every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

func WithProfileTable(table string) Option {
	return func(c *Client) {
		c.profileTable = table
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observe = o
	}
}

// New builds a fresh handle against baseURL (the project URL, without /auth/v1).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		profileTable: DefaultProfileTable,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFactory returns a provider.Factory producing fresh handles with the same options.
func NewFactory(baseURL, apiKey string, opts ...Option) provider.Factory {
	return func() provider.Client {
		return New(baseURL, apiKey, opts...)
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u userResponse) toUser() provider.User {
	return provider.User{ID: u.ID, Email: u.Email, Role: u.Role}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func (c *Client) CurrentSession() *provider.TokenPair {
	if c.session == nil {
		return nil
	}
	pair := *c.session
	return &pair
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	return c.tokenGrant(ctx, "sign_in_with_password", "password", body)
}

// SetSession installs the pair on this handle. A live access token is confirmed with the
// authority; an expired one is exchanged through the refresh grant.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*provider.AuthResponse, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, provider.ErrMissingTokens
	}

	expiresAt, err := tokenExpiry(accessToken)
	if err != nil {
		return nil, &provider.Error{Op: "set_session", Code: "bad_jwt", Message: err.Error()}
	}

	if !expiresAt.After(c.now().Add(expiryMargin)) {
		body := map[string]string{"refresh_token": refreshToken}
		return c.tokenGrant(ctx, "refresh_session", "refresh_token", body)
	}

	var u userResponse
	if err := c.do(ctx, "set_session", http.MethodGet, authPath+"/user", nil, nil, accessToken, &u); err != nil {
		return nil, err
	}
	pair := provider.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt}
	user := u.toUser()
	c.session, c.user = &pair, &user
	return &provider.AuthResponse{Tokens: pair, User: user}, nil
}

func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*provider.AuthResponse, error) {
	body := map[string]string{"auth_code": code, "code_verifier": codeVerifier}
	return c.tokenGrant(ctx, "exchange_code_for_session", "pkce", body)
}

func (c *Client) GetUser(ctx context.Context) (*provider.User, error) {
	if c.session == nil {
		return nil, provider.ErrNoSession
	}
	var u userResponse
	if err := c.do(ctx, "get_user", http.MethodGet, authPath+"/user", nil, nil, c.session.AccessToken, &u); err != nil {
		return nil, err
	}
	user := u.toUser()
	c.user = &user
	return &user, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string, opts provider.ResetOptions) error {
	query := url.Values{}
	if opts.RedirectTo != "" {
		query.Set("redirect_to", opts.RedirectTo)
	}
	body := map[string]string{"email": email}
	if opts.CodeChallenge != "" {
		body["code_challenge"] = opts.CodeChallenge
		body["code_challenge_method"] = opts.CodeChallengeMethod
	}
	return c.do(ctx, "reset_password_for_email", http.MethodPost, authPath+"/recover", query, body, "", nil)
}

func (c *Client) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	if c.session == nil {
		return nil, provider.ErrNoSession
	}
	var u userResponse
	if err := c.do(ctx, "update_user", http.MethodPut, authPath+"/user", nil, attrs, c.session.AccessToken, &u); err != nil {
		return nil, err
	}
	user := u.toUser()
	c.user = &user
	return &user, nil
}

// SignOut revokes the session at the authority and always forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	access := c.session.AccessToken
	c.session, c.user = nil, nil
	return c.do(ctx, "sign_out", http.MethodPost, authPath+"/logout", url.Values{"scope": {"local"}}, nil, access, nil)
}

// FetchProfile reads the caller's profile row. A missing row is not an error.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*provider.Profile, error) {
	bearer := ""
	if c.session != nil {
		bearer = c.session.AccessToken
	}
	query := url.Values{"id": {"eq." + userID}, "select": {"*"}}
	var rows []provider.Profile
	if err := c.do(ctx, "fetch_profile", http.MethodGet, restPath+"/"+c.profileTable, query, nil, bearer, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) tokenGrant(ctx context.Context, op, grant string, body any) (*provider.AuthResponse, error) {
	var tr tokenResponse
	query := url.Values{"grant_type": {grant}}
	if err := c.do(ctx, op, http.MethodPost, authPath+"/token", query, body, "", &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, &provider.Error{Op: op, Code: "incomplete_session", Message: "authority returned no session"}
	}

	pair := provider.TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.expiresAt(tr),
	}
	user := tr.User.toUser()
	c.session, c.user = &pair, &user
	return &provider.AuthResponse{Tokens: pair, User: user}, nil
}

func (c *Client) expiresAt(tr tokenResponse) time.Time {
	if tr.ExpiresAt > 0 {
		return time.Unix(tr.ExpiresAt, 0)
	}
	if exp, err := tokenExpiry(tr.AccessToken); err == nil {
		return exp
	}
	return c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, bearer string, out any) (err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(op, time.Since(start), err) }()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.ParseError(op, resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature. The authority stays
// the verifier; the claim only decides between the user and refresh round trips.
func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
