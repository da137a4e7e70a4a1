// Package tokenendpoint exchanges authorization codes with a plain OAuth2 token endpoint.
// It is the fallback for handles that do not implement provider.CodeExchanger.
package tokenendpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/ops-portal/provider"
	"golang.org/x/oauth2"
)

var ErrNotConfigured = errors.New("token endpoint not configured")

// Exchanger performs the authorization_code grant.
type Exchanger struct {
	config     oauth2.Config
	apiKey     string
	httpClient *http.Client
}

// New builds an Exchanger for tokenURL. apiKey, when set, is sent as the apikey header
// some gateways in front of the authority require.
func New(tokenURL, clientID, redirectURL, apiKey string, httpClient *http.Client) *Exchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Exchanger{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Exchange trades code (and the PKCE verifier, when one was issued) for a token pair.
func (e *Exchanger) Exchange(ctx context.Context, code, codeVerifier string) (provider.TokenPair, error) {
	if e == nil || e.config.Endpoint.TokenURL == "" {
		return provider.TokenPair{}, ErrNotConfigured
	}

	hc := e.httpClient
	if e.apiKey != "" {
		hc = &http.Client{
			Timeout:   e.httpClient.Timeout,
			Transport: apiKeyTransport{key: e.apiKey, next: e.httpClient.Transport},
		}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := e.config.Exchange(ctx, code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			pe := &provider.Error{Op: "token_endpoint_exchange", Code: re.ErrorCode, Message: re.ErrorDescription}
			if re.Response != nil {
				pe.Status = re.Response.StatusCode
			}
			if pe.Code == "" {
				parsed := provider.ParseError(pe.Op, pe.Status, re.Body)
				pe.Code, pe.Message = parsed.Code, parsed.Message
			}
			return provider.TokenPair{}, pe
		}
		return provider.TokenPair{}, fmt.Errorf("token_endpoint_exchange: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return provider.TokenPair{}, &provider.Error{Op: "token_endpoint_exchange", Code: "incomplete_session", Message: "token endpoint returned no refresh token"}
	}

	return provider.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	r = r.Clone(r.Context())
	r.Header.Set("apikey", t.key)
	return next.RoundTrip(r)
}
