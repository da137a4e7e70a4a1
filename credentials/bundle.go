// Package credentials turns the parameters of one page load into a canonical
// credential bundle. Nothing in here performs I/O.
package credentials

import (
	"errors"
	"net/url"

	"github.com/rs/zerolog"
)

// Kind identifies which credential material a page load carries.
type Kind string

const (
	KindNone     Kind = "none"
	KindImplicit Kind = "implicit"
	KindCode     Kind = "code"
	KindRecovery Kind = "recovery"
	KindError    Kind = "error"
)

// Flow types delivered by the identity authority in the `type` parameter.
const (
	FlowMagicLink = "magiclink"
	FlowRecovery  = "recovery"
	FlowInvite    = "invite"
	FlowSignup    = "signup"
)

// ErrorCodeUnknown is the ErrorCode of an error redirect that only carries a description.
const ErrorCodeUnknown = "unknown"

// Redirect parameter names, byte-for-byte what the identity authority produces.
const (
	ParamAccessToken      = "access_token"
	ParamRefreshToken     = "refresh_token"
	ParamCode             = "code"
	ParamType             = "type"
	ParamError            = "error"
	ParamErrorCode        = "error_code"
	ParamErrorDescription = "error_description"
	ParamAuthPending      = "auth_pending"

	// Extra parameters the authority appends to implicit redirects.
	ParamExpiresIn = "expires_in"
	ParamExpiresAt = "expires_at"
	ParamTokenType = "token_type"
)

// AuthParams are every query parameter that belongs to the redirect handshake.
var AuthParams = []string{
	ParamAuthPending,
	ParamAccessToken,
	ParamRefreshToken,
	ParamCode,
	ParamType,
	ParamError,
	ParamErrorCode,
	ParamErrorDescription,
	ParamExpiresIn,
	ParamExpiresAt,
	ParamTokenType,
}

var (
	ErrMissingTokens = errors.New("implicit bundle requires both access and refresh tokens")
	ErrMissingCode   = errors.New("code bundle requires a code")
	ErrMixedCode     = errors.New("code bundle must not carry tokens")
	ErrMissingError  = errors.New("error bundle requires an error code")
)

// Bundle is the credential material of a single rerun. It is derived fresh from the
// request parameters every time and never persisted.
type Bundle struct {
	Kind             Kind
	AccessToken      string
	RefreshToken     string
	Code             string
	FlowType         string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// None is the empty bundle.
func None() Bundle {
	return Bundle{Kind: KindNone}
}

// HasCredentials reports whether the bundle carries something the establisher can use.
func (b Bundle) HasCredentials() bool {
	switch b.Kind {
	case KindImplicit, KindCode, KindRecovery:
		return true
	}
	return false
}

// IsRecoveryFlow reports whether the authority labelled this redirect as a password recovery.
func (b Bundle) IsRecoveryFlow() bool {
	return b.FlowType == FlowRecovery
}

// AsRecovery promotes a recovery-labelled implicit or code bundle to KindRecovery.
// Any other bundle is returned unchanged.
func (b Bundle) AsRecovery() Bundle {
	if !b.IsRecoveryFlow() {
		return b
	}
	if b.Kind == KindImplicit || b.Kind == KindCode {
		b.Kind = KindRecovery
	}
	return b
}

// Validate checks the per-kind field invariants.
func (b Bundle) Validate() error {
	switch b.Kind {
	case KindImplicit:
		if b.AccessToken == "" || b.RefreshToken == "" {
			return ErrMissingTokens
		}
	case KindCode:
		if b.Code == "" {
			return ErrMissingCode
		}
		if b.AccessToken != "" || b.RefreshToken != "" {
			return ErrMixedCode
		}
	case KindRecovery:
		if b.Code == "" && (b.AccessToken == "" || b.RefreshToken == "") {
			return ErrMissingTokens
		}
	case KindError:
		if b.ErrorCode == "" {
			return ErrMissingError
		}
	}
	return nil
}

// MarshalZerologObject logs presence flags only. Token and code values never reach the log.
func (b Bundle) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", string(b.Kind)).
		Bool("has_access_token", b.AccessToken != "").
		Bool("has_refresh_token", b.RefreshToken != "").
		Bool("has_code", b.Code != "").
		Str("flow_type", b.FlowType)
	if b.Kind == KindError {
		e.Str("error_code", b.ErrorCode)
	}
}

// StripAuthParams returns a copy of u without any handshake parameter or fragment.
func StripAuthParams(u url.URL) string {
	q := u.Query()
	for _, p := range AuthParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = ""
	u.Host = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
