package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jrsteele09/ops-portal/credentials"
	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/provider/tokenendpoint"
	"github.com/jrsteele09/ops-portal/relay"
)

// Kind is the category a failure is shown to the user as.
type Kind string

const (
	KindExpiredOrUsedLink  Kind = "ExpiredOrUsedLink"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindNetwork            Kind = "NetworkOrProviderUnavailable"
	KindConfiguration      Kind = "ConfigurationError"
	KindVerificationFailed Kind = "VerificationFailed"
	KindUnknown            Kind = "Unknown"
)

var messages = map[Kind]string{
	KindExpiredOrUsedLink:  "This link has expired or has already been used. Request a new link to continue.",
	KindInvalidCredentials: "Those sign-in details were not accepted. Check them and try again, or request a new link.",
	KindNetwork:            "The sign-in service is unavailable right now. Check your connection and try again.",
	KindConfiguration:      "Sign-in is unavailable because the portal is misconfigured. Please contact an administrator.",
	KindVerificationFailed: "Your session could not be verified. Please sign in again.",
	KindUnknown:            "Something went wrong while signing you in. Please try again.",
}

// Message is the canned user-facing text of k.
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[KindUnknown]
}

var (
	ErrNoCodeExchange = errors.New("no code exchange available: handle lacks it and no token endpoint is configured")
	ErrNoHandle       = errors.New("rerun has no authority handle")
	ErrNoCredentials  = errors.New("bundle carries no usable credentials")
	ErrUserMismatch   = errors.New("verified user differs from the session user")
)

// Error is a classified authentication failure. Message is safe to show; Cause is for logs.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether resubmitting unchanged can succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork
}

// Silent reports whether the failure is log-only. A stale session found while
// rehydrating demotes the user without a banner.
func (e *Error) Silent() bool {
	return e.Kind == KindVerificationFailed
}

// UserActionable reports whether the user can fix the failure (new link, new password).
func (e *Error) UserActionable() bool {
	return e.Kind == KindExpiredOrUsedLink || e.Kind == KindInvalidCredentials
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Cause: cause}
}

// Authority error codes by category.
var (
	expiredCodes = map[string]bool{
		"otp_expired":                true,
		"flow_state_expired":         true,
		"refresh_token_already_used": true,
		"refresh_token_not_found":    true,
	}
	invalidCodes = map[string]bool{
		"invalid_credentials":  true,
		"invalid_grant":        true,
		"bad_code_verifier":    true,
		"flow_state_not_found": true,
		"access_denied":        true,
		"email_not_confirmed":  true,
		"validation_failed":    true,
		"weak_password":        true,
		"same_password":        true,
	}
	verificationCodes = map[string]bool{
		"bad_jwt":            true,
		"session_not_found":  true,
		"session_expired":    true,
		"user_not_found":     true,
		"incomplete_session": true,
	}
	networkCodes = map[string]bool{
		"over_request_rate_limit":    true,
		"over_email_send_rate_limit": true,
		"request_timeout":            true,
		"server_error":               true,
		"temporarily_unavailable":    true,
		relay.ErrorRelayTimeout:      true,
	}
	configCodes = map[string]bool{
		"no_api_key":          true,
		"bad_oauth_callback":  true,
		"unauthorized_client": true,
		"invalid_client":      true,
		"unsupported_grant":   true,
	}
)

// Classify maps any failure from an authority call, the store or the transport onto a
// Kind. nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, ErrNoCodeExchange),
		errors.Is(err, ErrNoHandle),
		errors.Is(err, tokenendpoint.ErrNotConfigured),
		errors.Is(err, provider.ErrUnsupported),
		errors.Is(err, apperrors.ErrInvalidConfig):
		return newError(KindConfiguration, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, apperrors.ErrStoreUnavailable):
		return newError(KindNetwork, err)
	case errors.Is(err, ErrUserMismatch),
		errors.Is(err, provider.ErrNoSession),
		errors.Is(err, provider.ErrMissingTokens):
		return newError(KindVerificationFailed, err)
	}

	if pe, ok := provider.AsError(err); ok {
		return newError(classifyAuthority(pe.Status, pe.Code, pe.Message), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(KindNetwork, err)
	}

	return newError(KindUnknown, err)
}

// ClassifyRedirect classifies the error an authority redirect carried.
func ClassifyRedirect(b credentials.Bundle) *Error {
	if b.Kind != credentials.KindError {
		return nil
	}
	cause := &provider.Error{Op: "redirect", Code: b.ErrorCode, Message: b.ErrorDescription}
	kind := classifyAuthority(0, b.ErrorCode, b.ErrorDescription)
	if kind == KindUnknown && b.Error != "" && b.Error != b.ErrorCode {
		kind = classifyAuthority(0, b.Error, b.ErrorDescription)
	}
	return newError(kind, cause)
}

func classifyAuthority(status int, code, message string) Kind {
	code = strings.ToLower(code)
	lower := strings.ToLower(message)

	switch {
	case configCodes[code], strings.Contains(lower, "invalid api key"), strings.Contains(lower, "no api key"):
		return KindConfiguration
	case expiredCodes[code]:
		return KindExpiredOrUsedLink
	case code == "access_denied" && mentionsExpiry(lower):
		return KindExpiredOrUsedLink
	case invalidCodes[code]:
		return KindInvalidCredentials
	case verificationCodes[code]:
		return KindVerificationFailed
	case networkCodes[code], status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return KindNetwork
	case mentionsExpiry(lower):
		return KindExpiredOrUsedLink
	case status == http.StatusUnauthorized:
		return KindConfiguration
	}
	return KindUnknown
}

func mentionsExpiry(message string) bool {
	return strings.Contains(message, "expired") || strings.Contains(message, "already been used") || strings.Contains(message, "already used")
}
