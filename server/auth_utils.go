package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jrsteele09/ops-portal/auth"
	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/jrsteele09/ops-portal/sessionstore"
)

const (
	// scopeCookieName carries the id of the browser session's store scope
	scopeCookieName = "ops_portal_scope"

	// Query parameters the account handlers redirect with. They must not collide with
	// the authority's error parameters.
	paramNotice    = "notice"
	paramFormError = "form_error"
)

// Notice codes
const (
	noticeSignedOut       = "signed_out"
	noticeResetSent       = "reset_sent"
	noticePasswordUpdated = "password_updated"
)

var notices = map[string]string{
	noticeSignedOut:       "You have been signed out.",
	noticeResetSent:       "If that address belongs to an account, a reset link is on its way.",
	noticePasswordUpdated: "Your password has been updated.",
}

// Form error codes, besides the auth.Kind values
const (
	formMissingCredentials = "missing_credentials"
	formMissingEmail       = "missing_email"
	formPasswordTooShort   = "password_too_short"
	formPasswordMismatch   = "password_mismatch"
	formRecoveryRequired   = "recovery_required"
)

// scopeFor returns the request's store scope, issuing a new scope cookie when the
// browser has none or an unparseable one.
func (s *Server) scopeFor(w http.ResponseWriter, r *http.Request) sessionstore.Scope {
	if cookie, err := r.Cookie(scopeCookieName); err == nil {
		if id, err := uuid.Parse(cookie.Value); err == nil {
			return s.store.Scope(id.String())
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     scopeCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure() || getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return s.store.Scope(id)
}

// formErrorCode maps a handler failure to the code carried in the redirect.
func formErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrMissingCredentials):
		return formMissingCredentials
	case errors.Is(err, apperrors.ErrMissingEmail):
		return formMissingEmail
	case errors.Is(err, apperrors.ErrPasswordTooShort):
		return formPasswordTooShort
	case errors.Is(err, apperrors.ErrPasswordMismatch):
		return formPasswordMismatch
	case errors.Is(err, apperrors.ErrRecoveryRequired):
		return formRecoveryRequired
	}
	return string(auth.Classify(err).Kind)
}

// formErrorMessage is the text shown for a form error code. Unknown codes show nothing.
func (s *Server) formErrorMessage(code string) string {
	switch code {
	case "":
		return ""
	case formMissingCredentials:
		return "Enter your email address and password."
	case formMissingEmail:
		return "Enter the email address you sign in with."
	case formPasswordTooShort:
		return fmt.Sprintf("Passwords must be at least %d characters long.", s.config.GetMinPasswordLength())
	case formPasswordMismatch:
		return "The two passwords do not match."
	case formRecoveryRequired:
		return "Open the reset link from your email before choosing a new password."
	}
	switch kind := auth.Kind(code); kind {
	case auth.KindExpiredOrUsedLink, auth.KindInvalidCredentials, auth.KindNetwork,
		auth.KindConfiguration, auth.KindVerificationFailed, auth.KindUnknown:
		return kind.Message()
	}
	return ""
}

// redirectSuccess sends a form post back to a fresh rerun at path.
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	redirectSuccess(w, r, path+"?"+url.Values{paramNotice: {notice}}.Encode())
}

// redirectWithError carries err back to path as a form error code.
func redirectWithError(w http.ResponseWriter, r *http.Request, path string, err error) {
	redirectSuccess(w, r, path+"?"+url.Values{paramFormError: {formErrorCode(err)}}.Encode())
}
