package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/ops-portal/auth"
	"github.com/rs/zerolog/log"
)

// formRerun builds the rerun a form submission acts on. Form posts carry no handshake
// parameters, only the scope.
func (s *Server) formRerun(w http.ResponseWriter, r *http.Request) *auth.Rerun {
	return auth.NewRerun(&url.URL{Path: RouteIndex}, s.scopeFor(w, r), s.rehydrator.Fresh())
}

// LoginHandler processes the password sign-in form (POST /auth/login)
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		rr := s.formRerun(w, r)
		if _, err := s.accounts.Login(r.Context(), rr, r.FormValue("email"), r.FormValue("password")); err != nil {
			redirectWithError(w, r, RouteIndex, err)
			return
		}
		redirectSuccess(w, r, RouteIndex)
	}
}

// LogoutHandler ends the session (POST /auth/logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.accounts.Logout(r.Context(), s.formRerun(w, r)); err != nil {
			log.Err(err).Msg("Failed to clear session on logout")
			redirectWithError(w, r, RouteIndex, err)
			return
		}
		redirectWithNotice(w, r, RouteIndex, noticeSignedOut)
	}
}

// ForgotPasswordHandler requests a password-reset email (POST /auth/forgot-password)
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		if err := s.accounts.RequestPasswordReset(r.Context(), s.formRerun(w, r), r.FormValue("email")); err != nil {
			redirectWithError(w, r, RouteIndex, err)
			return
		}
		redirectWithNotice(w, r, RouteIndex, noticeResetSent)
	}
}

// RecoverPasswordHandler sets the new password of a recovery session (POST /auth/recover)
func (s *Server) RecoverPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		rr := s.formRerun(w, r)
		if _, err := s.accounts.CompleteRecovery(r.Context(), rr, r.FormValue("password"), r.FormValue("confirm")); err != nil {
			redirectWithError(w, r, RouteIndex, err)
			return
		}
		redirectWithNotice(w, r, RouteIndex, noticePasswordUpdated)
	}
}
