package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jrsteele09/ops-portal/credentials"
	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const codeChallengeMethod = "s256"

// Accounts holds the user-initiated operations: password login, logout, requesting a
// reset email and finishing a recovery with a new password.
type Accounts struct {
	settings
	establisher *Establisher
	rehydrator  *Rehydrator
}

func NewAccounts(establisher *Establisher, rehydrator *Rehydrator, opts ...Option) (*Accounts, error) {
	if establisher == nil {
		return nil, errors.New("[NewAccounts] establisher is required")
	}
	if rehydrator == nil {
		return nil, errors.New("[NewAccounts] rehydrator is required")
	}
	return &Accounts{settings: newSettings(opts), establisher: establisher, rehydrator: rehydrator}, nil
}

// Login signs in with email and password and persists the verified session.
func (a *Accounts) Login(ctx context.Context, rr *Rerun, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.ErrMissingCredentials
	}
	if rr.Handle == nil {
		rr.Handle = a.rehydrator.Fresh()
	}

	signCtx, cancel := a.bounded(ctx)
	resp, err := rr.Handle.SignInWithPassword(signCtx, email, password)
	cancel()
	if err != nil {
		ae := Classify(err)
		log.Info().Err(err).Str("scope", rr.Scope.ID()).Str("kind", string(ae.Kind)).Msg("password sign-in rejected")
		return nil, a.establisher.fail(ae)
	}

	sess, err := a.establisher.verify(ctx, rr.Handle, resp.Tokens)
	if err != nil {
		return nil, a.establisher.fail(Classify(err))
	}
	sess.Profile = a.establisher.profile(ctx, rr.Handle, sess.UserID)
	if err := saveSession(ctx, rr.Scope, sess); err != nil {
		log.Err(err).Str("scope", rr.Scope.ID()).Msg("failed to persist session")
		return nil, a.establisher.fail(Classify(err))
	}

	a.recorder.IncrementSessionEstablished("password")
	log.Info().Str("scope", rr.Scope.ID()).Str("user_id", sess.UserID).Msg("signed in with password")
	return sess, nil
}

// Logout revokes the session at the authority on a best-effort basis and always clears
// the scope.
func (a *Accounts) Logout(ctx context.Context, rr *Rerun) error {
	rh, err := a.rehydrator.Client(ctx, rr)
	if err == nil && rh.Session != nil {
		signCtx, cancel := a.bounded(ctx)
		if err := rh.Handle.SignOut(signCtx); err != nil {
			log.Warn().Err(err).Str("scope", rr.Scope.ID()).Msg("authority sign-out failed")
		}
		cancel()
	}
	rr.Handle = a.rehydrator.Fresh()

	if err := rr.Scope.Clear(ctx); err != nil {
		return apperrors.Wrapf(err, "logout scope %s", rr.Scope.ID())
	}
	log.Info().Str("scope", rr.Scope.ID()).Msg("logged out")
	return nil
}

// RequestPasswordReset asks the authority to email a recovery link. The link returns
// to the site with a code bound to a PKCE verifier kept in this scope.
func (a *Accounts) RequestPasswordReset(ctx context.Context, rr *Rerun, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ErrMissingEmail
	}
	if rr.Handle == nil {
		rr.Handle = a.rehydrator.Fresh()
	}

	verifier := oauth2.GenerateVerifier()
	pc := pendingCode{Verifier: verifier, FlowType: credentials.FlowRecovery}
	if err := rr.Scope.Set(ctx, sessionstore.KeyCodeVerifier, pc); err != nil {
		return Classify(apperrors.Wrapf(err, "store code verifier"))
	}

	resetCtx, cancel := a.bounded(ctx)
	defer cancel()
	err := rr.Handle.ResetPasswordForEmail(resetCtx, email, provider.ResetOptions{
		RedirectTo:          a.siteURL,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: codeChallengeMethod,
	})
	if err != nil {
		ae := Classify(err)
		log.Err(err).Str("scope", rr.Scope.ID()).Str("kind", string(ae.Kind)).Msg("password reset request failed")
		return a.establisher.fail(ae)
	}
	log.Info().Str("scope", rr.Scope.ID()).Msg("password reset email requested")
	return nil
}

// CompleteRecovery sets a new password on a recovery-marked session and turns it into
// a normal one.
func (a *Accounts) CompleteRecovery(ctx context.Context, rr *Rerun, password, confirm string) (*Session, error) {
	rh, err := a.rehydrator.Client(ctx, rr)
	if err != nil {
		return nil, err
	}
	if rh.Session == nil || !rh.Session.IsRecovery() {
		return nil, apperrors.ErrRecoveryRequired
	}
	if len(password) < a.minPasswordLength {
		return nil, apperrors.ErrPasswordTooShort
	}
	if password != confirm {
		return nil, apperrors.ErrPasswordMismatch
	}

	updateCtx, cancel := a.bounded(ctx)
	_, err = rh.Handle.UpdateUser(updateCtx, provider.UserAttributes{Password: password})
	cancel()
	if err != nil {
		ae := Classify(err)
		if pe, ok := provider.AsError(err); ok && pe.Code == "same_password" {
			ae = &Error{Kind: KindInvalidCredentials, Message: "Choose a password different from your current one.", Cause: err}
		}
		log.Info().Err(err).Str("scope", rr.Scope.ID()).Str("kind", string(ae.Kind)).Msg("password update rejected")
		return nil, a.establisher.fail(ae)
	}

	sess := rh.Session
	sess.Purpose = PurposeNormal
	if cur := rh.Handle.CurrentSession(); cur != nil && cur.Valid() {
		sess.AccessToken, sess.RefreshToken, sess.ExpiresAt = cur.AccessToken, cur.RefreshToken, cur.ExpiresAt
	}
	if err := saveSession(ctx, rr.Scope, sess); err != nil {
		return nil, Classify(err)
	}
	log.Info().Str("scope", rr.Scope.ID()).Str("user_id", sess.UserID).Msg("password updated, recovery complete")
	return sess, nil
}
