package auth

import (
	"context"

	"github.com/jrsteele09/ops-portal/credentials"
	"github.com/jrsteele09/ops-portal/provider"
	"github.com/jrsteele09/ops-portal/sessionstore"
	"github.com/rs/zerolog/log"
)

// Establisher turns credential material into a verified, persisted Session.
type Establisher struct {
	settings
}

func NewEstablisher(opts ...Option) *Establisher {
	return &Establisher{settings: newSettings(opts)}
}

// Establish performs the authority calls a bundle needs, verifies the resulting identity
// and only then writes the session to the rerun's scope. On any failure the scope is
// left exactly as it was and the error is an *Error.
func (e *Establisher) Establish(ctx context.Context, rr *Rerun, b credentials.Bundle) (*Session, error) {
	b = b.AsRecovery()
	logger := log.With().Str("scope", rr.Scope.ID()).Object("bundle", b).Logger()

	if !b.HasCredentials() || b.Validate() != nil {
		return nil, e.fail(newError(KindUnknown, ErrNoCredentials))
	}
	if rr.Handle == nil {
		return nil, e.fail(newError(KindConfiguration, ErrNoHandle))
	}

	purpose := PurposeNormal
	pair := provider.TokenPair{AccessToken: b.AccessToken, RefreshToken: b.RefreshToken}

	var pending pendingCode
	var hasPending bool
	if b.Code != "" {
		pending, hasPending = loadPendingCode(ctx, rr.Scope)
		if hasPending && pending.FlowType == credentials.FlowRecovery {
			purpose = PurposeRecovery
		}
		exchanged, err := e.exchange(ctx, rr.Handle, b.Code, pending.Verifier)
		if err != nil {
			ae := Classify(err)
			logger.Err(err).Str("kind", string(ae.Kind)).Msg("code exchange failed")
			return nil, e.fail(ae)
		}
		pair = exchanged
	}
	if b.Kind == credentials.KindRecovery {
		purpose = PurposeRecovery
	}

	sess, err := e.verify(ctx, rr.Handle, pair)
	if err != nil {
		ae := Classify(err)
		logger.Err(err).Str("kind", string(ae.Kind)).Msg("session verification failed")
		return nil, e.fail(ae)
	}
	sess.Purpose = purpose
	sess.Profile = e.profile(ctx, rr.Handle, sess.UserID)

	if err := saveSession(ctx, rr.Scope, sess); err != nil {
		ae := Classify(err)
		logger.Err(err).Msg("failed to persist session")
		return nil, e.fail(ae)
	}
	if hasPending {
		if err := rr.Scope.Delete(ctx, sessionstore.KeyCodeVerifier); err != nil {
			logger.Warn().Err(err).Msg("failed to clear code verifier")
		}
	}

	e.recorder.IncrementSessionEstablished(string(b.Kind))
	logger.Info().Str("user_id", sess.UserID).Str("purpose", string(sess.Purpose)).Msg("session established")
	return sess, nil
}

// exchange trades a code for tokens, preferring the handle's own capability.
func (e *Establisher) exchange(ctx context.Context, handle provider.Client, code, verifier string) (provider.TokenPair, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if ce, ok := handle.(provider.CodeExchanger); ok {
		resp, err := ce.ExchangeCodeForSession(ctx, code, verifier)
		if err != nil {
			return provider.TokenPair{}, err
		}
		return resp.Tokens, nil
	}
	if e.fallback != nil {
		return e.fallback.Exchange(ctx, code, verifier)
	}
	return provider.TokenPair{}, ErrNoCodeExchange
}

// verify installs pair on handle through the discrete session-set call, then asks the
// authority who the session belongs to.
func (e *Establisher) verify(ctx context.Context, handle provider.Client, pair provider.TokenPair) (*Session, error) {
	if !pair.Valid() {
		return nil, provider.ErrMissingTokens
	}

	var setUser provider.User
	if cur := handle.CurrentSession(); cur == nil || !cur.Matches(pair) {
		setCtx, cancel := e.bounded(ctx)
		resp, err := handle.SetSession(setCtx, pair.AccessToken, pair.RefreshToken)
		cancel()
		if err != nil {
			return nil, err
		}
		setUser = resp.User
	}

	getCtx, cancel := e.bounded(ctx)
	user, err := handle.GetUser(getCtx)
	cancel()
	if err != nil {
		ae := Classify(err)
		if ae.Kind != KindNetwork && ae.Kind != KindConfiguration {
			ae = newError(KindVerificationFailed, err)
		}
		return nil, ae
	}
	if user == nil || user.ID == "" || (setUser.ID != "" && setUser.ID != user.ID) {
		return nil, newError(KindVerificationFailed, ErrUserMismatch)
	}

	tokens := pair
	if cur := handle.CurrentSession(); cur != nil && cur.Valid() {
		tokens = *cur
	}
	return &Session{
		UserID:        user.ID,
		Email:         user.Email,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		ExpiresAt:     tokens.ExpiresAt,
		Purpose:       PurposeNormal,
		EstablishedAt: e.nowTime(),
	}, nil
}

// profile looks up the profile row. A missing profile is logged, never a failure.
func (e *Establisher) profile(ctx context.Context, handle provider.Client, userID string) *provider.Profile {
	pf, ok := handle.(provider.ProfileFetcher)
	if !ok {
		return nil
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	p, err := pf.FetchProfile(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("profile lookup failed")
		return nil
	}
	if p == nil {
		log.Warn().Str("user_id", userID).Msg("no profile for user")
	}
	return p
}

func (e *Establisher) fail(ae *Error) *Error {
	e.recorder.IncrementAuthError(string(ae.Kind))
	return ae
}
