package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/ops-portal/provider"
	"github.com/rs/zerolog/log"
)

// Rehydrated is a handle ready for the rest of the rerun, and the session it carries.
// Session is nil for an unauthenticated handle.
type Rehydrated struct {
	Handle  provider.Client
	Session *Session
}

// Rehydrator rebuilds an authenticated handle from the scope at the start of every rerun.
// It is the only place stale sessions are purged.
type Rehydrator struct {
	settings
	factory provider.Factory
}

func NewRehydrator(factory provider.Factory, opts ...Option) (*Rehydrator, error) {
	if factory == nil {
		return nil, errors.New("[NewRehydrator] provider factory is required")
	}
	return &Rehydrator{settings: newSettings(opts), factory: factory}, nil
}

// Fresh returns a new handle with no session.
func (r *Rehydrator) Fresh() provider.Client {
	return r.factory()
}

// Client returns the rerun's handle carrying the stored session. When the handle already
// holds the stored tokens it is returned untouched. Otherwise the tokens are re-applied;
// rotated tokens are written back. A session the authority rejects is purged and an
// unauthenticated handle returned without error. A network failure keeps the stored
// session and returns a retryable *Error.
//
// rr.Handle is updated to the returned handle.
func (r *Rehydrator) Client(ctx context.Context, rr *Rerun) (Rehydrated, error) {
	if rr.Handle == nil {
		rr.Handle = r.factory()
	}
	logger := log.With().Str("scope", rr.Scope.ID()).Logger()

	sess, err := LoadSession(ctx, rr.Scope)
	if err != nil {
		if corrupt(err) {
			logger.Warn().Err(err).Msg("discarding unreadable session")
			r.purge(ctx, rr)
			return Rehydrated{Handle: rr.Handle}, nil
		}
		ae := Classify(err)
		logger.Err(err).Msg("session store read failed")
		r.recorder.IncrementAuthError(string(ae.Kind))
		return Rehydrated{Handle: r.unauthenticated(rr)}, ae
	}
	if sess == nil {
		return Rehydrated{Handle: r.unauthenticated(rr)}, nil
	}

	stored := sess.Tokens()
	if cur := rr.Handle.CurrentSession(); cur != nil && cur.Matches(stored) {
		return Rehydrated{Handle: rr.Handle, Session: sess}, nil
	}

	applyCtx, cancel := r.bounded(ctx)
	resp, err := provider.ApplySession(applyCtx, rr.Handle, stored)
	cancel()
	if err == nil && resp.User.ID != "" && resp.User.ID != sess.UserID {
		err = ErrUserMismatch
	}
	if err != nil {
		ae := Classify(err)
		if ae.Retryable() || ae.Kind == KindConfiguration {
			logger.Err(err).Str("kind", string(ae.Kind)).Msg("rehydration failed, keeping session")
			r.recorder.IncrementAuthError(string(ae.Kind))
			return Rehydrated{Handle: r.unauthenticated(rr)}, ae
		}
		logger.Info().Err(err).Str("user_id", sess.UserID).Msg("stale session purged")
		r.purge(ctx, rr)
		return Rehydrated{Handle: rr.Handle}, nil
	}

	rotated := resp.Tokens
	if cur := rr.Handle.CurrentSession(); cur != nil && cur.Valid() {
		rotated = *cur
	}
	if rotated.Valid() && !rotated.Matches(stored) {
		sess.AccessToken = rotated.AccessToken
		sess.RefreshToken = rotated.RefreshToken
		sess.ExpiresAt = rotated.ExpiresAt
		if err := saveSession(ctx, rr.Scope, sess); err != nil {
			logger.Err(err).Msg("failed to write back rotated tokens")
		} else {
			logger.Debug().Msg("rotated tokens written back")
		}
	}
	return Rehydrated{Handle: rr.Handle, Session: sess}, nil
}

// unauthenticated makes sure the rerun does not carry a session the store no longer has.
func (r *Rehydrator) unauthenticated(rr *Rerun) provider.Client {
	if rr.Handle.CurrentSession() != nil {
		rr.Handle = r.factory()
	}
	return rr.Handle
}

func (r *Rehydrator) purge(ctx context.Context, rr *Rerun) {
	if err := purgeSession(ctx, rr.Scope); err != nil {
		log.Err(err).Str("scope", rr.Scope.ID()).Msg("failed to purge session")
	}
	r.recorder.IncrementSessionPurged()
	rr.Handle = r.factory()
}
