package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/ops-portal/credentials"
	"github.com/rs/zerolog/log"
)

// State is what a rerun renders.
type State string

const (
	StateLoading         State = "loading"
	StateError           State = "error"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Decision is the gate's verdict for one rerun. It is never persisted.
type Decision struct {
	State   State
	Kind    Kind
	Message string
	Err     *Error
	Session *Session
	// CleanURL is the rerun URL with every handshake parameter removed.
	CleanURL string
	// Redirect asks for a fresh rerun at CleanURL before anything is rendered.
	Redirect bool
}

// Gate decides every rerun, in order: redirect error, pending relay, establishment,
// rehydration.
type Gate struct {
	settings
	establisher *Establisher
	rehydrator  *Rehydrator
}

func NewGate(establisher *Establisher, rehydrator *Rehydrator, opts ...Option) (*Gate, error) {
	if establisher == nil {
		return nil, errors.New("[NewGate] establisher is required")
	}
	if rehydrator == nil {
		return nil, errors.New("[NewGate] rehydrator is required")
	}
	return &Gate{settings: newSettings(opts), establisher: establisher, rehydrator: rehydrator}, nil
}

// Evaluate runs once per rerun. It never fails: every failure becomes an error decision.
func (g *Gate) Evaluate(ctx context.Context, rr *Rerun) Decision {
	d := g.evaluate(ctx, rr)
	g.recorder.IncrementGateDecision(string(d.State))
	return d
}

func (g *Gate) evaluate(ctx context.Context, rr *Rerun) Decision {
	bundle := credentials.Extract(rr.Params)
	clean := rr.CleanURL()

	if bundle.Kind == credentials.KindError {
		ae := ClassifyRedirect(bundle)
		log.Warn().Str("scope", rr.Scope.ID()).Object("bundle", bundle).
			Str("kind", string(ae.Kind)).Str("description", bundle.ErrorDescription).
			Msg("authority redirect carried an error")
		g.recorder.IncrementAuthError(string(ae.Kind))
		return errorDecision(ae, clean)
	}

	if credentials.IsPending(rr.Params) && bundle.Kind == credentials.KindNone {
		return Decision{State: StateLoading, CleanURL: clean}
	}

	if bundle.HasCredentials() {
		d := Decision{State: StateUnauthenticated, CleanURL: clean}
		if current, err := LoadSession(ctx, rr.Scope); err != nil || current != nil {
			// A stored session is verified first. Credentials only establish when none
			// survives rehydration.
			d = g.rehydrate(ctx, rr, clean)
		}
		if d.State == StateUnauthenticated {
			sess, err := g.establisher.Establish(ctx, rr, bundle)
			if err != nil {
				return errorDecision(Classify(err), clean)
			}
			d = Decision{State: StateAuthenticated, Session: sess, CleanURL: clean}
		}
		if d.State != StateError {
			d.Redirect = true
		}
		return d
	}

	return g.rehydrate(ctx, rr, clean)
}

func (g *Gate) rehydrate(ctx context.Context, rr *Rerun, clean string) Decision {
	rh, err := g.rehydrator.Client(ctx, rr)
	if err != nil {
		return errorDecision(Classify(err), clean)
	}
	if rh.Session == nil {
		return Decision{State: StateUnauthenticated, CleanURL: clean}
	}
	return Decision{State: StateAuthenticated, Session: rh.Session, CleanURL: clean}
}

func errorDecision(ae *Error, clean string) Decision {
	return Decision{State: StateError, Kind: ae.Kind, Message: ae.Message, Err: ae, CleanURL: clean}
}
