// Package sessionstore holds the only state that survives from one rerun to the next.
// Each browser session owns one Scope, addressed by the id in its scope cookie.
package sessionstore

import (
	"context"
	"encoding/json"

	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
)

// Well-known keys.
const (
	KeyUser         = "auth_user"
	KeySession      = "auth_session"
	KeyProfileCache = "profile_cache"
	// KeyCodeVerifier holds the PKCE verifier of a recovery email the portal requested.
	KeyCodeVerifier = "auth_code_verifier"
)

// AuthKeys are the keys cleared when a session is purged or logged out.
var AuthKeys = []string{KeyUser, KeySession, KeyProfileCache}

// Store hands out scopes.
type Store interface {
	Scope(id string) Scope
}

// Scope is the key/value map of one browser session. Values are JSON encoded and
// writes are last-writer-wins.
type Scope interface {
	ID() string
	// Get decodes the value under key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	// Update writes every value in set and deletes del as one change: a reader sees all
	// of it or none of it.
	Update(ctx context.Context, set map[string]any, del ...string) error
	// Clear drops every key of the scope.
	Clear(ctx context.Context) error
}

func encode(key string, value any) ([]byte, error) {
	if key == "" {
		return nil, apperrors.ErrInvalidKey
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, apperrors.Wrapf(err, "encode %s", key)
	}
	return b, nil
}

// encodeAll encodes every value of set before any of them is written.
func encodeAll(set map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(set))
	for key, value := range set {
		raw, err := encode(key, value)
		if err != nil {
			return nil, err
		}
		out[key] = raw
	}
	return out, nil
}

func decode(key string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.Wrapf(apperrors.ErrCorruptValue, "decode %s: %v", key, err)
	}
	return nil
}
