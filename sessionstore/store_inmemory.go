package sessionstore

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
)

type memoryScope struct {
	values  map[string][]byte
	touched time.Time
}

// InMemoryStore is a process-local Store. Scopes idle for longer than the TTL are
// forgotten; a zero TTL keeps them for the life of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]*memoryScope // scopeID -> scope
	ttl    time.Duration
	now    func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory session store
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		scopes: make(map[string]*memoryScope),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the store's clock. Used by tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Scope(id string) Scope {
	return &memoryHandle{store: s, id: id}
}

// Len reports how many live scopes the store holds.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sc := range s.scopes {
		if !s.expired(sc) {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) expired(sc *memoryScope) bool {
	return s.ttl > 0 && s.now().Sub(sc.touched) > s.ttl
}

// sweepLocked drops idle scopes. It runs whenever a new scope is created.
func (s *InMemoryStore) sweepLocked() {
	for id, sc := range s.scopes {
		if s.expired(sc) {
			delete(s.scopes, id)
		}
	}
}

type memoryHandle struct {
	store *InMemoryStore
	id    string
}

func (h *memoryHandle) ID() string {
	return h.id
}

func (h *memoryHandle) Get(_ context.Context, key string, dst any) (bool, error) {
	if h.id == "" {
		return false, apperrors.ErrInvalidScope
	}
	if key == "" {
		return false, apperrors.ErrInvalidKey
	}

	h.store.mu.Lock()
	sc, ok := h.store.scopes[h.id]
	if ok && h.store.expired(sc) {
		delete(h.store.scopes, h.id)
		ok = false
	}
	var raw []byte
	if ok {
		sc.touched = h.store.now()
		raw, ok = sc.values[key]
	}
	h.store.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := decode(key, raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (h *memoryHandle) Set(ctx context.Context, key string, value any) error {
	return h.Update(ctx, map[string]any{key: value})
}

func (h *memoryHandle) Update(_ context.Context, set map[string]any, del ...string) error {
	if h.id == "" {
		return apperrors.ErrInvalidScope
	}
	encoded, err := encodeAll(set)
	if err != nil {
		return err
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	sc, ok := h.store.scopes[h.id]
	if !ok || h.store.expired(sc) {
		if len(encoded) == 0 {
			delete(h.store.scopes, h.id)
			return nil
		}
		h.store.sweepLocked()
		sc = &memoryScope{values: make(map[string][]byte)}
		h.store.scopes[h.id] = sc
	}
	for _, key := range del {
		delete(sc.values, key)
	}
	for key, raw := range encoded {
		sc.values[key] = raw
	}
	if len(sc.values) == 0 {
		delete(h.store.scopes, h.id)
		return nil
	}
	sc.touched = h.store.now()
	return nil
}

func (h *memoryHandle) Delete(_ context.Context, keys ...string) error {
	if h.id == "" {
		return apperrors.ErrInvalidScope
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	sc, ok := h.store.scopes[h.id]
	if !ok {
		return nil // Already doesn't exist, no error
	}
	for _, key := range keys {
		delete(sc.values, key)
	}

	// Clean up empty scope map
	if len(sc.values) == 0 {
		delete(h.store.scopes, h.id)
	}
	return nil
}

func (h *memoryHandle) Clear(_ context.Context) error {
	if h.id == "" {
		return apperrors.ErrInvalidScope
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	delete(h.store.scopes, h.id)
	return nil
}
