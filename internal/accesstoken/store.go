package accesstoken

import (
	"context"
	"sync"
	"time"

	"payswitch/internal/envelope"
)

// Store persists tokens with a TTL. Get returns nil when the key is absent
// or expired.
type Store interface {
	Get(ctx context.Context, key string) (*envelope.AccessToken, error)
	Set(ctx context.Context, key string, token envelope.AccessToken, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	token     envelope.AccessToken
	expiresAt time.Time
}

// MemoryStore keeps tokens in process with per-entry TTLs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]entry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*envelope.AccessToken, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Set may have replaced the entry since the read.
		if e, ok = s.items[key]; !ok || s.expired(e) {
			delete(s.items, key)
			return nil, nil
		}
	}
	t := e.token
	return &t, nil
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

func (s *MemoryStore) Set(_ context.Context, key string, token envelope.AccessToken, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = entry{token: token, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
