// Package accesstoken caches connector bearer credentials keyed by merchant
// connector account and refreshes them at most once per key at a time.
package accesstoken

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

// Fetcher obtains a fresh token from the connector.
type Fetcher func(ctx context.Context) (envelope.AccessToken, error)

// Manager implements the cache-or-fetch policy over a Store.
type Manager struct {
	store  Store
	buffer time.Duration
	group  singleflight.Group
}

// NewManager creates a manager. buffer is subtracted from every token's
// lifetime so a cached token never expires mid-call.
func NewManager(store Store, buffer time.Duration) *Manager {
	return &Manager{store: store, buffer: buffer}
}

// Key identifies the cache slot of one merchant connector account and an
// optional credential set.
func Key(merchantConnectorAccountID, credsIdentifier string) string {
	if credsIdentifier == "" {
		return "access_token_" + merchantConnectorAccountID
	}
	return "access_token_" + merchantConnectorAccountID + "_" + credsIdentifier
}

// KeyFor derives the key from an envelope.
func KeyFor(c *envelope.Common) string {
	id := c.MerchantConnectorAccountID
	if id == "" {
		id = c.MerchantID + "_" + c.Connector
	}
	return Key(id, c.CredsIdentifier)
}

// Get returns the cached token for key or runs fetch. Concurrent callers for
// the same key share one fetch; different keys never wait on each other.
func (m *Manager) Get(ctx context.Context, key string, fetch Fetcher) (envelope.AccessToken, error) {
	if tok := m.cached(ctx, key); tok != nil {
		return *tok, nil
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		if tok := m.cached(ctx, key); tok != nil {
			return *tok, nil
		}
		tok, err := fetch(ctx)
		if err != nil {
			return envelope.AccessToken{}, err
		}
		if tok.Token == "" {
			return envelope.AccessToken{}, errs.ResponseDeserializationFailed(errs.MissingRequiredField("access_token"))
		}
		m.write(ctx, key, tok)
		return tok, nil
	})
	if err != nil {
		return envelope.AccessToken{}, err
	}
	log.Debug().Str("key", key).Bool("shared", shared).Msg("access token refreshed")
	return v.(envelope.AccessToken), nil
}

// StoreFromUnified writes back a token returned inline by the unified
// service. The call that carried it already succeeded, so failures are only
// logged.
func (m *Manager) StoreFromUnified(ctx context.Context, key string, tok envelope.AccessToken) {
	if tok.Token == "" {
		return
	}
	m.write(ctx, key, tok)
}

// Invalidate drops a token the connector rejected.
func (m *Manager) Invalidate(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to invalidate access token")
	}
}

func (m *Manager) cached(ctx context.Context, key string) *envelope.AccessToken {
	tok, err := m.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("access token store read failed")
		return nil
	}
	return tok
}

func (m *Manager) write(ctx context.Context, key string, tok envelope.AccessToken) {
	ttl := tok.TTL(m.buffer)
	if ttl <= 0 {
		return
	}
	if err := m.store.Set(ctx, key, tok, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to store access token")
	}
}
