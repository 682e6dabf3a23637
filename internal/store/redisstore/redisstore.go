// Package redisstore keeps state shared across switch instances in Redis:
// connector access tokens and the published rollout snapshot.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"payswitch/internal/config"
	"payswitch/internal/envelope"
	"payswitch/internal/gateway"
)

// Open connects to Redis, retrying the initial ping with exponential backoff
// for at most maxWait.
func Open(ctx context.Context, cfg config.RedisCfg, maxWait time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	err := backoff.RetryNotify(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Str("addr", cfg.Addr).Dur("retry_in", next).Msg("redis ping failed")
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// TokenStore implements accesstoken.Store. Redis expiry enforces the TTL.
type TokenStore struct {
	rdb redis.Cmdable
}

func NewTokenStore(rdb redis.Cmdable) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func (s *TokenStore) Get(ctx context.Context, key string) (*envelope.AccessToken, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok envelope.AccessToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode access token %s: %w", key, err)
	}
	return &tok, nil
}

func (s *TokenStore) Set(ctx context.Context, key string, tok envelope.AccessToken, ttl time.Duration) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, ttl).Err()
}

func (s *TokenStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// SnapshotSource implements gateway.SnapshotSource over one Redis key
// holding the operator-published JSON document.
type SnapshotSource struct {
	rdb redis.Cmdable
	key string
}

func NewSnapshotSource(rdb redis.Cmdable, key string) *SnapshotSource {
	return &SnapshotSource{rdb: rdb, key: key}
}

func (s *SnapshotSource) Load(ctx context.Context) (*gateway.RolloutSnapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return gateway.ParseSnapshot(raw)
}

// Publish stores a snapshot for every instance to pick up on its next
// refresh.
func (s *SnapshotSource) Publish(ctx context.Context, snap *gateway.RolloutSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, raw, 0).Err()
}
