package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/config"
	"payswitch/internal/envelope"
	"payswitch/internal/gateway"
)

// Needs a disposable Redis, e.g. PAYSWITCH_TEST_REDIS_ADDR=localhost:6379
func testRedis(t *testing.T) config.RedisCfg {
	t.Helper()
	addr := os.Getenv("PAYSWITCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYSWITCH_TEST_REDIS_ADDR not set")
	}
	return config.RedisCfg{Addr: addr, DB: 15}
}

func TestTokenStore(t *testing.T) {
	cfg := testRedis(t)
	ctx := context.Background()
	rdb, err := Open(ctx, cfg, 2*time.Second)
	require.NoError(t, err)
	defer rdb.Close()

	s := NewTokenStore(rdb)
	key := "access_token_" + uuid.NewString()

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, key, envelope.AccessToken{Token: "tok", ExpiresIn: 60}, time.Minute))
	got, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Token)

	ttl, err := rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)

	require.NoError(t, s.Delete(ctx, key))
	got, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotSource(t *testing.T) {
	cfg := testRedis(t)
	ctx := context.Background()
	rdb, err := Open(ctx, cfg, 2*time.Second)
	require.NoError(t, err)
	defer rdb.Close()

	src := NewSnapshotSource(rdb, "rollout_"+uuid.NewString())
	snap, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	published, err := gateway.NewSnapshot(gateway.RolloutSnapshot{
		Enabled:        true,
		DefaultPercent: 10,
		Rules:          map[string]float64{"m_1:dummy:card:authorize": 50},
		UnifiedOnly:    []string{"adyen"},
		Version:        "v3",
	})
	require.NoError(t, err)
	require.NoError(t, src.Publish(ctx, published))

	snap, err = src.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "v3", snap.Version)
	assert.Equal(t, 50.0, snap.Percent("m_1", "dummy", "card", "authorize"))
	assert.True(t, snap.IsUnifiedOnly("adyen"))
}
