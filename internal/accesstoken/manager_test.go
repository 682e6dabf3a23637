package accesstoken

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/envelope"
)

func TestCachedTokenShortCircuits(t *testing.T) {
	m := NewManager(NewMemoryStore(), 10*time.Second)
	var calls int32
	fetch := func(context.Context) (envelope.AccessToken, error) {
		atomic.AddInt32(&calls, 1)
		return envelope.AccessToken{Token: "tok", ExpiresIn: 3600}, nil
	}

	for i := 0; i < 3; i++ {
		tok, err := m.Get(context.Background(), Key("mca_1", ""), fetch)
		require.NoError(t, err)
		assert.Equal(t, "tok", tok.Token)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	m := NewManager(NewMemoryStore(), 0)
	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (envelope.AccessToken, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return envelope.AccessToken{Token: "tok", ExpiresIn: 60}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Get(context.Background(), "k", fetch)
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok.Token)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchErrorIsReturnedAndNotCached(t *testing.T) {
	m := NewManager(NewMemoryStore(), 0)
	boom := errors.New("401")
	_, err := m.Get(context.Background(), "k", func(context.Context) (envelope.AccessToken, error) {
		return envelope.AccessToken{}, boom
	})
	assert.ErrorIs(t, err, boom)

	tok, err := m.Get(context.Background(), "k", func(context.Context) (envelope.AccessToken, error) {
		return envelope.AccessToken{Token: "fresh", ExpiresIn: 60}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.Token)
}

func TestExpiryBufferIsHonoured(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	m := NewManager(store, 30*time.Second)

	m.StoreFromUnified(context.Background(), "k", envelope.AccessToken{Token: "a", ExpiresIn: 60})
	got, _ := store.Get(context.Background(), "k")
	require.NotNil(t, got)

	now = now.Add(31 * time.Second)
	got, _ = store.Get(context.Background(), "k")
	assert.Nil(t, got)

	m.StoreFromUnified(context.Background(), "short", envelope.AccessToken{Token: "b", ExpiresIn: 10})
	got, _ = store.Get(context.Background(), "short")
	assert.Nil(t, got)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Set(context.Context, string, envelope.AccessToken, time.Duration) error {
	return errors.New("redis down")
}

func TestStoreWriteFailureIsNotFatal(t *testing.T) {
	m := NewManager(failingStore{NewMemoryStore()}, 0)
	m.StoreFromUnified(context.Background(), "k", envelope.AccessToken{Token: "a", ExpiresIn: 60})

	tok, err := m.Get(context.Background(), "k", func(context.Context) (envelope.AccessToken, error) {
		return envelope.AccessToken{Token: "b", ExpiresIn: 60}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", tok.Token)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "access_token_mca_1", Key("mca_1", ""))
	assert.Equal(t, "access_token_mca_1_c2", Key("mca_1", "c2"))
	assert.Equal(t, "access_token_m_1_dummy", KeyFor(&envelope.Common{MerchantID: "m_1", Connector: "dummy"}))
}

func TestExpiredReadKeepsTokenStoredMeanwhile(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "k", envelope.AccessToken{Token: "old"}, time.Minute))

	now = now.Add(2 * time.Minute)
	refreshed := false
	s.now = func() time.Time {
		if !refreshed {
			refreshed = true
			require.NoError(t, s.Set(ctx, "k", envelope.AccessToken{Token: "new"}, time.Hour))
		}
		return now
	}

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Token)

	got, _ = s.Get(ctx, "k")
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Token)
}

func TestExpiredTokenIsDropped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "k", envelope.AccessToken{Token: "old"}, time.Minute))

	now = now.Add(2 * time.Minute)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, s.items)
}
