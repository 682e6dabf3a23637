package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/config"
	"payswitch/internal/domain/payment"
	"payswitch/internal/errs"
)

type available bool

func (a available) Available() bool { return bool(a) }

type fakeSticky struct {
	mu       sync.Mutex
	tags     map[string]payment.GatewaySystem
	writes   int
	readErr  error
	writeErr error
}

func newFakeSticky() *fakeSticky {
	return &fakeSticky{tags: map[string]payment.GatewaySystem{}}
}

func (f *fakeSticky) GatewaySystem(_ context.Context, id string) (payment.GatewaySystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.tags[id], nil
}

func (f *fakeSticky) SetGatewaySystemIfAbsent(_ context.Context, id string, g payment.GatewaySystem) (payment.GatewaySystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.writes++
	if cur, ok := f.tags[id]; ok {
		return cur, nil
	}
	f.tags[id] = g
	return g, nil
}

func snapshot(t *testing.T, s RolloutSnapshot) *SnapshotHolder {
	t.Helper()
	snap, err := NewSnapshot(s)
	require.NoError(t, err)
	return NewSnapshotHolder(snap)
}

func input(paymentID string) Input {
	return Input{MerchantID: "m_1", Connector: "dummy", PaymentMethod: "card", Flow: "authorize", PaymentID: paymentID}
}

func TestUnavailableClientIsDirectAndNotPersisted(t *testing.T) {
	sticky := newFakeSticky()
	sel := NewSelector(available(false), snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: 100}), sticky)

	d, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayDirect, d.System)
	assert.Equal(t, ReasonUnavailable, d.Reason)
	assert.Zero(t, sticky.writes)
}

func TestDisabledIsDirect(t *testing.T) {
	sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: false, DefaultPercent: 100}), newFakeSticky())
	d, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayDirect, d.System)
	assert.Equal(t, ReasonDisabled, d.Reason)
}

func TestRecordedValueWins(t *testing.T) {
	sticky := newFakeSticky()
	sticky.tags["pay_1"] = payment.GatewayDirect
	sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: true, UnifiedOnly: []string{"dummy"}}), sticky)

	d, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayDirect, d.System)
	assert.Equal(t, ReasonSticky, d.Reason)
	assert.Zero(t, sticky.writes)
}

func TestUnifiedOnlyConnector(t *testing.T) {
	sticky := newFakeSticky()
	sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: true, UnifiedOnly: []string{" Dummy "}}), sticky)

	d, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayUnified, d.System)
	assert.Equal(t, ReasonUnifiedOnly, d.Reason)
	assert.Equal(t, payment.GatewayUnified, sticky.tags["pay_1"])
}

func TestRolloutBounds(t *testing.T) {
	for _, tc := range []struct {
		percent float64
		want    payment.GatewaySystem
	}{
		{0, payment.GatewayDirect},
		{100, payment.GatewayUnified},
	} {
		sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: tc.percent}), newFakeSticky())
		for i := 0; i < 50; i++ {
			d, err := sel.Decide(context.Background(), input(fmt.Sprintf("pay_%d", i)))
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.System)
		}
	}
}

func TestRolloutIsDeterministicAndRoughlyProportional(t *testing.T) {
	holder := snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: 30})
	var unified int
	for i := 0; i < 2000; i++ {
		in := input(fmt.Sprintf("pay_%d", i))
		a := rollout(holder.Load(), in)
		b := rollout(holder.Load(), in)
		assert.Equal(t, a, b)
		if a.System == payment.GatewayUnified {
			unified++
		}
	}
	assert.InDelta(t, 600, unified, 150)
}

func TestStickinessAcrossSnapshotChanges(t *testing.T) {
	sticky := newFakeSticky()
	holder := snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: 100})
	sel := NewSelector(available(true), holder, sticky)

	first, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	require.Equal(t, payment.GatewayUnified, first.System)

	snap, err := NewSnapshot(RolloutSnapshot{Enabled: true, DefaultPercent: 0, Version: "v2"})
	require.NoError(t, err)
	holder.Store(snap)

	capture := input("pay_1")
	capture.Flow = "capture"
	second, err := sel.Decide(context.Background(), capture)
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayUnified, second.System)
}

func TestConcurrentWriterIsAdopted(t *testing.T) {
	sticky := &racingSticky{fakeSticky: newFakeSticky(), winner: payment.GatewayDirect}
	sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: 100}), sticky)

	d, err := sel.Decide(context.Background(), input("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayDirect, d.System)
	assert.Equal(t, ReasonSticky, d.Reason)
}

type racingSticky struct {
	*fakeSticky
	winner payment.GatewaySystem
}

func (r *racingSticky) SetGatewaySystemIfAbsent(context.Context, string, payment.GatewaySystem) (payment.GatewaySystem, error) {
	return r.winner, nil
}

func TestPersistenceFailureIsFatal(t *testing.T) {
	sticky := newFakeSticky()
	sticky.writeErr = errors.New("connection reset")
	sel := NewSelector(available(true), snapshot(t, RolloutSnapshot{Enabled: true, DefaultPercent: 50}), sticky)

	_, err := sel.Decide(context.Background(), input("pay_1"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindPersistenceFailed))

	sticky.writeErr = nil
	sticky.readErr = errors.New("timeout")
	_, err = sel.Decide(context.Background(), input("pay_1"))
	assert.True(t, errs.IsKind(err, errs.KindPersistenceFailed))
}

func TestPercentSpecificity(t *testing.T) {
	snap, err := NewSnapshot(RolloutSnapshot{
		DefaultPercent: 5,
		Rules: map[string]float64{
			"m_1:dummy:card:authorize": 90,
			"m_1:dummy:*:*":            40,
			"*:dummy:*:*":              20,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 90.0, snap.Percent("m_1", "dummy", "card", "authorize"))
	assert.Equal(t, 40.0, snap.Percent("m_1", "dummy", "wallet", "authorize"))
	assert.Equal(t, 20.0, snap.Percent("m_2", "dummy", "card", "authorize"))
	assert.Equal(t, 5.0, snap.Percent("m_2", "mpesa", "mobile_money", "authorize"))
}

func TestSnapshotValidation(t *testing.T) {
	_, err := NewSnapshot(RolloutSnapshot{DefaultPercent: 101})
	assert.Error(t, err)
	_, err = NewSnapshot(RolloutSnapshot{Rules: map[string]float64{"m_1:dummy": 10}})
	assert.Error(t, err)

	snap, err := ParseSnapshot([]byte(`{"enabled":true,"default_percent":12.5,"unified_only":["adyen"],"version":"v7"}`))
	require.NoError(t, err)
	assert.True(t, snap.IsUnifiedOnly("adyen"))
	assert.Equal(t, "v7", snap.Version)

	cfgSnap := FromConfig(config.UCSCfg{Enabled: true, RolloutPercent: 25, UnifiedOnly: []string{"stripe"}})
	assert.True(t, cfgSnap.Enabled)
	assert.True(t, cfgSnap.IsUnifiedOnly("stripe"))
}

type stubSource struct {
	snap *RolloutSnapshot
	err  error
}

func (s stubSource) Load(context.Context) (*RolloutSnapshot, error) { return s.snap, s.err }

func TestRefreshKeepsPreviousOnFailure(t *testing.T) {
	initial := FromConfig(config.UCSCfg{Enabled: true, RolloutPercent: 10})
	holder := NewSnapshotHolder(initial)

	NewRefresher(stubSource{err: errors.New("redis down")}, holder, 0).RefreshOnce(context.Background())
	assert.Same(t, initial, holder.Load())

	NewRefresher(stubSource{}, holder, 0).RefreshOnce(context.Background())
	assert.Same(t, initial, holder.Load())

	next, err := NewSnapshot(RolloutSnapshot{Enabled: true, DefaultPercent: 50, Version: "v2"})
	require.NoError(t, err)
	NewRefresher(stubSource{snap: next}, holder, 0).RefreshOnce(context.Background())
	assert.Same(t, next, holder.Load())
}
