package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/store/repositories"
)

func TestIntentGatewayTagIsWrittenOnce(t *testing.T) {
	ctx := context.Background()
	r := NewIntentRepository()
	require.NoError(t, r.Save(ctx, &payment.Intent{ID: "pay_1", MerchantID: "m_1", Status: payment.StatusStarted}))

	g, err := r.SetGatewaySystemIfAbsent(ctx, "pay_1", payment.GatewayUnified)
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayUnified, g)

	g, err = r.SetGatewaySystemIfAbsent(ctx, "pay_1", payment.GatewayDirect)
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayUnified, g)

	require.NoError(t, r.Save(ctx, &payment.Intent{ID: "pay_1", MerchantID: "m_1", Status: payment.StatusAuthorized}))
	got, err := r.GatewaySystem(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayUnified, got)

	_, err = r.SetGatewaySystemIfAbsent(ctx, "missing", payment.GatewayDirect)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestIntentUpdateStatus(t *testing.T) {
	ctx := context.Background()
	r := NewIntentRepository()
	assert.ErrorIs(t, r.UpdateStatus(ctx, "pay_1", payment.StatusCharged), repositories.ErrNotFound)

	require.NoError(t, r.Save(ctx, &payment.Intent{ID: "pay_1", Status: payment.StatusStarted}))
	require.NoError(t, r.UpdateStatus(ctx, "pay_1", payment.StatusCharged))
	in, err := r.FindByID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCharged, in.Status)
}

func TestRecordAttemptAndListUnresolved(t *testing.T) {
	ctx := context.Background()
	r := NewIntentRepository()
	assert.ErrorIs(t, r.RecordAttempt(ctx, "pay_1", "dummy", "txn_1", payment.StatusPending), repositories.ErrNotFound)

	for _, id := range []string{"pay_1", "pay_2", "pay_3"} {
		require.NoError(t, r.Save(ctx, &payment.Intent{ID: id, Status: payment.StatusStarted}))
	}
	require.NoError(t, r.RecordAttempt(ctx, "pay_1", "dummy", "txn_1", payment.StatusPending))
	require.NoError(t, r.RecordAttempt(ctx, "pay_2", "dummy", "txn_2", payment.StatusCharged))
	require.NoError(t, r.RecordAttempt(ctx, "pay_3", "dummy", "", payment.StatusPending))

	require.NoError(t, r.RecordAttempt(ctx, "pay_1", "dummy", "", payment.StatusCaptureInitiated))
	in, err := r.FindByID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "txn_1", in.ConnectorTransactionID)
	assert.Equal(t, payment.StatusCaptureInitiated, in.Status)

	got, err := r.ListUnresolved(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pay_1", got[0].ID)

	got, err = r.ListUnresolved(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccountsSkipDisabled(t *testing.T) {
	ctx := context.Background()
	r := NewMerchantConnectorAccountRepository()
	require.NoError(t, r.Save(ctx, &credential.MerchantConnectorAccount{ID: "mca_1", MerchantID: "m_1", ConnectorName: "dummy"}))
	require.NoError(t, r.Save(ctx, &credential.MerchantConnectorAccount{ID: "mca_2", MerchantID: "m_1", ConnectorName: "dummy", Label: "eu"}))

	m, err := r.FindByMerchantAndConnector(ctx, "m_1", "dummy")
	require.NoError(t, err)
	assert.Equal(t, "mca_1", m.ID)

	require.NoError(t, r.Disable(ctx, "mca_1"))
	m, err = r.FindByMerchantAndConnector(ctx, "m_1", "dummy")
	require.NoError(t, err)
	assert.Equal(t, "mca_2", m.ID)

	_, err = r.FindByMerchantAndConnector(ctx, "m_1", "mpesa")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
