package repositories

import (
	"context"
	"errors"
	"time"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// IntentRepository defines the contract for payment intent data access
type IntentRepository interface {
	Save(ctx context.Context, intent *payment.Intent) error
	FindByID(ctx context.Context, id string) (*payment.Intent, error)
	UpdateStatus(ctx context.Context, id string, status payment.AttemptStatus) error
	// RecordAttempt stores the outcome of the latest attempt. An empty
	// transaction id keeps the stored one.
	RecordAttempt(ctx context.Context, id, connector, connectorTransactionID string, status payment.AttemptStatus) error
	// ListUnresolved returns up to limit intents waiting on a connector that
	// were last updated before the cutoff, oldest first.
	ListUnresolved(ctx context.Context, updatedBefore time.Time, limit int) ([]*payment.Intent, error)
	// GatewaySystem returns the recorded gateway or "" when none is set.
	GatewaySystem(ctx context.Context, id string) (payment.GatewaySystem, error)
	// SetGatewaySystemIfAbsent records g unless a value exists and returns
	// the value in effect afterwards.
	SetGatewaySystemIfAbsent(ctx context.Context, id string, g payment.GatewaySystem) (payment.GatewaySystem, error)
}

// MerchantConnectorAccountRepository defines the contract for connector
// account data access
type MerchantConnectorAccountRepository interface {
	Save(ctx context.Context, mca *credential.MerchantConnectorAccount) error
	FindByID(ctx context.Context, id string) (*credential.MerchantConnectorAccount, error)
	FindByMerchantAndConnector(ctx context.Context, merchantID, connector string) (*credential.MerchantConnectorAccount, error)
	FindByMerchantID(ctx context.Context, merchantID string) ([]*credential.MerchantConnectorAccount, error)
	Disable(ctx context.Context, id string) error
}
