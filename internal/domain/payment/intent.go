package payment

import "time"

// FeatureMetadata is the intent's free-form metadata bag. The switch owns
// only GatewaySystem.
type FeatureMetadata struct {
	GatewaySystem GatewaySystem  `json:"gateway_system,omitempty"`
	Extra         map[string]any `json:"-"`
}

// Intent is the merchant-facing payment that attempts belong to.
type Intent struct {
	ID              string
	MerchantID      string
	ProfileID       string
	Amount          MinorUnit
	Currency        Currency
	Status          AttemptStatus
	CaptureMethod   CaptureMethod
	FeatureMetadata FeatureMetadata
	// Connector and ConnectorTransactionID belong to the latest attempt.
	Connector              string
	ConnectorTransactionID string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Unresolved reports whether the intent waits on the connector and can only
// move forward through a sync.
func (i Intent) Unresolved() bool {
	switch i.Status {
	case StatusPending, StatusAuthorizing, StatusCaptureInitiated, StatusVoidInitiated, StatusUnresolved:
		return i.Connector != "" && i.ConnectorTransactionID != ""
	}
	return false
}

// UnresolvedStatuses are the statuses Unresolved accepts.
var UnresolvedStatuses = []AttemptStatus{StatusPending, StatusAuthorizing, StatusCaptureInitiated, StatusVoidInitiated, StatusUnresolved}
