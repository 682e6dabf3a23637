package payment

import "time"

// MandateReference identifies a stored credential at the connector.
type MandateReference struct {
	ConnectorMandateID     string `json:"connector_mandate_id,omitempty"`
	PaymentMethodID        string `json:"payment_method_id,omitempty"`
	MandateMetadata        string `json:"mandate_metadata,omitempty"`
	ConnectorMandateReqRef string `json:"connector_mandate_request_reference_id,omitempty"`
}

// MandateIDs is set on an authorize when charging a stored credential.
// Exactly one of ConnectorMandate or NetworkTransactionID drives the repeat
// contract.
type MandateIDs struct {
	MandateID            string
	ConnectorMandate     *MandateReference
	NetworkTransactionID string
}

// IsRepeat reports whether this is a merchant-initiated charge.
func (m *MandateIDs) IsRepeat() bool {
	return m != nil && (m.ConnectorMandate != nil || m.NetworkTransactionID != "")
}

type AcceptanceType string

const (
	AcceptanceOnline  AcceptanceType = "online"
	AcceptanceOffline AcceptanceType = "offline"
)

// CustomerAcceptance records the customer's consent to a stored credential.
type CustomerAcceptance struct {
	Type       AcceptanceType
	AcceptedAt time.Time
	IPAddress  string
	UserAgent  string
}
