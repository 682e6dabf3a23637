package envelope

import (
	"fmt"
	"strings"
	"time"

	"payswitch/internal/domain/payment"
	"payswitch/internal/errs"
)

// RedirectForm tells the caller where to send the customer next.
type RedirectForm struct {
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	FormFields map[string]string `json:"form_fields,omitempty"`
	HTML       string            `json:"html,omitempty"`
}

// ResponseIntegrity carries the amount and currency echoed by the connector.
type ResponseIntegrity struct {
	Amount   payment.MinorUnit
	Currency payment.Currency
}

type CaptureSyncResponse struct {
	ConnectorCaptureID string
	Status             payment.AttemptStatus
	Amount             payment.MinorUnit
}

// PaymentsResponseData is the success payload of every payment flow.
type PaymentsResponseData struct {
	ResourceID                   string
	RedirectionData              *RedirectForm
	MandateReference             *payment.MandateReference
	ConnectorMetadata            map[string]any
	NetworkTxnID                 string
	ConnectorResponseReferenceID string
	IncrementalAuthAllowed       bool
	Integrity                    *ResponseIntegrity
	Captures                     []CaptureSyncResponse
}

type RefundStatus string

const (
	RefundPending      RefundStatus = "pending"
	RefundSuccess      RefundStatus = "success"
	RefundFailure      RefundStatus = "failure"
	RefundManualReview RefundStatus = "manual_review"
)

type RefundsResponseData struct {
	ConnectorRefundID string
	RefundStatus      RefundStatus
}

type ConnectorCustomerResponse struct {
	ConnectorCustomerID string
}

type TokenizationResponse struct {
	Token string
}

// AccessToken is a connector bearer credential.
type AccessToken struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires"`
}

// TTL returns the token lifetime minus buffer, never negative.
func (a AccessToken) TTL(buffer time.Duration) time.Duration {
	ttl := time.Duration(a.ExpiresIn)*time.Second - buffer
	if ttl < 0 {
		return 0
	}
	return ttl
}

// ErrorResponse is the failure payload. Code and Message are never empty
// once the envelope leaves the normalizer.
type ErrorResponse struct {
	Code                   string                 `json:"code"`
	Message                string                 `json:"message"`
	Reason                 string                 `json:"reason,omitempty"`
	StatusCode             int                    `json:"status_code"`
	AttemptStatus          *payment.AttemptStatus `json:"attempt_status,omitempty"`
	ConnectorTransactionID string                 `json:"connector_transaction_id,omitempty"`
	NetworkDeclineCode     string                 `json:"network_decline_code,omitempty"`
	Class                  errs.Class             `json:"class,omitempty"`
	Retryable              bool                   `json:"retryable"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	NoErrorCode    = "No error code"
	NoErrorMessage = "No error message"
)

// Complete fills empty Code and Message so every failure is well formed.
func (e ErrorResponse) Complete() ErrorResponse {
	if strings.TrimSpace(e.Code) == "" {
		e.Code = NoErrorCode
	}
	if strings.TrimSpace(e.Message) == "" {
		if e.Reason != "" {
			e.Message = e.Reason
		} else {
			e.Message = NoErrorMessage
		}
	}
	return e
}

// WithAttemptStatus returns a copy that pins the resulting attempt status.
func (e ErrorResponse) WithAttemptStatus(s payment.AttemptStatus) ErrorResponse {
	e.AttemptStatus = &s
	return e
}

// IntegrityError lists the fields where the connector echoed values that
// differ from the request.
type IntegrityError struct {
	FieldNames             string
	ConnectorTransactionID string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s", e.FieldNames)
}
