package envelope

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
)

// Common holds every envelope field that is not tied to a flow's request or
// response. Convert copies it forward unchanged.
type Common struct {
	Connector                   string
	MerchantID                  string
	ProfileID                   string
	CustomerID                  string
	ConnectorCustomerID         string
	PaymentID                   string
	AttemptID                   string
	ConnectorRequestReferenceID string
	Status                      payment.AttemptStatus
	PaymentMethod               payment.PaymentMethodType
	AuthType                    payment.AuthenticationType
	ConnectorAuthType           credential.ConnectorAuthType
	MerchantConnectorAccountID  string
	CredsIdentifier             string
	Description                 string
	ReturnURL                   string
	AccessToken                 *AccessToken
	PaymentMethodToken          string
	RawConnectorResponse        string
	AmountCaptured              *payment.MinorUnit
	MinorAmountCapturable       *payment.MinorUnit
	ConnectorHTTPStatusCode     int
	ExternalLatency             time.Duration
	IntegrityCheck              *IntegrityError
	GatewaySystem               payment.GatewaySystem
	TestMode                    bool
	ConnectorMeta               map[string]any
}

// clone deep-copies Common. Every field is listed so a new field shows up
// here as a compile-visible decision.
func (c Common) clone() Common {
	out := Common{
		Connector:                   c.Connector,
		MerchantID:                  c.MerchantID,
		ProfileID:                   c.ProfileID,
		CustomerID:                  c.CustomerID,
		ConnectorCustomerID:         c.ConnectorCustomerID,
		PaymentID:                   c.PaymentID,
		AttemptID:                   c.AttemptID,
		ConnectorRequestReferenceID: c.ConnectorRequestReferenceID,
		Status:                      c.Status,
		PaymentMethod:               c.PaymentMethod,
		AuthType:                    c.AuthType,
		ConnectorAuthType:           c.ConnectorAuthType,
		MerchantConnectorAccountID:  c.MerchantConnectorAccountID,
		CredsIdentifier:             c.CredsIdentifier,
		Description:                 c.Description,
		ReturnURL:                   c.ReturnURL,
		PaymentMethodToken:          c.PaymentMethodToken,
		RawConnectorResponse:        c.RawConnectorResponse,
		ConnectorHTTPStatusCode:     c.ConnectorHTTPStatusCode,
		ExternalLatency:             c.ExternalLatency,
		GatewaySystem:               c.GatewaySystem,
		TestMode:                    c.TestMode,
		ConnectorMeta:               maps.Clone(c.ConnectorMeta),
	}
	out.ConnectorAuthType.KeyMap = maps.Clone(c.ConnectorAuthType.KeyMap)
	if c.AccessToken != nil {
		t := *c.AccessToken
		out.AccessToken = &t
	}
	if c.AmountCaptured != nil {
		v := *c.AmountCaptured
		out.AmountCaptured = &v
	}
	if c.MinorAmountCapturable != nil {
		v := *c.MinorAmountCapturable
		out.MinorAmountCapturable = &v
	}
	if c.IntegrityCheck != nil {
		v := *c.IntegrityCheck
		out.IntegrityCheck = &v
	}
	return out
}

// noResponse is the outcome of an envelope that has not been dispatched.
var noResponse = ErrorResponse{Code: "NO_RESPONSE", Message: "no response from connector yet"}

// RouterData is the envelope for flow F. The outcome holds either a Resp or
// an ErrorResponse, never both.
type RouterData[F Flow, Req, Resp any] struct {
	Common
	Request Req

	resp Resp
	err  *ErrorResponse
}

// New builds a fresh envelope. A reference id is generated when the caller
// did not supply one so that retries of the same attempt can reuse it.
func New[F Flow, Req, Resp any](common Common, req Req) *RouterData[F, Req, Resp] {
	if common.ConnectorRequestReferenceID == "" {
		common.ConnectorRequestReferenceID = uuid.NewString()
	}
	e := noResponse
	return &RouterData[F, Req, Resp]{Common: common, Request: req, err: &e}
}

// FlowName of the envelope.
func (r *RouterData[F, Req, Resp]) FlowName() string { return NameOf[F]() }

// SetResponse records a success outcome and the status derived from it.
func (r *RouterData[F, Req, Resp]) SetResponse(resp Resp, status payment.AttemptStatus) {
	r.resp = resp
	r.err = nil
	r.Status = status
}

// SetError records a failure outcome and the status derived from it.
func (r *RouterData[F, Req, Resp]) SetError(e ErrorResponse, status payment.AttemptStatus) {
	var zero Resp
	e = e.Complete()
	r.resp = zero
	r.err = &e
	r.Status = status
}

// Response returns the success payload, or nil and the error.
func (r *RouterData[F, Req, Resp]) Response() (Resp, *ErrorResponse) {
	if r.err != nil {
		var zero Resp
		e := *r.err
		return zero, &e
	}
	return r.resp, nil
}

// Ok reports whether the outcome is a success.
func (r *RouterData[F, Req, Resp]) Ok() bool { return r.err == nil }

// Err returns the failure outcome or nil.
func (r *RouterData[F, Req, Resp]) Err() *ErrorResponse {
	if r.err == nil {
		return nil
	}
	e := *r.err
	return &e
}

// Dispatched reports whether the outcome was written by a dispatch step.
func (r *RouterData[F, Req, Resp]) Dispatched() bool {
	return r.err == nil || r.err.Code != noResponse.Code
}

// Convert carries src into flow F2 with a new request. Common is copied
// forward; the outcome starts undispatched. F2 and Resp2 must be given
// explicitly: Convert[envelope.Capture, envelope.PaymentsResponseData](src, req).
func Convert[F2 Flow, Resp2 any, F1 Flow, Req1, Resp1, Req2 any](src *RouterData[F1, Req1, Resp1], req Req2) *RouterData[F2, Req2, Resp2] {
	e := noResponse
	return &RouterData[F2, Req2, Resp2]{Common: src.Common.clone(), Request: req, err: &e}
}

// ConvertWithOutcome is Convert that also carries the outcome when the
// response types match, used when merging a nested flow back into its
// parent.
func ConvertWithOutcome[F2 Flow, F1 Flow, Req1, Resp, Req2 any](src *RouterData[F1, Req1, Resp], req Req2) *RouterData[F2, Req2, Resp] {
	dst := &RouterData[F2, Req2, Resp]{Common: src.Common.clone(), Request: req, resp: src.resp}
	if src.err != nil {
		e := *src.err
		dst.err = &e
	}
	return dst
}
