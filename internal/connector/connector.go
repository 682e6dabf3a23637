// Package connector defines the capability contract every connector plug-in
// implements, one method set per flow, and the registry that resolves them.
package connector

import (
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/credential"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

// Connector carries what a plug-in shares across flows
type Connector interface {
	ID() string
	BaseURL() string
	AuthHeaders(auth credential.ConnectorAuthType) (base.Headers, error)
	Capabilities() Capabilities
}

// Capabilities tells the orchestrator which pre-steps and follow-ups a
// connector needs around the main dispatch
type Capabilities struct {
	AccessToken        bool
	ConnectorCustomer  bool
	PaymentMethodToken bool
	PreProcessing      bool
	// FollowUpCapture is set when automatic capture is a separate capture
	// call. Connectors that settle atomically must leave it false.
	FollowUpCapture bool
}

// Integration is the per-flow capability set. Every method is free of side
// effects apart from logging.
type Integration[F envelope.Flow, Req, Resp any] interface {
	GetHeaders(rd *envelope.RouterData[F, Req, Resp]) (base.Headers, error)
	GetURL(rd *envelope.RouterData[F, Req, Resp]) (string, error)
	GetRequestBody(rd *envelope.RouterData[F, Req, Resp]) (*base.RequestBody, error)
	// BuildRequest returns nil with no error when the flow is not wired for
	// this connector.
	BuildRequest(rd *envelope.RouterData[F, Req, Resp]) (*base.Request, error)
	HandleResponse(rd *envelope.RouterData[F, Req, Resp], res *base.Response) (*envelope.RouterData[F, Req, Resp], error)
	GetErrorResponse(res *base.Response) (envelope.ErrorResponse, error)
}

// FiveXXDecoder is implemented by connectors whose 5xx bodies use a
// different envelope than their 4xx bodies.
type FiveXXDecoder interface {
	Get5xxErrorResponse(res *base.Response) (envelope.ErrorResponse, error)
}

type CaptureSyncMethod string

const (
	CaptureSyncIndividual CaptureSyncMethod = "individual"
	CaptureSyncBulk       CaptureSyncMethod = "bulk"
)

// MultipleCaptureSyncer is implemented by psync integrations that can sync a
// ManualMultiple capture sequence.
type MultipleCaptureSyncer interface {
	MultipleCaptureSyncMethod() (CaptureSyncMethod, error)
}

// DecodeError picks the 5xx hook when present and falls back to the
// integration's own decoder.
func DecodeError(decoder interface {
	GetErrorResponse(*base.Response) (envelope.ErrorResponse, error)
}, res *base.Response) (envelope.ErrorResponse, error) {
	if res.Is5xx() {
		if fx, ok := decoder.(FiveXXDecoder); ok {
			return fx.Get5xxErrorResponse(res)
		}
	}
	return decoder.GetErrorResponse(res)
}

// BuildRequest assembles a request from an integration's URL, headers and
// body. Plug-ins call it from their own BuildRequest.
func BuildRequest[F envelope.Flow, Req, Resp any](in Integration[F, Req, Resp], rd *envelope.RouterData[F, Req, Resp], method base.Method) (*base.Request, error) {
	url, err := in.GetURL(rd)
	if err != nil {
		return nil, err
	}
	headers, err := in.GetHeaders(rd)
	if err != nil {
		return nil, err
	}
	var body *base.RequestBody
	if method != base.MethodGet {
		if body, err = in.GetRequestBody(rd); err != nil {
			return nil, err
		}
	}
	return &base.Request{Method: method, URL: url, Headers: headers, Body: body}, nil
}

// Unsupported is the integration bound to every (connector, flow) pair the
// plug-in did not wire. It never builds a request.
type Unsupported[F envelope.Flow, Req, Resp any] struct {
	Connector string
}

func (u Unsupported[F, Req, Resp]) notImplemented() error {
	return errs.NotImplemented(envelope.NameOf[F]()).WithConnector(u.Connector, envelope.NameOf[F]())
}

func (u Unsupported[F, Req, Resp]) GetHeaders(*envelope.RouterData[F, Req, Resp]) (base.Headers, error) {
	return nil, u.notImplemented()
}

func (u Unsupported[F, Req, Resp]) GetURL(*envelope.RouterData[F, Req, Resp]) (string, error) {
	return "", u.notImplemented()
}

func (u Unsupported[F, Req, Resp]) GetRequestBody(*envelope.RouterData[F, Req, Resp]) (*base.RequestBody, error) {
	return nil, u.notImplemented()
}

func (u Unsupported[F, Req, Resp]) BuildRequest(*envelope.RouterData[F, Req, Resp]) (*base.Request, error) {
	return nil, nil
}

func (u Unsupported[F, Req, Resp]) HandleResponse(*envelope.RouterData[F, Req, Resp], *base.Response) (*envelope.RouterData[F, Req, Resp], error) {
	return nil, u.notImplemented()
}

func (u Unsupported[F, Req, Resp]) GetErrorResponse(res *base.Response) (envelope.ErrorResponse, error) {
	return envelope.ErrorResponse{
		Code:       envelope.NoErrorCode,
		Message:    res.String(),
		StatusCode: res.StatusCode,
	}, nil
}
