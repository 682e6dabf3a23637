// Package dummy is a card-processor plug-in speaking a small JSON API. It
// wires every payment flow and serves as the reference adapter for new
// connectors.
package dummy

import (
	"encoding/base64"
	"fmt"
	"strings"

	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/credential"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

const ID = "dummy"

// Options toggles the capabilities that differ between processors that use
// this wire format.
type Options struct {
	// SeparateCapture makes automatic capture a second call.
	SeparateCapture bool
	// OAuth switches auth from static keys to client-credential tokens.
	OAuth bool
	// ThreeDSLookup runs an enrollment lookup before authorize.
	ThreeDSLookup bool
	// CustomerObjects creates a connector customer before mandate setup.
	CustomerObjects bool
}

// Dummy implements connector.Connector
type Dummy struct {
	baseURL string
	opts    Options
}

func New(baseURL string, opts Options) *Dummy {
	return &Dummy{baseURL: strings.TrimRight(baseURL, "/"), opts: opts}
}

func (d *Dummy) ID() string      { return ID }
func (d *Dummy) BaseURL() string { return d.baseURL }

func (d *Dummy) Capabilities() connector.Capabilities {
	return connector.Capabilities{
		AccessToken:       d.opts.OAuth,
		ConnectorCustomer: d.opts.CustomerObjects,
		PreProcessing:     d.opts.ThreeDSLookup,
		FollowUpCapture:   d.opts.SeparateCapture,
	}
}

// AuthHeaders maps static credentials onto headers
func (d *Dummy) AuthHeaders(auth credential.ConnectorAuthType) (base.Headers, error) {
	switch auth.Kind {
	case credential.AuthHeaderKey:
		return base.Headers{}.AddMasked("Authorization", "Bearer "+auth.APIKey), nil
	case credential.AuthBodyKey:
		return base.Headers{}.
			AddMasked("Authorization", "Bearer "+auth.APIKey).
			Add("X-Merchant-Account", auth.Key1), nil
	}
	return nil, errs.FailedToObtainAuthType().WithConnector(ID, "")
}

// basicAuth is used by the token endpoint only
func basicAuth(auth credential.ConnectorAuthType) (string, error) {
	if auth.Kind != credential.AuthBodyKey {
		return "", errs.FailedToObtainAuthType().WithConnector(ID, envelope.NameOf[envelope.AccessTokenAuth]())
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(auth.APIKey+":"+auth.Key1)), nil
}

// headers builds the common header set for a payment call
func (d *Dummy) headers(c *envelope.Common) (base.Headers, error) {
	var h base.Headers
	if d.opts.OAuth {
		if c.AccessToken == nil || c.AccessToken.Token == "" {
			return nil, errs.FailedToObtainAuthType().WithConnector(ID, "")
		}
		h = h.AddMasked("Authorization", "Bearer "+c.AccessToken.Token)
	} else {
		auth, err := d.AuthHeaders(c.ConnectorAuthType)
		if err != nil {
			return nil, err
		}
		h = append(h, auth...)
	}
	return h.
		Add("Idempotency-Key", c.ConnectorRequestReferenceID).
		Add("X-Reference-Id", c.ConnectorRequestReferenceID), nil
}

func (d *Dummy) url(format string, args ...any) string {
	return d.baseURL + fmt.Sprintf(format, args...)
}

type errorBody struct {
	Error *struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		DeclineReason string `json:"decline_reason"`
		TransactionID string `json:"transaction_id"`
	} `json:"error"`
}

type faultBody struct {
	Fault *struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	} `json:"fault"`
}

// GetErrorResponse decodes 4xx bodies
func (d *Dummy) GetErrorResponse(res *base.Response) (envelope.ErrorResponse, error) {
	var body errorBody
	if err := res.UnmarshalJSON(&body); err != nil {
		return envelope.ErrorResponse{}, err
	}
	if body.Error == nil {
		return envelope.ErrorResponse{}, errs.ResponseDeserializationFailed(fmt.Errorf("error body without error object"))
	}
	return envelope.ErrorResponse{
		Code:                   body.Error.Code,
		Message:                body.Error.Message,
		Reason:                 body.Error.DeclineReason,
		StatusCode:             res.StatusCode,
		ConnectorTransactionID: body.Error.TransactionID,
	}, nil
}

// Get5xxErrorResponse decodes the fault envelope used for server errors
func (d *Dummy) Get5xxErrorResponse(res *base.Response) (envelope.ErrorResponse, error) {
	var body faultBody
	if err := res.UnmarshalJSON(&body); err != nil || body.Fault == nil {
		return envelope.ErrorResponse{
			Code:       "connector_unavailable",
			Message:    fmt.Sprintf("connector returned %d", res.StatusCode),
			StatusCode: res.StatusCode,
			Retryable:  true,
		}, nil
	}
	return envelope.ErrorResponse{
		Code:       body.Fault.Type,
		Message:    body.Fault.Detail,
		StatusCode: res.StatusCode,
		Retryable:  true,
	}, nil
}

// Register binds every flow this plug-in supports
func Register(r *connector.Registry, d *Dummy) {
	r.Register(d)
	connector.Bind[envelope.Authorize](r, ID, authorize{d})
	connector.Bind[envelope.Capture](r, ID, capture{d})
	connector.Bind[envelope.Void](r, ID, void{d})
	connector.Bind[envelope.PSync](r, ID, psync{d})
	connector.Bind[envelope.Execute](r, ID, refund{d})
	connector.Bind[envelope.RSync](r, ID, rsync{d})
	connector.Bind[envelope.SetupMandate](r, ID, setupMandate{d})
	connector.Bind[envelope.RepeatPayment](r, ID, repeatPayment{d})
	connector.Bind[envelope.CompleteAuthorize](r, ID, completeAuthorize{d})
	connector.Bind[envelope.AccessTokenAuth](r, ID, accessToken{d})
	connector.Bind[envelope.CreateConnectorCustomer](r, ID, createCustomer{d})
	connector.Bind[envelope.PreProcessing](r, ID, threeDSLookup{d})
}
