// Package orchestrator sequences a payment flow: substrate decision,
// connector pre-steps, dispatch through an adapter or the unified bridge,
// normalization and nested follow-up flows. Every entry point returns a
// well-formed envelope, never a bare error.
package orchestrator

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"payswitch/internal/accesstoken"
	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
	"payswitch/internal/gateway"
	"payswitch/internal/normalize"
	"payswitch/internal/telemetry"
)

type (
	AuthorizeRouterData      = envelope.RouterData[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData]
	CaptureRouterData        = envelope.RouterData[envelope.Capture, envelope.CaptureData, envelope.PaymentsResponseData]
	VoidRouterData           = envelope.RouterData[envelope.Void, envelope.CancelData, envelope.PaymentsResponseData]
	PSyncRouterData          = envelope.RouterData[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData]
	RefundRouterData         = envelope.RouterData[envelope.Execute, envelope.RefundsData, envelope.RefundsResponseData]
	RSyncRouterData          = envelope.RouterData[envelope.RSync, envelope.RefundsData, envelope.RefundsResponseData]
	SetupMandateRouterData   = envelope.RouterData[envelope.SetupMandate, envelope.SetupMandateData, envelope.PaymentsResponseData]
	RepeatRouterData         = envelope.RouterData[envelope.RepeatPayment, envelope.RepeatPaymentData, envelope.PaymentsResponseData]
	CompleteRouterData       = envelope.RouterData[envelope.CompleteAuthorize, envelope.CompleteAuthorizeData, envelope.PaymentsResponseData]
	PreProcessingRouterData  = envelope.RouterData[envelope.PreProcessing, envelope.PreProcessingData, envelope.PaymentsResponseData]
	PostProcessingRouterData = envelope.RouterData[envelope.PostProcessing, envelope.PostProcessingData, envelope.PaymentsResponseData]
	CreateOrderRouterData    = envelope.RouterData[envelope.CreateOrder, envelope.CreateOrderData, envelope.PaymentsResponseData]
)

// Decider picks the substrate for one flow of one payment.
type Decider interface {
	Decide(ctx context.Context, in gateway.Input) (gateway.Decision, error)
}

// UnifiedBridge is the unified connector service side of dispatch. Each
// call records its outcome on the envelope.
type UnifiedBridge interface {
	Authorize(ctx context.Context, rd *AuthorizeRouterData)
	RepeatEverything(ctx context.Context, rd *RepeatRouterData)
	Get(ctx context.Context, rd *PSyncRouterData)
	Register(ctx context.Context, rd *SetupMandateRouterData)
	CompleteAuthorize(ctx context.Context, rd *CompleteRouterData)
}

type Orchestrator struct {
	registry *connector.Registry
	sender   base.Sender
	decider  Decider
	bridge   UnifiedBridge
	tokens   *accesstoken.Manager
}

// New creates an orchestrator. decider and bridge may be nil, in which case
// every flow goes direct.
func New(registry *connector.Registry, sender base.Sender, decider Decider, bridge UnifiedBridge, tokens *accesstoken.Manager) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		sender:   sender,
		decider:  decider,
		bridge:   bridge,
		tokens:   tokens,
	}
}

// decide asks the selector for the substrate of flow. Without a selector
// the answer is always direct.
func (o *Orchestrator) decide(ctx context.Context, c *envelope.Common, flow string) (payment.GatewaySystem, error) {
	if o.decider == nil {
		return payment.GatewayDirect, nil
	}
	d, err := o.decider.Decide(ctx, gateway.Input{
		MerchantID:    c.MerchantID,
		Connector:     c.Connector,
		PaymentMethod: string(c.PaymentMethod),
		Flow:          flow,
		PaymentID:     c.PaymentID,
	})
	if err != nil {
		return "", err
	}
	if d.System == payment.GatewayUnified && o.bridge == nil {
		return "", errs.Internal("unified connector service selected but no bridge is configured", nil)
	}
	log.Debug().
		Str("connector", c.Connector).
		Str("flow", flow).
		Str("payment_id", c.PaymentID).
		Str("gateway_system", string(d.System)).
		Str("reason", string(d.Reason)).
		Msg("gateway decided")
	return d.System, nil
}

func (o *Orchestrator) capabilities(id string) (connector.Capabilities, error) {
	c, err := o.registry.Get(id)
	if err != nil {
		return connector.Capabilities{}, err
	}
	return c.Capabilities(), nil
}

func notImplemented[F envelope.Flow, Req, Resp any](rd *envelope.RouterData[F, Req, Resp]) error {
	return errs.NotImplemented(rd.FlowName()).WithConnector(rd.Connector, rd.FlowName())
}

// execute runs one flow against the connector's adapter and records the
// outcome on rd. It reports false without touching rd when the adapter
// does not wire the flow for this connector.
func execute[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp]) bool {
	flow := rd.FlowName()
	ctx, span := telemetry.Tracer().Start(ctx, "connector."+flow)
	defer span.End()
	span.SetAttributes(
		attribute.String("connector", rd.Connector),
		attribute.String("payment_id", rd.PaymentID),
	)

	fail := func(err error) bool {
		e := errs.As(err).WithConnector(rd.Connector, flow)
		normalize.ApplyError(rd, e)
		span.SetStatus(codes.Error, e.Error())
		return true
	}

	_, in, err := connector.Lookup[F, Req, Resp](o.registry, rd.Connector)
	if err != nil {
		return fail(err)
	}
	req, err := in.BuildRequest(rd)
	if err != nil {
		return fail(err)
	}
	if req == nil {
		return false
	}

	res, err := o.sender.Send(ctx, rd.Connector, req)
	if err != nil {
		return fail(err)
	}
	rd.RawConnectorResponse = string(res.Body)
	rd.ConnectorHTTPStatusCode = res.StatusCode
	rd.ExternalLatency = res.Latency
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if !res.IsSuccess() {
		if res.StatusCode == http.StatusUnauthorized && rd.AccessToken != nil && o.tokens != nil {
			o.tokens.Invalidate(ctx, accesstoken.KeyFor(&rd.Common))
		}
		e, err := connector.DecodeError(in, res)
		if err != nil {
			return fail(err)
		}
		if e.StatusCode == 0 {
			e.StatusCode = res.StatusCode
		}
		normalize.ApplyErrorResponse(rd, e)
		span.SetStatus(codes.Error, e.Code)
		return true
	}

	out, err := in.HandleResponse(rd, res)
	if err != nil {
		return fail(err)
	}
	if out == nil {
		return fail(errs.Internal("connector returned no result for "+flow, nil))
	}
	if out != rd {
		*rd = *out
	}
	span.SetAttributes(attribute.String("status", string(rd.Status)))
	return true
}

// dispatch is execute for a flow the caller asked for: an unwired flow is
// a recorded NotImplemented outcome.
func dispatch[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp]) {
	if !execute(ctx, o, rd) {
		normalize.ApplyError(rd, notImplemented(rd))
	}
}

// addAccessToken attaches a bearer token to rd when the connector needs
// one, reusing the cached token of the connector account.
func addAccessToken[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp], caps connector.Capabilities) error {
	if !caps.AccessToken || rd.AccessToken != nil {
		return nil
	}
	if o.tokens == nil {
		return errs.InvalidConnectorConfig("access_token_manager")
	}
	tok, err := o.tokens.Get(ctx, accesstoken.KeyFor(&rd.Common), func(ctx context.Context) (envelope.AccessToken, error) {
		trd := envelope.Convert[envelope.AccessTokenAuth, envelope.AccessToken](rd, envelope.AccessTokenRequestData{
			ID: rd.MerchantConnectorAccountID,
		})
		if !execute(ctx, o, trd) {
			return envelope.AccessToken{}, notImplemented(trd)
		}
		resp, e := trd.Response()
		if e != nil {
			return envelope.AccessToken{}, *e
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	rd.AccessToken = &tok
	return nil
}

// createConnectorCustomer runs the customer pre-step for connectors that
// attach payments and mandates to their own customer objects.
func createConnectorCustomer[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp], caps connector.Capabilities, email string) error {
	if !caps.ConnectorCustomer || rd.ConnectorCustomerID != "" {
		return nil
	}
	crd := envelope.Convert[envelope.CreateConnectorCustomer, envelope.ConnectorCustomerResponse](rd, envelope.ConnectorCustomerData{
		Email:       email,
		Description: rd.Description,
	})
	if !execute(ctx, o, crd) {
		return nil
	}
	resp, e := crd.Response()
	if e != nil {
		return *e
	}
	rd.ConnectorCustomerID = resp.ConnectorCustomerID
	return nil
}

// tokenizePaymentMethod exchanges the raw instrument for a connector token
// before authorize.
func tokenizePaymentMethod(ctx context.Context, o *Orchestrator, rd *AuthorizeRouterData, caps connector.Capabilities) error {
	if !caps.PaymentMethodToken || rd.PaymentMethodToken != "" {
		return nil
	}
	trd := envelope.Convert[envelope.PaymentMethodToken, envelope.TokenizationResponse](rd, envelope.PaymentMethodTokenizationData{
		PaymentMethodData: rd.Request.PaymentMethodData,
		Amount:            rd.Request.Amount,
		Currency:          rd.Request.Currency,
	})
	if !execute(ctx, o, trd) {
		return nil
	}
	resp, e := trd.Response()
	if e != nil {
		return *e
	}
	rd.PaymentMethodToken = resp.Token
	return nil
}

// copyDispatchMeta carries the connector call diagnostics of a nested
// envelope back to its parent.
func copyDispatchMeta(dst, src *envelope.Common) {
	dst.RawConnectorResponse = src.RawConnectorResponse
	dst.ConnectorHTTPStatusCode = src.ConnectorHTTPStatusCode
	dst.ExternalLatency += src.ExternalLatency
	if src.AccessToken != nil {
		dst.AccessToken = src.AccessToken
	}
	if src.ConnectorCustomerID != "" {
		dst.ConnectorCustomerID = src.ConnectorCustomerID
	}
}

func logOutcome[F envelope.Flow, Req, Resp any](rd *envelope.RouterData[F, Req, Resp]) {
	ev := log.Info()
	if e := rd.Err(); e != nil {
		ev = log.Warn().Str("error_code", e.Code).Str("error_message", e.Message)
	}
	ev.Str("connector", rd.Connector).
		Str("flow", rd.FlowName()).
		Str("payment_id", rd.PaymentID).
		Str("attempt_id", rd.AttemptID).
		Str("gateway_system", string(rd.GatewaySystem)).
		Str("status", string(rd.Status)).
		Dur("external_latency", rd.ExternalLatency).
		Msg("flow completed")
}
