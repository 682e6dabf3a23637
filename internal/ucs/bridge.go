package ucs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"payswitch/internal/accesstoken"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
	"payswitch/internal/events"
	"payswitch/internal/logging"
	"payswitch/internal/normalize"
	"payswitch/internal/telemetry"
)

// Operation names reported in events.
const (
	OpAuthorize = "authorize"
	OpRepeat    = "repeat_everything"
	OpGet       = "get"
	OpRegister  = "register"
	OpComplete  = "complete_authorize"
)

// Bridge runs flows through the unified service. Every method leaves the
// outcome on the envelope and never returns an error.
type Bridge struct {
	client   Invoker
	tokens   *accesstoken.Manager
	sink     events.Sink
	tenantID string
	now      func() time.Time
}

func NewBridge(client Invoker, tokens *accesstoken.Manager, sink events.Sink, tenantID string) *Bridge {
	if sink == nil {
		sink = events.LogSink{}
	}
	return &Bridge{client: client, tokens: tokens, sink: sink, tenantID: tenantID, now: time.Now}
}

func (b *Bridge) Authorize(ctx context.Context, rd *envelope.RouterData[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData]) {
	call(ctx, b, OpAuthorize, MethodAuthorize, rd, func() (map[string]any, error) { return authorizePayload(rd) })
}

// RepeatEverything charges a stored credential.
func (b *Bridge) RepeatEverything(ctx context.Context, rd *envelope.RouterData[envelope.RepeatPayment, envelope.RepeatPaymentData, envelope.PaymentsResponseData]) {
	call(ctx, b, OpRepeat, MethodRepeat, rd, func() (map[string]any, error) { return repeatPayload(rd) })
}

// Get syncs a payment's status.
func (b *Bridge) Get(ctx context.Context, rd *envelope.RouterData[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData]) {
	call(ctx, b, OpGet, MethodGet, rd, func() (map[string]any, error) { return getPayload(rd) })
}

// Register sets up a mandate.
func (b *Bridge) Register(ctx context.Context, rd *envelope.RouterData[envelope.SetupMandate, envelope.SetupMandateData, envelope.PaymentsResponseData]) {
	call(ctx, b, OpRegister, MethodRegister, rd, func() (map[string]any, error) { return registerPayload(rd) })
}

// CompleteAuthorize finishes an authorization after the customer returned
// from a redirect.
func (b *Bridge) CompleteAuthorize(ctx context.Context, rd *envelope.RouterData[envelope.CompleteAuthorize, envelope.CompleteAuthorizeData, envelope.PaymentsResponseData]) {
	call(ctx, b, OpComplete, MethodComplete, rd, func() (map[string]any, error) { return completePayload(rd) })
}

func call[F envelope.Flow, Req any](
	ctx context.Context,
	b *Bridge,
	op, method string,
	rd *envelope.RouterData[F, Req, envelope.PaymentsResponseData],
	build func() (map[string]any, error),
) {
	ctx, span := telemetry.Tracer().Start(ctx, "ucs."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("connector", rd.Connector),
		attribute.String("payment_id", rd.PaymentID),
	)

	requestID := uuid.NewString()
	evt := events.Event{
		EventType:  events.TypeUCSCall,
		Operation:  op,
		Connector:  rd.Connector,
		MerchantID: rd.MerchantID,
		PaymentID:  rd.PaymentID,
		AttemptID:  rd.AttemptID,
		RequestID:  requestID,
	}
	fail := func(err error) {
		e := errs.As(err).WithConnector(rd.Connector, rd.FlowName())
		normalize.ApplyError(rd, e)
		span.SetStatus(codes.Error, e.Error())
		evt.Error = e.Error()
		evt.StatusCode = rd.Err().StatusCode
		b.emit(ctx, evt)
	}

	payload, err := build()
	if err != nil {
		fail(err)
		return
	}
	md, err := authMetadata(&rd.Common, b.tenantID, requestID)
	if err != nil {
		fail(err)
		return
	}
	req, err := structpb.NewStruct(payload)
	if err != nil {
		fail(errs.RequestEncodingFailed(err))
		return
	}
	evt.Request = masked(req)

	start := b.now()
	resp, err := b.invoke(ctx, method, req, md)
	rd.ExternalLatency = b.now().Sub(start)
	evt.LatencyMs = rd.ExternalLatency.Milliseconds()
	if err != nil {
		fail(grpcError(method, err))
		return
	}
	evt.Response = masked(resp)

	u := parseResponse(resp)
	rd.RawConnectorResponse = u.Raw
	rd.ConnectorHTTPStatusCode = u.StatusCode
	if u.AccessToken != nil {
		rd.AccessToken = u.AccessToken
		if b.tokens != nil {
			b.tokens.StoreFromUnified(ctx, accesstoken.KeyFor(&rd.Common), *u.AccessToken)
		}
	}

	st := normalize.UnifiedStatus(u.Status)
	if u.Error != nil {
		e := *u.Error
		if u.Status != "" {
			e = e.WithAttemptStatus(st)
		}
		normalize.ApplyErrorResponse(rd, e)
		evt.Error = e.Code + ": " + e.Message
		span.SetStatus(codes.Error, e.Code)
	} else {
		if u.CapturedAmount != nil {
			rd.AmountCaptured = u.CapturedAmount
		}
		if u.CapturableAmount != nil {
			rd.MinorAmountCapturable = u.CapturableAmount
		}
		rd.SetResponse(u.responseData(), st)
	}
	evt.StatusCode = u.StatusCode
	evt.Success = rd.Ok()
	span.SetAttributes(attribute.String("status", string(rd.Status)))
	b.emit(ctx, evt)
}

// invoke isolates the payment path from a misbehaving client.
func (b *Bridge) invoke(ctx context.Context, method string, req *structpb.Struct, md metadata.MD) (resp *structpb.Struct, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Internal(fmt.Sprintf("unified service call panicked: %v", r), nil)
		}
	}()
	return b.client.Invoke(ctx, method, req, md)
}

func (b *Bridge) emit(ctx context.Context, evt events.Event) {
	evt.OccurredAt = b.now().UTC()
	if err := b.sink.Emit(ctx, evt); err != nil {
		log.Warn().Err(err).Str("operation", evt.Operation).Str("payment_id", evt.PaymentID).Msg("failed to emit ucs event")
	}
}

// grpcError classifies a failed call.
func grpcError(method string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	s, ok := status.FromError(err)
	if !ok {
		return errs.Transport(err)
	}
	switch s.Code() {
	case grpccodes.DeadlineExceeded, grpccodes.Canceled:
		return &errs.Error{Kind: errs.KindTimeout, Message: "unified service timed out", Err: err}
	case grpccodes.Unavailable, grpccodes.ResourceExhausted, grpccodes.Aborted:
		return &errs.Error{Kind: errs.KindTransport, Message: "unified service unavailable", Err: err}
	case grpccodes.Unimplemented:
		return errs.NotImplemented(method)
	case grpccodes.InvalidArgument:
		return &errs.Error{Kind: errs.KindRequestEncodingFailed, Message: s.Message(), Err: err}
	case grpccodes.Unauthenticated, grpccodes.PermissionDenied:
		return &errs.Error{Kind: errs.KindInvalidConnectorConfig, Message: s.Message(), Err: err}
	}
	return errs.Internal("unified service error", err)
}

func masked(m *structpb.Struct) json.RawMessage {
	raw, err := protojson.Marshal(m)
	if err != nil {
		return nil
	}
	out, err := json.Marshal(logging.MaskRawJSON(raw))
	if err != nil {
		return nil
	}
	return out
}
