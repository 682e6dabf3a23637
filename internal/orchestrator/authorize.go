package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"payswitch/internal/connector"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/normalize"
	"payswitch/internal/telemetry"
)

// Authorize runs a customer-initiated authorization, or the repeat contract
// when the request carries a stored mandate. With automatic capture on a
// connector that settles in a separate call, the nested capture is awaited
// and merged before returning.
func (o *Orchestrator) Authorize(ctx context.Context, rd *AuthorizeRouterData) *AuthorizeRouterData {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.authorize")
	defer span.End()
	defer logOutcome(rd)

	rd.AuthType = envelope.DecideAuthenticationType(&rd.Request, rd.AuthType)
	if !envelope.ShouldProceedWithAuthorize(rd) {
		log.Info().
			Str("connector", rd.Connector).
			Str("payment_id", rd.PaymentID).
			Msg("authorize skipped, customer action pending")
		return rd
	}

	repeat := rd.Request.MandateID.IsRepeat()
	flow := rd.FlowName()
	if repeat {
		flow = envelope.NameOf[envelope.RepeatPayment]()
	}
	span.SetAttributes(attribute.String("connector", rd.Connector), attribute.Bool("repeat", repeat))

	caps, err := o.capabilities(rd.Connector)
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	system, err := o.decide(ctx, &rd.Common, flow)
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	rd.GatewaySystem = system
	span.SetAttributes(attribute.String("gateway_system", string(system)))

	if repeat {
		o.repeatPayment(ctx, rd, caps)
	} else if system == payment.GatewayUnified {
		if err := addAccessToken(ctx, o, rd, caps); err != nil {
			normalize.ApplyError(rd, err)
			return rd
		}
		o.bridge.Authorize(ctx, rd)
	} else {
		if done := o.authorizePreSteps(ctx, rd, caps); done {
			return rd
		}
		dispatch(ctx, o, rd)
	}

	o.finishAuthorize(ctx, rd, caps)
	return rd
}

// authorizePreSteps runs the connector's pre-steps in order. It reports
// true when the envelope already holds the final outcome.
func (o *Orchestrator) authorizePreSteps(ctx context.Context, rd *AuthorizeRouterData, caps connector.Capabilities) bool {
	if err := addAccessToken(ctx, o, rd, caps); err != nil {
		normalize.ApplyError(rd, err)
		return true
	}
	if rd.Request.SetupFutureUsage == payment.FutureUsageOffSession || rd.Request.CustomerAcceptance != nil {
		if err := createConnectorCustomer(ctx, o, rd, caps, rd.Request.Email); err != nil {
			normalize.ApplyError(rd, err)
			return true
		}
	}
	if err := tokenizePaymentMethod(ctx, o, rd, caps); err != nil {
		normalize.ApplyError(rd, err)
		return true
	}
	if !caps.PreProcessing {
		return false
	}

	prd := envelope.Convert[envelope.PreProcessing, envelope.PaymentsResponseData](rd, envelope.PreProcessingData{
		Amount:            rd.Request.Amount,
		Currency:          rd.Request.Currency,
		PaymentMethodData: rd.Request.PaymentMethodData,
		Email:             rd.Request.Email,
		EnrolledFor3DS:    rd.Request.EnrolledFor3DS,
		BrowserInfo:       rd.Request.BrowserInfo,
	})
	if !execute(ctx, o, prd) {
		return false
	}
	copyDispatchMeta(&rd.Common, &prd.Common)
	resp, e := prd.Response()
	if e != nil {
		normalize.ApplyErrorResponse(rd, *e)
		return true
	}
	if resp.RedirectionData != nil {
		rd.SetResponse(resp, payment.StatusAuthenticationPending)
		return true
	}
	rd.Status = prd.Status
	return false
}

// repeatPayment charges a stored credential through the repeat contract on
// whichever substrate was selected and folds the outcome back into rd.
func (o *Orchestrator) repeatPayment(ctx context.Context, rd *AuthorizeRouterData, caps connector.Capabilities) {
	rrd := envelope.Convert[envelope.RepeatPayment, envelope.PaymentsResponseData](rd, envelope.RepeatFromAuthorize(rd.Request))
	switch err := addAccessToken(ctx, o, rrd, caps); {
	case err != nil:
		normalize.ApplyError(rrd, err)
	case rd.GatewaySystem == payment.GatewayUnified:
		o.bridge.RepeatEverything(ctx, rrd)
	default:
		dispatch(ctx, o, rrd)
	}
	*rd = *envelope.ConvertWithOutcome[envelope.Authorize](rrd, rd.Request)
}

// finishAuthorize attaches the integrity result and runs the follow-up
// capture when the connector needs one.
func (o *Orchestrator) finishAuthorize(ctx context.Context, rd *AuthorizeRouterData, caps connector.Capabilities) {
	resp, e := rd.Response()
	if e != nil {
		return
	}
	rd.IntegrityCheck = normalize.IntegrityCheck(rd.Request.Amount, rd.Request.Currency, resp.Integrity, resp.ResourceID)
	if rd.IntegrityCheck != nil {
		log.Warn().
			Str("connector", rd.Connector).
			Str("payment_id", rd.PaymentID).
			Str("fields", rd.IntegrityCheck.FieldNames).
			Msg("connector echoed values that differ from the request")
	}
	switch {
	case needsFollowUpCapture(rd.Status, rd.Request.CaptureMethod, rd.GatewaySystem, caps):
		captureFollowUp(ctx, o, rd, rd.Request.Amount, rd.Request.Currency, rd.Request.CaptureMethod)
	case awaitsUnifiedCapture(rd.Status, rd.Request.CaptureMethod, rd.GatewaySystem):
		rd.SetResponse(resp, payment.StatusCaptureInitiated)
	}
}

// needsFollowUpCapture holds for an authorization that succeeded without
// settling on a connector that settles through a separate capture call.
// The unified service settles automatic captures on its side.
func needsFollowUpCapture(status payment.AttemptStatus, cm payment.CaptureMethod, system payment.GatewaySystem, caps connector.Capabilities) bool {
	return status == payment.StatusAuthorized &&
		cm.IsAutomatic() &&
		caps.FollowUpCapture &&
		system != payment.GatewayUnified
}

// awaitsUnifiedCapture holds for an automatic-capture authorization the
// unified service reported as authorized but not yet settled. The payment
// is CaptureInitiated until a sync sees the capture.
func awaitsUnifiedCapture(status payment.AttemptStatus, cm payment.CaptureMethod, system payment.GatewaySystem) bool {
	return status == payment.StatusAuthorized &&
		cm.IsAutomatic() &&
		system == payment.GatewayUnified
}

// captureFollowUp runs the nested capture for the full authorized amount
// and merges its result into rd. A failed capture leaves rd in
// CaptureFailed with the capture error and the authorization's transaction
// id.
func captureFollowUp[F envelope.Flow, Req any](
	ctx context.Context,
	o *Orchestrator,
	rd *envelope.RouterData[F, Req, envelope.PaymentsResponseData],
	amount payment.MinorUnit,
	currency payment.Currency,
	cm payment.CaptureMethod,
) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.follow_up_capture")
	defer span.End()

	auth, _ := rd.Response()
	crd := envelope.Convert[envelope.Capture, envelope.PaymentsResponseData](rd, envelope.CaptureData{
		AmountToCapture:        amount,
		Currency:               currency,
		ConnectorTransactionID: auth.ResourceID,
		PaymentAmount:          amount,
		CaptureMethod:          cm,
		ConnectorMeta:          auth.ConnectorMetadata,
	})
	dispatch(ctx, o, crd)
	copyDispatchMeta(&rd.Common, &crd.Common)

	log.Info().
		Str("connector", rd.Connector).
		Str("payment_id", rd.PaymentID).
		Str("capture_status", string(crd.Status)).
		Msg("follow-up capture finished")

	if e := crd.Err(); e != nil {
		failed := *e
		failed.AttemptStatus = nil
		if failed.ConnectorTransactionID == "" {
			failed.ConnectorTransactionID = auth.ResourceID
		}
		rd.SetError(failed, payment.StatusCaptureFailed)
		rd.AmountCaptured = nil
		return
	}

	switch crd.Status {
	case payment.StatusCharged, payment.StatusPartialCharged:
		rd.SetResponse(auth, crd.Status)
		rd.AmountCaptured = crd.AmountCaptured
		if rd.AmountCaptured == nil && crd.Status == payment.StatusCharged {
			captured := amount
			rd.AmountCaptured = &captured
		}
	case payment.StatusCaptureFailed, payment.StatusFailure:
		rd.SetError(envelope.ErrorResponse{
			Code:                   "capture_failed",
			Message:                "connector declined the capture",
			StatusCode:             crd.ConnectorHTTPStatusCode,
			ConnectorTransactionID: auth.ResourceID,
		}, payment.StatusCaptureFailed)
		rd.AmountCaptured = nil
	default:
		rd.SetResponse(auth, payment.StatusCaptureInitiated)
	}
}
