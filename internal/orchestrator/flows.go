package orchestrator

import (
	"context"

	"payswitch/internal/connector"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/normalize"
	"payswitch/internal/telemetry"
)

// direct runs a flow that only exists on the adapter substrate: access token
// pre-step, then dispatch.
func direct[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp]) (connector.Capabilities, bool) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator."+rd.FlowName())
	defer span.End()

	caps, err := o.capabilities(rd.Connector)
	if err != nil {
		normalize.ApplyError(rd, err)
		return caps, false
	}
	if rd.GatewaySystem == "" {
		rd.GatewaySystem = payment.GatewayDirect
	}
	if err := addAccessToken(ctx, o, rd, caps); err != nil {
		normalize.ApplyError(rd, err)
		return caps, false
	}
	dispatch(ctx, o, rd)
	return caps, true
}

// unifiedAccessToken attaches the connector account's access token before a
// unified call and reports whether the call may go ahead. Connectors
// without a direct adapter leave tokens to the unified service.
func unifiedAccessToken[F envelope.Flow, Req, Resp any](ctx context.Context, o *Orchestrator, rd *envelope.RouterData[F, Req, Resp]) bool {
	c, err := o.registry.Get(rd.Connector)
	if err != nil {
		return true
	}
	if err := addAccessToken(ctx, o, rd, c.Capabilities()); err != nil {
		normalize.ApplyError(rd, err)
		return false
	}
	return true
}

// Capture settles a previous authorization.
func (o *Orchestrator) Capture(ctx context.Context, rd *CaptureRouterData) *CaptureRouterData {
	defer logOutcome(rd)
	if rd.Request.PaymentAmount == 0 {
		rd.Request.PaymentAmount = rd.Request.AmountToCapture
	}
	direct(ctx, o, rd)
	return rd
}

// Void cancels an authorization that has not been captured.
func (o *Orchestrator) Void(ctx context.Context, rd *VoidRouterData) *VoidRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}

// PSync looks up the current state of a payment on the substrate the
// payment is bound to.
func (o *Orchestrator) PSync(ctx context.Context, rd *PSyncRouterData) *PSyncRouterData {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.psync")
	defer span.End()
	defer logOutcome(rd)

	system, err := o.decide(ctx, &rd.Common, rd.FlowName())
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	rd.GatewaySystem = system
	if system == payment.GatewayUnified {
		if unifiedAccessToken(ctx, o, rd) {
			o.bridge.Get(ctx, rd)
		}
		return rd
	}

	if rd.Request.SyncType.IsMultipleCapture() && !o.syncsCapturesInBulk(rd.Connector) {
		o.syncCapturesIndividually(ctx, rd)
		return rd
	}
	direct(ctx, o, rd)
	return rd
}

// syncsCapturesInBulk reports whether the connector answers a multiple
// capture sync with one call. Connectors without the hook are synced one
// capture at a time.
func (o *Orchestrator) syncsCapturesInBulk(id string) bool {
	_, in, err := connector.Lookup[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData](o.registry, id)
	if err != nil {
		return true
	}
	s, ok := in.(connector.MultipleCaptureSyncer)
	if !ok {
		return false
	}
	m, err := s.MultipleCaptureSyncMethod()
	return err != nil || m == connector.CaptureSyncBulk
}

// syncCapturesIndividually issues one lookup per capture id and aggregates
// the results into rd.
func (o *Orchestrator) syncCapturesIndividually(ctx context.Context, rd *PSyncRouterData) {
	var (
		merged   envelope.PaymentsResponseData
		captured payment.MinorUnit
		statuses []payment.AttemptStatus
	)
	for _, id := range rd.Request.SyncType.MultipleCaptureIDs {
		req := rd.Request
		req.ConnectorTransactionID = id
		req.SyncType = envelope.SyncType{}
		srd := envelope.Convert[envelope.PSync, envelope.PaymentsResponseData](rd, req)
		direct(ctx, o, srd)
		copyDispatchMeta(&rd.Common, &srd.Common)

		resp, e := srd.Response()
		if e != nil {
			normalize.ApplyErrorResponse(rd, *e)
			return
		}
		c := envelope.CaptureSyncResponse{ConnectorCaptureID: id, Status: srd.Status}
		if srd.AmountCaptured != nil {
			c.Amount = *srd.AmountCaptured
			captured += c.Amount
		}
		merged.Captures = append(merged.Captures, c)
		if merged.ResourceID == "" {
			merged.ResourceID = resp.ResourceID
		}
		statuses = append(statuses, srd.Status)
	}
	rd.SetResponse(merged, captureSyncStatus(statuses))
	if captured > 0 {
		rd.AmountCaptured = &captured
	}
}

// captureSyncStatus aggregates the statuses of individually synced
// captures. A failed capture decides the result, then one still in flight;
// settled captures that are not all Charged make PartialCharged.
func captureSyncStatus(statuses []payment.AttemptStatus) payment.AttemptStatus {
	out := payment.StatusCharged
	for _, s := range statuses {
		switch {
		case s.IsFailure():
			return s
		case s == payment.StatusPending, s == payment.StatusCaptureInitiated, s == payment.StatusUnresolved:
			out = s
		case s != payment.StatusCharged && out == payment.StatusCharged:
			out = payment.StatusPartialCharged
		}
	}
	return out
}

// Refund returns funds of a settled payment.
func (o *Orchestrator) Refund(ctx context.Context, rd *RefundRouterData) *RefundRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}

// RSync looks up the state of a refund.
func (o *Orchestrator) RSync(ctx context.Context, rd *RSyncRouterData) *RSyncRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}

// SetupMandate stores a credential for later merchant-initiated charges.
func (o *Orchestrator) SetupMandate(ctx context.Context, rd *SetupMandateRouterData) *SetupMandateRouterData {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.setup_mandate")
	defer span.End()
	defer logOutcome(rd)

	system, err := o.decide(ctx, &rd.Common, rd.FlowName())
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	rd.GatewaySystem = system
	if system == payment.GatewayUnified {
		if unifiedAccessToken(ctx, o, rd) {
			o.bridge.Register(ctx, rd)
		}
		return rd
	}

	caps, err := o.capabilities(rd.Connector)
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	if err := addAccessToken(ctx, o, rd, caps); err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	if err := createConnectorCustomer(ctx, o, rd, caps, rd.Request.Email); err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	dispatch(ctx, o, rd)
	return rd
}

// CompleteAuthorize finishes an authorization after the customer returned
// from a redirect, including the follow-up capture an authorize would run.
// The payment stays on the substrate its authorization used.
func (o *Orchestrator) CompleteAuthorize(ctx context.Context, rd *CompleteRouterData) *CompleteRouterData {
	defer logOutcome(rd)

	system, err := o.decide(ctx, &rd.Common, rd.FlowName())
	if err != nil {
		normalize.ApplyError(rd, err)
		return rd
	}
	rd.GatewaySystem = system
	if system == payment.GatewayUnified {
		if !unifiedAccessToken(ctx, o, rd) {
			return rd
		}
		o.bridge.CompleteAuthorize(ctx, rd)
		if resp, e := rd.Response(); e == nil && awaitsUnifiedCapture(rd.Status, rd.Request.CaptureMethod, system) {
			rd.SetResponse(resp, payment.StatusCaptureInitiated)
		}
		return rd
	}

	caps, ok := direct(ctx, o, rd)
	if !ok || !rd.Ok() {
		return rd
	}
	if needsFollowUpCapture(rd.Status, rd.Request.CaptureMethod, rd.GatewaySystem, caps) {
		captureFollowUp(ctx, o, rd, rd.Request.Amount, rd.Request.Currency, rd.Request.CaptureMethod)
	}
	return rd
}

// PreProcessing runs a connector's pre-authorization step on its own, e.g.
// a 3DS enrollment lookup.
func (o *Orchestrator) PreProcessing(ctx context.Context, rd *PreProcessingRouterData) *PreProcessingRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}

func (o *Orchestrator) PostProcessing(ctx context.Context, rd *PostProcessingRouterData) *PostProcessingRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}

func (o *Orchestrator) CreateOrder(ctx context.Context, rd *CreateOrderRouterData) *CreateOrderRouterData {
	defer logOutcome(rd)
	direct(ctx, o, rd)
	return rd
}
