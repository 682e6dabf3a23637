package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	middlewarex "payswitch/internal/http/middleware"
	"payswitch/internal/orchestrator"
	"payswitch/internal/store/repositories"
)

// Payments holds what the dispatch handlers need.
type Payments struct {
	Orchestrator *orchestrator.Orchestrator
	Accounts     repositories.MerchantConnectorAccountRepository
	Intents      repositories.IntentRepository
	AESKey       []byte
}

type paymentResp struct {
	PaymentID              string                    `json:"paymentId"`
	AttemptID              string                    `json:"attemptId"`
	Connector              string                    `json:"connector"`
	Status                 payment.AttemptStatus     `json:"status"`
	GatewaySystem          payment.GatewaySystem     `json:"gatewaySystem,omitempty"`
	ConnectorTransactionID string                    `json:"connectorTransactionId,omitempty"`
	NetworkTransactionID   string                    `json:"networkTransactionId,omitempty"`
	Redirect               *envelope.RedirectForm    `json:"redirect,omitempty"`
	MandateReference       *payment.MandateReference `json:"mandateReference,omitempty"`
	AmountCaptured         *payment.MinorUnit        `json:"amountCaptured,omitempty"`
	IntegrityMismatch      string                    `json:"integrityMismatch,omitempty"`
	Error                  *envelope.ErrorResponse   `json:"error,omitempty"`
}

func paymentView[F envelope.Flow, Req any](rd *envelope.RouterData[F, Req, envelope.PaymentsResponseData]) paymentResp {
	out := paymentResp{
		PaymentID:      rd.PaymentID,
		AttemptID:      rd.AttemptID,
		Connector:      rd.Connector,
		Status:         rd.Status,
		GatewaySystem:  rd.GatewaySystem,
		AmountCaptured: rd.AmountCaptured,
	}
	if rd.IntegrityCheck != nil {
		out.IntegrityMismatch = rd.IntegrityCheck.FieldNames
	}
	resp, e := rd.Response()
	if e != nil {
		out.Error = e
		out.ConnectorTransactionID = e.ConnectorTransactionID
		return out
	}
	out.ConnectorTransactionID = resp.ResourceID
	out.NetworkTransactionID = resp.NetworkTxnID
	out.Redirect = resp.RedirectionData
	out.MandateReference = resp.MandateReference
	return out
}

type refundResp struct {
	PaymentID         string                  `json:"paymentId"`
	RefundID          string                  `json:"refundId"`
	ConnectorRefundID string                  `json:"connectorRefundId,omitempty"`
	RefundStatus      envelope.RefundStatus   `json:"refundStatus,omitempty"`
	Error             *envelope.ErrorResponse `json:"error,omitempty"`
}

func refundView[F envelope.Flow](rd *envelope.RouterData[F, envelope.RefundsData, envelope.RefundsResponseData]) refundResp {
	out := refundResp{PaymentID: rd.PaymentID, RefundID: rd.Request.RefundID}
	resp, e := rd.Response()
	if e != nil {
		out.Error = e
		return out
	}
	out.ConnectorRefundID = resp.ConnectorRefundID
	out.RefundStatus = resp.RefundStatus
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// httpError carries the status a request setup failure maps to.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func fail(w http.ResponseWriter, err error) {
	var he *httpError
	if errors.As(err, &he) {
		http.Error(w, he.msg, he.code)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// common resolves the merchant's connector account and builds the shared
// envelope fields for one attempt.
func (p Payments) common(ctx context.Context, merchantID, paymentID, currency string, in attemptReq) (envelope.Common, error) {
	connectorName := strings.ToLower(strings.TrimSpace(in.Connector))
	if connectorName == "" {
		return envelope.Common{}, &httpError{http.StatusBadRequest, "connector is required"}
	}
	mca, err := p.account(ctx, merchantID, connectorName, in.Label)
	if err != nil {
		return envelope.Common{}, err
	}
	auth, err := mca.OpenAuth(p.AESKey)
	if err != nil {
		log.Error().Err(err).Str("mca_id", mca.ID).Msg("failed to open connector credentials")
		return envelope.Common{}, &httpError{http.StatusInternalServerError, "connector credentials unavailable"}
	}
	if currency != "" {
		if auth, err = auth.ForCurrency(currency); err != nil {
			return envelope.Common{}, &httpError{http.StatusUnprocessableEntity, err.Error()}
		}
	}

	attemptID := in.AttemptID
	if attemptID == "" {
		attemptID = uuid.NewString()
	}
	reference := in.ReferenceID
	if reference == "" {
		reference = attemptID
	}
	return envelope.Common{
		Connector:                   connectorName,
		MerchantID:                  merchantID,
		PaymentID:                   paymentID,
		AttemptID:                   attemptID,
		ConnectorRequestReferenceID: reference,
		Status:                      payment.StatusStarted,
		ConnectorAuthType:           auth,
		MerchantConnectorAccountID:  mca.ID,
		TestMode:                    mca.TestMode,
	}, nil
}

func (p Payments) account(ctx context.Context, merchantID, connectorName, label string) (*credential.MerchantConnectorAccount, error) {
	if label == "" {
		mca, err := p.Accounts.FindByMerchantAndConnector(ctx, merchantID, connectorName)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &httpError{http.StatusNotFound, "connector account not found"}
		}
		return mca, err
	}
	all, err := p.Accounts.FindByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	for _, mca := range all {
		if mca.ConnectorName == connectorName && mca.Label == label && !mca.Disabled {
			return mca, nil
		}
	}
	return nil, &httpError{http.StatusNotFound, "connector account not found"}
}

// intent loads the payment a follow-up flow belongs to.
func (p Payments) intent(ctx context.Context, merchantID, paymentID string) (*payment.Intent, error) {
	in, err := p.Intents.FindByID(ctx, paymentID)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && in.MerchantID != merchantID) {
		return nil, &httpError{http.StatusNotFound, "payment not found"}
	}
	return in, err
}

// record stores the attempt's outcome on the payment. A failure here is
// logged and does not change the response.
func (p Payments) record(ctx context.Context, v paymentResp) {
	if err := p.Intents.RecordAttempt(ctx, v.PaymentID, v.Connector, v.ConnectorTransactionID, v.Status); err != nil {
		log.Error().Err(err).Str("payment_id", v.PaymentID).Str("status", string(v.Status)).Msg("failed to record payment status")
	}
}

// admit reports whether an existing payment may start a new attempt. Only a
// payment still in Started can; any other already reached a connector, so
// the stored state is answered with 409 and nothing is dispatched.
func admit(w http.ResponseWriter, existing *payment.Intent, merchantID string) bool {
	if existing.MerchantID != merchantID {
		http.Error(w, "payment not found", http.StatusNotFound)
		return false
	}
	if existing.Status == payment.StatusStarted {
		return true
	}
	writeJSON(w, http.StatusConflict, paymentResp{
		PaymentID:              existing.ID,
		Connector:              existing.Connector,
		Status:                 existing.Status,
		GatewaySystem:          existing.FeatureMetadata.GatewaySystem,
		ConnectorTransactionID: existing.ConnectorTransactionID,
		Error: &envelope.ErrorResponse{
			Code:       "payment_already_attempted",
			Message:    "payment " + existing.ID + " is " + string(existing.Status),
			StatusCode: http.StatusConflict,
		},
	})
	return false
}

// Authorize creates the payment on first use and runs the authorize flow.
func (p Payments) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, _ := middlewarex.MerchantID(r.Context())

		var in authorizeReq
		if !decode(w, r, &in) {
			return
		}
		if err := in.validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, err := in.data()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		existing, err := p.Intents.FindByID(ctx, in.PaymentID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			existing = nil
		case err != nil:
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		case !admit(w, existing, merchantID):
			return
		}

		c, err := p.common(ctx, merchantID, in.PaymentID, string(req.Currency), in.attemptReq)
		if err != nil {
			fail(w, err)
			return
		}
		c.PaymentMethod = req.PaymentMethodData.Type()
		c.AuthType = payment.AuthenticationType(in.AuthenticationType)
		c.Description = in.Description
		c.ReturnURL = in.ReturnURL

		if existing == nil {
			intent := &payment.Intent{
				ID:            in.PaymentID,
				MerchantID:    merchantID,
				Amount:        req.Amount,
				Currency:      req.Currency,
				Status:        payment.StatusStarted,
				CaptureMethod: req.CaptureMethod,
			}
			if err := p.Intents.Save(ctx, intent); err != nil {
				log.Error().Err(err).Str("payment_id", in.PaymentID).Msg("failed to create payment")
				http.Error(w, "failed to persist payment", http.StatusInternalServerError)
				return
			}
		}

		rd := envelope.New[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData](c, req)
		rd = p.Orchestrator.Authorize(ctx, rd)
		v := paymentView(rd)
		p.record(ctx, v)
		writeJSON(w, http.StatusOK, v)
	}
}

// followUp resolves the payment and envelope fields of a call on an
// existing payment.
func (p Payments) followUp(w http.ResponseWriter, r *http.Request, in attemptReq) (envelope.Common, *payment.Intent, bool) {
	merchantID, _ := middlewarex.MerchantID(r.Context())
	paymentID := chi.URLParam(r, "paymentId")
	intent, err := p.intent(r.Context(), merchantID, paymentID)
	if err != nil {
		fail(w, err)
		return envelope.Common{}, nil, false
	}
	c, err := p.common(r.Context(), merchantID, paymentID, string(intent.Currency), in)
	if err != nil {
		fail(w, err)
		return envelope.Common{}, nil, false
	}
	c.Status = intent.Status
	c.GatewaySystem = intent.FeatureMetadata.GatewaySystem
	return c, intent, true
}

func captureMethod(requested string, intent *payment.Intent) payment.CaptureMethod {
	if requested != "" {
		return payment.CaptureMethod(requested)
	}
	return intent.CaptureMethod
}

func (p Payments) Capture() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in captureReq
		if !decode(w, r, &in) {
			return
		}
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		amount := payment.MinorUnit(in.Amount)
		if amount == 0 {
			amount = intent.Amount
		}
		paymentAmount := payment.MinorUnit(in.PaymentAmount)
		if paymentAmount == 0 {
			paymentAmount = intent.Amount
		}
		req := envelope.CaptureData{
			AmountToCapture:        amount,
			Currency:               intent.Currency,
			ConnectorTransactionID: in.ConnectorTransactionID,
			PaymentAmount:          paymentAmount,
			CaptureMethod:          captureMethod(in.CaptureMethod, intent),
		}
		if in.Sequence > 0 {
			req.MultipleCaptureData = &envelope.MultipleCaptureData{CaptureSequence: in.Sequence, CaptureReference: in.CaptureReference}
		}
		rd := p.Orchestrator.Capture(r.Context(), envelope.New[envelope.Capture, envelope.CaptureData, envelope.PaymentsResponseData](c, req))
		v := paymentView(rd)
		p.record(r.Context(), v)
		writeJSON(w, http.StatusOK, v)
	}
}

func (p Payments) Void() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in voidReq
		if !decode(w, r, &in) {
			return
		}
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		amount := intent.Amount
		req := envelope.CancelData{
			ConnectorTransactionID: in.ConnectorTransactionID,
			CancellationReason:     in.Reason,
			Amount:                 &amount,
			Currency:               intent.Currency,
		}
		rd := p.Orchestrator.Void(r.Context(), envelope.New[envelope.Void, envelope.CancelData, envelope.PaymentsResponseData](c, req))
		v := paymentView(rd)
		p.record(r.Context(), v)
		writeJSON(w, http.StatusOK, v)
	}
}

func (p Payments) Sync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in syncReq
		if !decode(w, r, &in) {
			return
		}
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		req := envelope.SyncData{
			ConnectorTransactionID: in.ConnectorTransactionID,
			CaptureMethod:          captureMethod(in.CaptureMethod, intent),
			SyncType:               envelope.SyncType{MultipleCaptureIDs: in.CaptureIDs},
			Amount:                 intent.Amount,
			Currency:               intent.Currency,
		}
		rd := p.Orchestrator.PSync(r.Context(), envelope.New[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData](c, req))
		v := paymentView(rd)
		p.record(r.Context(), v)
		writeJSON(w, http.StatusOK, v)
	}
}

func (p Payments) CompleteAuthorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in completeReq
		if !decode(w, r, &in) {
			return
		}
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		req := envelope.CompleteAuthorizeData{
			Amount:                 intent.Amount,
			Currency:               intent.Currency,
			CaptureMethod:          captureMethod(in.CaptureMethod, intent),
			ConnectorTransactionID: in.ConnectorTransactionID,
			RedirectResponse:       &envelope.RedirectResponse{Params: in.Params, Payload: in.Payload},
		}
		rd := p.Orchestrator.CompleteAuthorize(r.Context(), envelope.New[envelope.CompleteAuthorize, envelope.CompleteAuthorizeData, envelope.PaymentsResponseData](c, req))
		v := paymentView(rd)
		p.record(r.Context(), v)
		writeJSON(w, http.StatusOK, v)
	}
}

func (p Payments) refundData(in refundReq, intent *payment.Intent) envelope.RefundsData {
	paymentAmount := payment.MinorUnit(in.PaymentAmount)
	if paymentAmount == 0 {
		paymentAmount = intent.Amount
	}
	return envelope.RefundsData{
		RefundID:               in.RefundID,
		ConnectorTransactionID: in.ConnectorTransactionID,
		ConnectorRefundID:      in.ConnectorRefundID,
		Currency:               intent.Currency,
		PaymentAmount:          paymentAmount,
		RefundAmount:           payment.MinorUnit(in.Amount),
		Reason:                 in.Reason,
	}
}

// Refund does not change the payment's status.
func (p Payments) Refund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in refundReq
		if !decode(w, r, &in) {
			return
		}
		if in.RefundID == "" {
			in.RefundID = uuid.NewString()
		}
		if in.Amount <= 0 {
			http.Error(w, "amount must be positive", http.StatusBadRequest)
			return
		}
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		rd := p.Orchestrator.Refund(r.Context(), envelope.New[envelope.Execute, envelope.RefundsData, envelope.RefundsResponseData](c, p.refundData(in, intent)))
		writeJSON(w, http.StatusOK, refundView(rd))
	}
}

func (p Payments) RefundSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in refundReq
		if !decode(w, r, &in) {
			return
		}
		in.RefundID = chi.URLParam(r, "refundId")
		c, intent, ok := p.followUp(w, r, in.attemptReq)
		if !ok {
			return
		}
		rd := p.Orchestrator.RSync(r.Context(), envelope.New[envelope.RSync, envelope.RefundsData, envelope.RefundsResponseData](c, p.refundData(in, intent)))
		writeJSON(w, http.StatusOK, refundView(rd))
	}
}

// SetupMandate stores a credential without charging it. The payment id
// names the zero-amount intent the mandate is set up under.
func (p Payments) SetupMandate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, _ := middlewarex.MerchantID(r.Context())

		var in setupMandateReq
		if !decode(w, r, &in) {
			return
		}
		if in.PaymentID == "" || in.Currency == "" {
			http.Error(w, "paymentId and currency are required", http.StatusBadRequest)
			return
		}
		if in.CustomerAcceptance == nil {
			http.Error(w, "customerAcceptance is required", http.StatusBadRequest)
			return
		}
		pm, err := in.PaymentMethod.resolve()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		existing, err := p.Intents.FindByID(ctx, in.PaymentID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			existing = nil
		case err != nil:
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		case !admit(w, existing, merchantID):
			return
		}

		currency := payment.Currency(strings.ToUpper(in.Currency))
		c, err := p.common(ctx, merchantID, in.PaymentID, string(currency), in.attemptReq)
		if err != nil {
			fail(w, err)
			return
		}
		c.PaymentMethod = pm.Type()

		req := envelope.SetupMandateData{
			Currency:           currency,
			PaymentMethodData:  pm,
			CustomerAcceptance: in.CustomerAcceptance.resolve(),
			SetupFutureUsage:   payment.FutureUsageOffSession,
			OffSession:         true,
			Email:              in.Email,
			BrowserInfo:        in.Browser.resolve(),
			Metadata:           in.Metadata,
		}
		var amount payment.MinorUnit
		if in.Amount != nil {
			amount = payment.MinorUnit(*in.Amount)
			req.Amount = &amount
		}
		if existing == nil {
			if err := p.Intents.Save(ctx, &payment.Intent{
				ID:         in.PaymentID,
				MerchantID: merchantID,
				Amount:     amount,
				Currency:   currency,
				Status:     payment.StatusStarted,
			}); err != nil {
				http.Error(w, "failed to persist payment", http.StatusInternalServerError)
				return
			}
		}

		rd := p.Orchestrator.SetupMandate(ctx, envelope.New[envelope.SetupMandate, envelope.SetupMandateData, envelope.PaymentsResponseData](c, req))
		v := paymentView(rd)
		p.record(ctx, v)
		writeJSON(w, http.StatusOK, v)
	}
}
