package dummy

import (
	"strings"

	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
	"payswitch/internal/normalize"
)

type cardPayload struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"exp_month"`
	ExpiryYear  string `json:"exp_year"`
	CVC         string `json:"cvc,omitempty"`
	HolderName  string `json:"holder_name,omitempty"`
}

type walletPayload struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type acceptancePayload struct {
	Type       string `json:"type"`
	AcceptedAt string `json:"accepted_at"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

type paymentRequest struct {
	Amount            int64              `json:"amount"`
	Currency          string             `json:"currency"`
	Capture           bool               `json:"capture"`
	Reference         string             `json:"reference"`
	Description       string             `json:"description,omitempty"`
	ReturnURL         string             `json:"return_url,omitempty"`
	ThreeDS           bool               `json:"three_ds"`
	Card              *cardPayload       `json:"card,omitempty"`
	Wallet            *walletPayload     `json:"wallet,omitempty"`
	Customer          string             `json:"customer,omitempty"`
	SavePaymentMethod bool               `json:"save_payment_method,omitempty"`
	Acceptance        *acceptancePayload `json:"customer_acceptance,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

// methodBuilder fills the instrument part of a request. Families this
// processor cannot charge are rejected explicitly.
type methodBuilder struct {
	req *paymentRequest
}

func (b methodBuilder) VisitCard(c *payment.Card) error {
	if c.Number == "" {
		return errs.MissingRequiredField("payment_method_data.card.number")
	}
	b.req.Card = &cardPayload{
		Number:      c.Number,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
		CVC:         c.CVC,
		HolderName:  c.HolderName,
	}
	return nil
}

func (b methodBuilder) VisitWallet(w *payment.Wallet) error {
	switch w.Kind {
	case payment.WalletGooglePay, payment.WalletApplePay:
		if w.Token == "" {
			return errs.MissingRequiredField("payment_method_data.wallet.token")
		}
		b.req.Wallet = &walletPayload{Type: string(w.Kind), Token: w.Token}
		return nil
	}
	return errs.NotSupported("wallet "+string(w.Kind), ID)
}

func (b methodBuilder) VisitBankRedirect(*payment.BankRedirect) error {
	return errs.NotSupported("bank redirect", ID)
}

func (b methodBuilder) VisitMobileMoney(*payment.MobileMoney) error {
	return errs.NotSupported("mobile money", ID)
}

func (b methodBuilder) VisitMandate(*payment.MandatePayment) error {
	return errs.NotSupported("mandate payment on a fresh authorization", ID)
}

func buildPaymentMethod(req *paymentRequest, pm payment.PaymentMethodData) error {
	if pm == nil {
		return errs.MissingRequiredField("payment_method_data")
	}
	return pm.Accept(methodBuilder{req: req})
}

func acceptance(a *payment.CustomerAcceptance) *acceptancePayload {
	if a == nil {
		return nil
	}
	return &acceptancePayload{
		Type:       string(a.Type),
		AcceptedAt: a.AcceptedAt.UTC().Format("2006-01-02T15:04:05Z"),
		IPAddress:  a.IPAddress,
		UserAgent:  a.UserAgent,
	}
}

type nextAction struct {
	RedirectURL string            `json:"redirect_url"`
	Method      string            `json:"method"`
	Fields      map[string]string `json:"fields"`
}

type paymentResponse struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Amount       int64       `json:"amount"`
	Currency     string      `json:"currency"`
	Captured     int64       `json:"amount_captured"`
	Reference    string      `json:"reference"`
	MandateID    string      `json:"mandate_id"`
	NetworkTxnID string      `json:"network_transaction_id"`
	NextAction   *nextAction `json:"next_action"`
	FailureCode  string      `json:"failure_code"`
	FailureMsg   string      `json:"failure_message"`
	Captures     []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"captures"`
}

func outcome(status string) normalize.Outcome {
	switch strings.ToLower(status) {
	case "succeeded", "captured", "canceled", "cancelled":
		return normalize.OutcomeSucceeded
	case "authorized", "requires_capture":
		return normalize.OutcomeAuthorized
	case "requires_action":
		return normalize.OutcomeRequiresAction
	case "processing", "pending":
		return normalize.OutcomePending
	case "failed", "declined":
		return normalize.OutcomeDeclined
	}
	return normalize.OutcomeUnknown
}

// declineError is the failure outcome of a 2xx response that reports a
// decline.
func (p paymentResponse) declineError(statusCode int) envelope.ErrorResponse {
	code := p.FailureCode
	if code == "" {
		code = string(errs.KindDeclined)
	}
	return envelope.ErrorResponse{
		Code:                   code,
		Message:                p.FailureMsg,
		StatusCode:             statusCode,
		ConnectorTransactionID: p.ID,
		Class:                  errs.ClassBusinessDecline,
	}
}

// setPaymentOutcome records an authorize-like result on rd.
func setPaymentOutcome[F envelope.Flow, Req any](rd *envelope.RouterData[F, Req, envelope.PaymentsResponseData], body paymentResponse, cm payment.CaptureMethod, statusCode int) {
	data := body.toResponseData()
	status := normalize.AuthorizeStatus(cm, outcome(body.Status), data.RedirectionData != nil)
	if status == payment.StatusFailure {
		rd.SetError(body.declineError(statusCode), status)
		return
	}
	rd.SetResponse(data, status)
}

func (p paymentResponse) toResponseData() envelope.PaymentsResponseData {
	out := envelope.PaymentsResponseData{
		ResourceID:                   p.ID,
		NetworkTxnID:                 p.NetworkTxnID,
		ConnectorResponseReferenceID: p.Reference,
	}
	if p.NextAction != nil && p.NextAction.RedirectURL != "" {
		method := p.NextAction.Method
		if method == "" {
			method = "GET"
		}
		out.RedirectionData = &envelope.RedirectForm{
			Endpoint:   p.NextAction.RedirectURL,
			Method:     method,
			FormFields: p.NextAction.Fields,
		}
	}
	if p.MandateID != "" {
		out.MandateReference = &payment.MandateReference{ConnectorMandateID: p.MandateID}
	}
	if p.Currency != "" {
		out.Integrity = &envelope.ResponseIntegrity{
			Amount:   payment.MinorUnit(p.Amount),
			Currency: payment.Currency(strings.ToUpper(p.Currency)),
		}
	}
	for _, c := range p.Captures {
		out.Captures = append(out.Captures, envelope.CaptureSyncResponse{
			ConnectorCaptureID: c.ID,
			Status:             normalize.CaptureStatus(outcome(c.Status), false),
			Amount:             payment.MinorUnit(c.Amount),
		})
	}
	return out
}

type refundRequest struct {
	Payment   string `json:"payment"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type customerRequest struct {
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Description string `json:"description,omitempty"`
}

type customerResponse struct {
	ID string `json:"id"`
}

type lookupResponse struct {
	Enrolled    bool        `json:"enrolled"`
	Reference   string      `json:"reference"`
	NextAction  *nextAction `json:"next_action"`
	Description string      `json:"description"`
}
