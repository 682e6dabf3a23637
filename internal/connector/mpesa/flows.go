package mpesa

import (
	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
	"payswitch/internal/normalize"
)

type (
	tokenData     = envelope.RouterData[envelope.AccessTokenAuth, envelope.AccessTokenRequestData, envelope.AccessToken]
	authorizeData = envelope.RouterData[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData]
	psyncData     = envelope.RouterData[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData]
)

// access token

type accessToken struct{ *Connector }

func (a accessToken) GetHeaders(rd *tokenData) (base.Headers, error) {
	return a.AuthHeaders(rd.ConnectorAuthType)
}

func (a accessToken) GetURL(*tokenData) (string, error) {
	return a.url("/oauth/v1/generate?grant_type=client_credentials"), nil
}

func (a accessToken) GetRequestBody(*tokenData) (*base.RequestBody, error) { return nil, nil }

func (a accessToken) BuildRequest(rd *tokenData) (*base.Request, error) {
	return connector.BuildRequest(a, rd, base.MethodGet)
}

func (a accessToken) HandleResponse(rd *tokenData, res *base.Response) (*tokenData, error) {
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" {
		return nil, errs.ResponseDeserializationFailed(errs.MissingRequiredField("access_token"))
	}
	rd.SetResponse(envelope.AccessToken{Token: body.AccessToken, ExpiresIn: expiresIn(body.ExpiresIn)}, rd.Status)
	return rd, nil
}

// STK push

type stkPush struct{ *Connector }

type stkRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// phoneOf extracts the handset number. Daraja can only charge mobile money.
type phoneOf struct {
	phone *string
}

func (p phoneOf) VisitCard(*payment.Card) error { return errs.NotSupported("card", ID) }
func (p phoneOf) VisitWallet(*payment.Wallet) error {
	return errs.NotSupported("wallet", ID)
}
func (p phoneOf) VisitBankRedirect(*payment.BankRedirect) error {
	return errs.NotSupported("bank redirect", ID)
}
func (p phoneOf) VisitMobileMoney(m *payment.MobileMoney) error {
	*p.phone = m.PhoneNumber
	return nil
}
func (p phoneOf) VisitMandate(*payment.MandatePayment) error {
	return errs.NotSupported("mandate payment", ID)
}

func (s stkPush) GetHeaders(rd *authorizeData) (base.Headers, error) { return s.bearer(&rd.Common) }

func (s stkPush) GetURL(*authorizeData) (string, error) {
	return s.url("/mpesa/stkpush/v1/processrequest"), nil
}

func (s stkPush) GetRequestBody(rd *authorizeData) (*base.RequestBody, error) {
	a, err := parseAuth(rd.ConnectorAuthType)
	if err != nil {
		return nil, err
	}
	r := rd.Request
	if r.PaymentMethodData == nil {
		return nil, errs.MissingRequiredField("payment_method_data")
	}
	var raw string
	if err := r.PaymentMethodData.Accept(phoneOf{phone: &raw}); err != nil {
		return nil, err
	}
	phone, err := s.phones.ValidatePhone(raw)
	if err != nil {
		return nil, err
	}
	if err := s.amounts.ValidateAmount(r.Amount, r.Currency); err != nil {
		return nil, err
	}
	amount, err := wholeShillings(r.Amount)
	if err != nil {
		return nil, err
	}
	if s.callbackURL == "" {
		return nil, errs.InvalidConnectorConfig("callback_url")
	}
	desc := rd.Description
	if desc == "" {
		desc = "Payment " + rd.PaymentID
	}
	pwd, ts := s.password(a)
	return base.JSONBody(stkRequest{
		BusinessShortCode: a.shortcode,
		Password:          pwd,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            a.shortcode,
		PhoneNumber:       phone,
		CallBackURL:       s.callbackURL,
		AccountReference:  rd.PaymentID,
		TransactionDesc:   desc,
	})
}

func (s stkPush) BuildRequest(rd *authorizeData) (*base.Request, error) {
	return connector.BuildRequest(s, rd, base.MethodPost)
}

func (s stkPush) HandleResponse(rd *authorizeData, res *base.Response) (*authorizeData, error) {
	var body stkResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	if body.ErrorCode != "" || body.ResponseCode != "0" {
		code := body.ErrorCode
		if code == "" {
			code = body.ResponseCode
		}
		msg := body.ErrorMessage
		if msg == "" {
			msg = body.ResponseDescription
		}
		normalize.ApplyErrorResponse(rd, envelope.ErrorResponse{Code: code, Message: msg, StatusCode: res.StatusCode})
		return rd, nil
	}

	s.logOperation("stk_push", map[string]any{
		"checkout_request_id": body.CheckoutRequestID,
		"payment_id":          rd.PaymentID,
	})
	rd.SetResponse(envelope.PaymentsResponseData{
		ResourceID:                   body.CheckoutRequestID,
		ConnectorResponseReferenceID: body.MerchantRequestID,
	}, normalize.AuthorizeStatus(rd.Request.CaptureMethod, normalize.OutcomePending, false))
	return rd, nil
}

// STK query

type stkQuery struct{ *Connector }

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// stillProcessing is returned while the customer has not answered the prompt
const stillProcessing = "500.001.1001"

func queryOutcome(resultCode string) normalize.Outcome {
	switch resultCode {
	case "0":
		return normalize.OutcomeSucceeded
	case "":
		return normalize.OutcomePending
	}
	return normalize.OutcomeDeclined
}

func (q stkQuery) GetHeaders(rd *psyncData) (base.Headers, error) { return q.bearer(&rd.Common) }

func (q stkQuery) GetURL(*psyncData) (string, error) {
	return q.url("/mpesa/stkpushquery/v1/query"), nil
}

func (q stkQuery) GetRequestBody(rd *psyncData) (*base.RequestBody, error) {
	a, err := parseAuth(rd.ConnectorAuthType)
	if err != nil {
		return nil, err
	}
	if rd.Request.ConnectorTransactionID == "" {
		return nil, errs.MissingRequiredField("connector_transaction_id")
	}
	pwd, ts := q.password(a)
	return base.JSONBody(map[string]string{
		"BusinessShortCode": a.shortcode,
		"Password":          pwd,
		"Timestamp":         ts,
		"CheckoutRequestID": rd.Request.ConnectorTransactionID,
	})
}

func (q stkQuery) BuildRequest(rd *psyncData) (*base.Request, error) {
	return connector.BuildRequest(q, rd, base.MethodPost)
}

func (q stkQuery) HandleResponse(rd *psyncData, res *base.Response) (*psyncData, error) {
	var body stkQueryResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	data := envelope.PaymentsResponseData{
		ResourceID:                   rd.Request.ConnectorTransactionID,
		ConnectorResponseReferenceID: body.MerchantRequestID,
	}
	if body.ErrorCode == stillProcessing {
		rd.SetResponse(data, payment.StatusPending)
		return rd, nil
	}
	if body.ErrorCode != "" {
		normalize.ApplyErrorResponse(rd, envelope.ErrorResponse{Code: body.ErrorCode, Message: body.ErrorMessage, StatusCode: res.StatusCode})
		return rd, nil
	}

	o := queryOutcome(body.ResultCode)
	if o == normalize.OutcomeDeclined {
		failed := payment.StatusFailure
		rd.SetError(envelope.ErrorResponse{
			Code:                   body.ResultCode,
			Message:                body.ResultDesc,
			StatusCode:             res.StatusCode,
			AttemptStatus:          &failed,
			ConnectorTransactionID: rd.Request.ConnectorTransactionID,
		}, failed)
		return rd, nil
	}
	rd.SetResponse(data, normalize.AuthorizeStatus(payment.CaptureAutomatic, o, false))
	return rd, nil
}
