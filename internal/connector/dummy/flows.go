package dummy

import (
	"net/url"

	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
	"payswitch/internal/normalize"
)

type (
	authorizeData    = envelope.RouterData[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData]
	captureData      = envelope.RouterData[envelope.Capture, envelope.CaptureData, envelope.PaymentsResponseData]
	voidData         = envelope.RouterData[envelope.Void, envelope.CancelData, envelope.PaymentsResponseData]
	psyncData        = envelope.RouterData[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData]
	refundData       = envelope.RouterData[envelope.Execute, envelope.RefundsData, envelope.RefundsResponseData]
	rsyncData        = envelope.RouterData[envelope.RSync, envelope.RefundsData, envelope.RefundsResponseData]
	setupMandateData = envelope.RouterData[envelope.SetupMandate, envelope.SetupMandateData, envelope.PaymentsResponseData]
	repeatData       = envelope.RouterData[envelope.RepeatPayment, envelope.RepeatPaymentData, envelope.PaymentsResponseData]
	completeData     = envelope.RouterData[envelope.CompleteAuthorize, envelope.CompleteAuthorizeData, envelope.PaymentsResponseData]
	tokenData        = envelope.RouterData[envelope.AccessTokenAuth, envelope.AccessTokenRequestData, envelope.AccessToken]
	customerData     = envelope.RouterData[envelope.CreateConnectorCustomer, envelope.ConnectorCustomerData, envelope.ConnectorCustomerResponse]
	lookupData       = envelope.RouterData[envelope.PreProcessing, envelope.PreProcessingData, envelope.PaymentsResponseData]
)

// authorize

type authorize struct{ *Dummy }

func (a authorize) GetHeaders(rd *authorizeData) (base.Headers, error) { return a.headers(&rd.Common) }

func (a authorize) GetURL(*authorizeData) (string, error) { return a.url("/v1/payments"), nil }

func (a authorize) GetRequestBody(rd *authorizeData) (*base.RequestBody, error) {
	r := rd.Request
	req := paymentRequest{
		Amount:            int64(r.Amount),
		Currency:          string(r.Currency),
		Capture:           r.CaptureMethod.IsAutomatic() && !a.opts.SeparateCapture,
		Reference:         rd.ConnectorRequestReferenceID,
		Description:       rd.Description,
		ReturnURL:         rd.ReturnURL,
		ThreeDS:           rd.AuthType == payment.AuthThreeDS,
		Customer:          rd.ConnectorCustomerID,
		SavePaymentMethod: r.SetupFutureUsage == payment.FutureUsageOffSession,
		Acceptance:        acceptance(r.CustomerAcceptance),
		Metadata:          r.Metadata,
	}
	if err := buildPaymentMethod(&req, r.PaymentMethodData); err != nil {
		return nil, err
	}
	return base.JSONBody(req)
}

func (a authorize) BuildRequest(rd *authorizeData) (*base.Request, error) {
	return connector.BuildRequest(a, rd, base.MethodPost)
}

func (a authorize) HandleResponse(rd *authorizeData, res *base.Response) (*authorizeData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	setPaymentOutcome(rd, body, rd.Request.CaptureMethod, res.StatusCode)
	if rd.Ok() && body.Captured > 0 {
		captured := payment.MinorUnit(body.Captured)
		rd.AmountCaptured = &captured
	}
	return rd, nil
}

// capture

type capture struct{ *Dummy }

func (c capture) GetHeaders(rd *captureData) (base.Headers, error) { return c.headers(&rd.Common) }

func (c capture) GetURL(rd *captureData) (string, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return "", errs.MissingRequiredField("connector_transaction_id")
	}
	return c.url("/v1/payments/%s/capture", url.PathEscape(rd.Request.ConnectorTransactionID)), nil
}

func (c capture) GetRequestBody(rd *captureData) (*base.RequestBody, error) {
	body := map[string]any{"amount": int64(rd.Request.AmountToCapture)}
	if m := rd.Request.MultipleCaptureData; m != nil {
		body["sequence"] = m.CaptureSequence
		body["reference"] = m.CaptureReference
	}
	return base.JSONBody(body)
}

func (c capture) BuildRequest(rd *captureData) (*base.Request, error) {
	return connector.BuildRequest(c, rd, base.MethodPost)
}

func (c capture) HandleResponse(rd *captureData, res *base.Response) (*captureData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	partial := body.Captured > 0 && body.Captured < int64(rd.Request.PaymentAmount)
	rd.SetResponse(body.toResponseData(), normalize.CaptureStatus(outcome(body.Status), partial))
	if body.Captured > 0 {
		captured := payment.MinorUnit(body.Captured)
		rd.AmountCaptured = &captured
	}
	return rd, nil
}

// void

type void struct{ *Dummy }

func (v void) GetHeaders(rd *voidData) (base.Headers, error) { return v.headers(&rd.Common) }

func (v void) GetURL(rd *voidData) (string, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return "", errs.MissingRequiredField("connector_transaction_id")
	}
	return v.url("/v1/payments/%s/void", url.PathEscape(rd.Request.ConnectorTransactionID)), nil
}

func (v void) GetRequestBody(rd *voidData) (*base.RequestBody, error) {
	return base.JSONBody(map[string]string{"reason": rd.Request.CancellationReason})
}

func (v void) BuildRequest(rd *voidData) (*base.Request, error) {
	return connector.BuildRequest(v, rd, base.MethodPost)
}

func (v void) HandleResponse(rd *voidData, res *base.Response) (*voidData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	rd.SetResponse(body.toResponseData(), normalize.VoidStatus(outcome(body.Status)))
	return rd, nil
}

// psync

type psync struct{ *Dummy }

func (p psync) GetHeaders(rd *psyncData) (base.Headers, error) { return p.headers(&rd.Common) }

func (p psync) GetURL(rd *psyncData) (string, error) {
	id := rd.Request.ConnectorTransactionID
	if id == "" {
		return "", errs.MissingRequiredField("connector_transaction_id")
	}
	if rd.Request.SyncType.IsMultipleCapture() {
		return p.url("/v1/payments/%s/captures", url.PathEscape(id)), nil
	}
	return p.url("/v1/payments/%s", url.PathEscape(id)), nil
}

func (p psync) GetRequestBody(*psyncData) (*base.RequestBody, error) { return nil, nil }

func (p psync) BuildRequest(rd *psyncData) (*base.Request, error) {
	return connector.BuildRequest(p, rd, base.MethodGet)
}

func (p psync) HandleResponse(rd *psyncData, res *base.Response) (*psyncData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	data := body.toResponseData()
	status := normalize.AuthorizeStatus(rd.Request.CaptureMethod, outcome(body.Status), data.RedirectionData != nil)
	if rd.Request.SyncType.IsMultipleCapture() && len(data.Captures) > 0 {
		status = payment.StatusCharged
		for _, c := range data.Captures {
			if c.Status != payment.StatusCharged {
				status = payment.StatusPartialCharged
				break
			}
		}
	}
	rd.SetResponse(data, status)
	return rd, nil
}

func (p psync) MultipleCaptureSyncMethod() (connector.CaptureSyncMethod, error) {
	return connector.CaptureSyncBulk, nil
}

// refund

type refund struct{ *Dummy }

func (r refund) GetHeaders(rd *refundData) (base.Headers, error) { return r.headers(&rd.Common) }

func (r refund) GetURL(*refundData) (string, error) { return r.url("/v1/refunds"), nil }

func (r refund) GetRequestBody(rd *refundData) (*base.RequestBody, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, errs.MissingRequiredField("connector_transaction_id")
	}
	return base.JSONBody(refundRequest{
		Payment:   rd.Request.ConnectorTransactionID,
		Amount:    int64(rd.Request.RefundAmount),
		Reason:    rd.Request.Reason,
		Reference: rd.Request.RefundID,
	})
}

func (r refund) BuildRequest(rd *refundData) (*base.Request, error) {
	return connector.BuildRequest(r, rd, base.MethodPost)
}

func (r refund) HandleResponse(rd *refundData, res *base.Response) (*refundData, error) {
	var body refundResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	rd.SetResponse(envelope.RefundsResponseData{
		ConnectorRefundID: body.ID,
		RefundStatus:      normalize.RefundStatus(outcome(body.Status)),
	}, rd.Status)
	return rd, nil
}

// rsync

type rsync struct{ *Dummy }

func (r rsync) GetHeaders(rd *rsyncData) (base.Headers, error) { return r.headers(&rd.Common) }

func (r rsync) GetURL(rd *rsyncData) (string, error) {
	if rd.Request.ConnectorRefundID == "" {
		return "", errs.MissingRequiredField("connector_refund_id")
	}
	return r.url("/v1/refunds/%s", url.PathEscape(rd.Request.ConnectorRefundID)), nil
}

func (r rsync) GetRequestBody(*rsyncData) (*base.RequestBody, error) { return nil, nil }

func (r rsync) BuildRequest(rd *rsyncData) (*base.Request, error) {
	return connector.BuildRequest(r, rd, base.MethodGet)
}

func (r rsync) HandleResponse(rd *rsyncData, res *base.Response) (*rsyncData, error) {
	var body refundResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	rd.SetResponse(envelope.RefundsResponseData{
		ConnectorRefundID: body.ID,
		RefundStatus:      normalize.RefundStatus(outcome(body.Status)),
	}, rd.Status)
	return rd, nil
}

// setup mandate

type setupMandate struct{ *Dummy }

func (s setupMandate) GetHeaders(rd *setupMandateData) (base.Headers, error) {
	return s.headers(&rd.Common)
}

func (s setupMandate) GetURL(*setupMandateData) (string, error) { return s.url("/v1/mandates"), nil }

func (s setupMandate) GetRequestBody(rd *setupMandateData) (*base.RequestBody, error) {
	r := rd.Request
	if r.CustomerAcceptance == nil {
		return nil, errs.MissingRequiredField("customer_acceptance")
	}
	req := paymentRequest{
		Currency:          string(r.Currency),
		Reference:         rd.ConnectorRequestReferenceID,
		ReturnURL:         rd.ReturnURL,
		Customer:          rd.ConnectorCustomerID,
		SavePaymentMethod: true,
		Acceptance:        acceptance(r.CustomerAcceptance),
		Metadata:          r.Metadata,
	}
	if r.Amount != nil {
		req.Amount = int64(*r.Amount)
	}
	if err := buildPaymentMethod(&req, r.PaymentMethodData); err != nil {
		return nil, err
	}
	return base.JSONBody(req)
}

func (s setupMandate) BuildRequest(rd *setupMandateData) (*base.Request, error) {
	return connector.BuildRequest(s, rd, base.MethodPost)
}

func (s setupMandate) HandleResponse(rd *setupMandateData, res *base.Response) (*setupMandateData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	setPaymentOutcome(rd, body, payment.CaptureAutomatic, res.StatusCode)
	return rd, nil
}

// repeat payment

type repeatPayment struct{ *Dummy }

func (p repeatPayment) GetHeaders(rd *repeatData) (base.Headers, error) { return p.headers(&rd.Common) }

func (p repeatPayment) GetURL(*repeatData) (string, error) { return p.url("/v1/payments/recurring"), nil }

func (p repeatPayment) GetRequestBody(rd *repeatData) (*base.RequestBody, error) {
	r := rd.Request
	body := map[string]any{
		"amount":    int64(r.Amount),
		"currency":  string(r.Currency),
		"capture":   r.CaptureMethod.IsAutomatic() && !p.opts.SeparateCapture,
		"reference": rd.ConnectorRequestReferenceID,
	}
	switch {
	case r.MandateReference.ConnectorMandate != nil && r.MandateReference.ConnectorMandate.ConnectorMandateID != "":
		body["mandate_id"] = r.MandateReference.ConnectorMandate.ConnectorMandateID
	case r.MandateReference.NetworkTransactionID != "":
		body["network_transaction_id"] = r.MandateReference.NetworkTransactionID
	default:
		return nil, errs.MissingRequiredField("mandate_reference")
	}
	return base.JSONBody(body)
}

func (p repeatPayment) BuildRequest(rd *repeatData) (*base.Request, error) {
	return connector.BuildRequest(p, rd, base.MethodPost)
}

func (p repeatPayment) HandleResponse(rd *repeatData, res *base.Response) (*repeatData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	setPaymentOutcome(rd, body, rd.Request.CaptureMethod, res.StatusCode)
	return rd, nil
}

// complete authorize

type completeAuthorize struct{ *Dummy }

func (c completeAuthorize) GetHeaders(rd *completeData) (base.Headers, error) {
	return c.headers(&rd.Common)
}

func (c completeAuthorize) GetURL(rd *completeData) (string, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return "", errs.MissingRequiredField("connector_transaction_id")
	}
	return c.url("/v1/payments/%s/complete", url.PathEscape(rd.Request.ConnectorTransactionID)), nil
}

func (c completeAuthorize) GetRequestBody(rd *completeData) (*base.RequestBody, error) {
	if rd.Request.RedirectResponse == nil {
		return nil, errs.MissingRequiredField("redirect_response")
	}
	return base.JSONBody(map[string]any{
		"params":  rd.Request.RedirectResponse.Params,
		"payload": rd.Request.RedirectResponse.Payload,
		"capture": rd.Request.CaptureMethod.IsAutomatic() && !c.opts.SeparateCapture,
	})
}

func (c completeAuthorize) BuildRequest(rd *completeData) (*base.Request, error) {
	return connector.BuildRequest(c, rd, base.MethodPost)
}

func (c completeAuthorize) HandleResponse(rd *completeData, res *base.Response) (*completeData, error) {
	var body paymentResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	setPaymentOutcome(rd, body, rd.Request.CaptureMethod, res.StatusCode)
	return rd, nil
}

// access token

type accessToken struct{ *Dummy }

func (a accessToken) GetHeaders(rd *tokenData) (base.Headers, error) {
	auth, err := basicAuth(rd.ConnectorAuthType)
	if err != nil {
		return nil, err
	}
	return base.Headers{}.AddMasked("Authorization", auth), nil
}

func (a accessToken) GetURL(*tokenData) (string, error) { return a.url("/oauth/token"), nil }

func (a accessToken) GetRequestBody(*tokenData) (*base.RequestBody, error) {
	return base.FormBody(url.Values{"grant_type": {"client_credentials"}}), nil
}

func (a accessToken) BuildRequest(rd *tokenData) (*base.Request, error) {
	if !a.opts.OAuth {
		return nil, nil
	}
	return connector.BuildRequest(a, rd, base.MethodPost)
}

func (a accessToken) HandleResponse(rd *tokenData, res *base.Response) (*tokenData, error) {
	var body tokenResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" {
		return nil, errs.ResponseDeserializationFailed(errs.MissingRequiredField("access_token"))
	}
	rd.SetResponse(envelope.AccessToken{Token: body.AccessToken, ExpiresIn: body.ExpiresIn}, rd.Status)
	return rd, nil
}

// connector customer

type createCustomer struct{ *Dummy }

func (c createCustomer) GetHeaders(rd *customerData) (base.Headers, error) {
	return c.headers(&rd.Common)
}

func (c createCustomer) GetURL(*customerData) (string, error) { return c.url("/v1/customers"), nil }

func (c createCustomer) GetRequestBody(rd *customerData) (*base.RequestBody, error) {
	r := rd.Request
	return base.JSONBody(customerRequest{Email: r.Email, Name: r.Name, Phone: r.Phone, Description: r.Description})
}

func (c createCustomer) BuildRequest(rd *customerData) (*base.Request, error) {
	return connector.BuildRequest(c, rd, base.MethodPost)
}

func (c createCustomer) HandleResponse(rd *customerData, res *base.Response) (*customerData, error) {
	var body customerResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	rd.SetResponse(envelope.ConnectorCustomerResponse{ConnectorCustomerID: body.ID}, rd.Status)
	rd.ConnectorCustomerID = body.ID
	return rd, nil
}

// 3DS enrollment lookup

type threeDSLookup struct{ *Dummy }

func (l threeDSLookup) GetHeaders(rd *lookupData) (base.Headers, error) { return l.headers(&rd.Common) }

func (l threeDSLookup) GetURL(*lookupData) (string, error) { return l.url("/v1/3ds/lookup"), nil }

func (l threeDSLookup) GetRequestBody(rd *lookupData) (*base.RequestBody, error) {
	r := rd.Request
	req := paymentRequest{
		Amount:    int64(r.Amount),
		Currency:  string(r.Currency),
		Reference: rd.ConnectorRequestReferenceID,
		ReturnURL: rd.ReturnURL,
		ThreeDS:   true,
	}
	if err := buildPaymentMethod(&req, r.PaymentMethodData); err != nil {
		return nil, err
	}
	return base.JSONBody(req)
}

func (l threeDSLookup) BuildRequest(rd *lookupData) (*base.Request, error) {
	if rd.AuthType != payment.AuthThreeDS {
		return nil, nil
	}
	if _, ok := rd.Request.PaymentMethodData.(*payment.Card); !ok {
		return nil, nil
	}
	return connector.BuildRequest(l, rd, base.MethodPost)
}

func (l threeDSLookup) HandleResponse(rd *lookupData, res *base.Response) (*lookupData, error) {
	var body lookupResponse
	if err := res.UnmarshalJSON(&body); err != nil {
		return nil, err
	}
	data := envelope.PaymentsResponseData{ConnectorResponseReferenceID: body.Reference}
	status := payment.StatusAuthenticationSucceeded
	if body.NextAction != nil && body.NextAction.RedirectURL != "" {
		data.RedirectionData = &envelope.RedirectForm{
			Endpoint:   body.NextAction.RedirectURL,
			Method:     body.NextAction.Method,
			FormFields: body.NextAction.Fields,
		}
		status = payment.StatusAuthenticationPending
	}
	rd.SetResponse(data, status)
	return rd, nil
}
