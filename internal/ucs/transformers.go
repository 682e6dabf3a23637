package ucs

import (
	"encoding/json"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

// Metadata keys understood by the unified service.
const (
	HeaderAuth        = "x-auth"
	HeaderAPIKey      = "x-api-key"
	HeaderKey1        = "x-key1"
	HeaderKey2        = "x-key2"
	HeaderAPISecret   = "x-api-secret"
	HeaderAuthKeyMap  = "x-auth-key-map"
	HeaderConnector   = "x-connector"
	HeaderMerchantID  = "x-merchant-id"
	HeaderRequestID   = "x-request-id"
	HeaderTenantID    = "x-tenant-id"
	HeaderReferenceID = "x-reference-id"
	HeaderAccessToken = "x-access-token"
)

// authMetadata renders the connector credential and the header bag.
func authMetadata(c *envelope.Common, tenantID, requestID string) (metadata.MD, error) {
	auth := c.ConnectorAuthType
	md := metadata.Pairs(
		HeaderConnector, c.Connector,
		HeaderMerchantID, c.MerchantID,
		HeaderRequestID, requestID,
		HeaderReferenceID, c.ConnectorRequestReferenceID,
		HeaderAuth, string(auth.Kind),
	)
	if tenantID != "" {
		md.Set(HeaderTenantID, tenantID)
	}
	if c.AccessToken != nil && c.AccessToken.Token != "" {
		md.Set(HeaderAccessToken, c.AccessToken.Token)
	}

	switch auth.Kind {
	case credential.AuthHeaderKey:
		md.Set(HeaderAPIKey, auth.APIKey)
	case credential.AuthBodyKey:
		md.Set(HeaderAPIKey, auth.APIKey)
		md.Set(HeaderKey1, auth.Key1)
	case credential.AuthSignatureKey:
		md.Set(HeaderAPIKey, auth.APIKey)
		md.Set(HeaderKey1, auth.Key1)
		md.Set(HeaderAPISecret, auth.APISecret)
	case credential.AuthMultiAuthKey:
		md.Set(HeaderAPIKey, auth.APIKey)
		md.Set(HeaderKey1, auth.Key1)
		md.Set(HeaderKey2, auth.Key2)
		md.Set(HeaderAPISecret, auth.APISecret)
	case credential.AuthCurrencyAuthKey:
		raw, err := json.Marshal(auth.KeyMap)
		if err != nil {
			return nil, errs.RequestEncodingFailed(err)
		}
		md.Set(HeaderAuthKeyMap, string(raw))
	case credential.AuthTemporary, credential.AuthNoKey:
	default:
		return nil, errs.FailedToObtainAuthType()
	}
	return md, nil
}

// methodPayload renders payment method data as the unified service's
// one-of message.
type methodPayload struct {
	connector string
	out       map[string]any
}

func (m *methodPayload) VisitCard(c *payment.Card) error {
	m.out = map[string]any{"card": map[string]any{
		"card_number":      c.Number,
		"card_exp_month":   c.ExpiryMonth,
		"card_exp_year":    c.ExpiryYear,
		"card_holder_name": c.HolderName,
		"card_cvc":         c.CVC,
		"card_network":     c.Network,
		"is_network_token": c.IsNetworkTok,
	}}
	return nil
}

func (m *methodPayload) VisitWallet(w *payment.Wallet) error {
	wallet := map[string]any{"type": string(w.Kind), "token": w.Token}
	if w.Assurance != nil {
		wallet["assurance_details"] = map[string]any{
			"card_holder_authenticated": w.Assurance.CardHolderAuthenticated,
			"account_verified":          w.Assurance.AccountVerified,
		}
	}
	m.out = map[string]any{"wallet": wallet}
	return nil
}

func (m *methodPayload) VisitBankRedirect(b *payment.BankRedirect) error {
	m.out = map[string]any{"bank_redirect": map[string]any{
		"bank":    b.Bank,
		"country": b.Country,
		"issuer":  b.Issuer,
	}}
	return nil
}

func (m *methodPayload) VisitMobileMoney(mm *payment.MobileMoney) error {
	m.out = map[string]any{"mobile_money": map[string]any{
		"provider":     mm.Provider,
		"phone_number": mm.PhoneNumber,
	}}
	return nil
}

func (m *methodPayload) VisitMandate(*payment.MandatePayment) error {
	return errs.NotSupported("mandate payment method on a customer-initiated call", m.connector)
}

func paymentMethod(pm payment.PaymentMethodData, connector string) (map[string]any, error) {
	if pm == nil {
		return nil, errs.MissingRequiredField("payment_method_data")
	}
	v := &methodPayload{connector: connector}
	if err := pm.Accept(v); err != nil {
		return nil, err
	}
	return v.out, nil
}

func acceptance(a *payment.CustomerAcceptance) any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"acceptance_type": string(a.Type),
		"accepted_at":     a.AcceptedAt.Unix(),
		"ip_address":      a.IPAddress,
		"user_agent":      a.UserAgent,
	}
}

func browser(b *envelope.BrowserInfo) any {
	if b == nil {
		return nil
	}
	return map[string]any{
		"user_agent":       b.UserAgent,
		"accept_header":    b.AcceptHeader,
		"language":         b.Language,
		"ip_address":       b.IPAddress,
		"screen_height":    b.ScreenHeight,
		"screen_width":     b.ScreenWidth,
		"time_zone_offset": b.TimeZoneOffset,
	}
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func refID(c *envelope.Common) map[string]any {
	return map[string]any{"id": c.ConnectorRequestReferenceID}
}

func authorizePayload(rd *envelope.RouterData[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData]) (map[string]any, error) {
	req := rd.Request
	pm, err := paymentMethod(req.PaymentMethodData, rd.Connector)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"request_ref_id":         refID(&rd.Common),
		"minor_amount":           int64(req.Amount),
		"currency":               string(req.Currency),
		"payment_method":         pm,
		"capture_method":         string(req.CaptureMethod),
		"auth_type":              string(rd.AuthType),
		"enrolled_for_3ds":       req.EnrolledFor3DS,
		"email":                  req.Email,
		"return_url":             rd.ReturnURL,
		"webhook_url":            req.WebhookURL,
		"complete_authorize_url": req.CompleteAuthorizeURL,
		"customer_acceptance":    acceptance(req.CustomerAcceptance),
		"setup_future_usage":     string(req.SetupFutureUsage),
		"off_session":            req.OffSession,
		"browser_info":           browser(req.BrowserInfo),
		"connector_customer_id":  rd.ConnectorCustomerID,
		"statement_descriptor":   req.StatementDescriptor,
		"metadata":               stringMap(req.Metadata),
	}, nil
}

func repeatPayload(rd *envelope.RouterData[envelope.RepeatPayment, envelope.RepeatPaymentData, envelope.PaymentsResponseData]) (map[string]any, error) {
	req := rd.Request
	ref := map[string]any{}
	if m := req.MandateReference.ConnectorMandate; m != nil {
		ref["mandate_id"] = m.ConnectorMandateID
		ref["payment_method_id"] = m.PaymentMethodID
		ref["mandate_metadata"] = m.MandateMetadata
	}
	if len(ref) == 0 && req.MandateReference.NetworkTransactionID == "" {
		return nil, errs.MissingRequiredField("mandate_reference")
	}
	return map[string]any{
		"request_ref_id":         refID(&rd.Common),
		"mandate_reference":      ref,
		"network_transaction_id": req.MandateReference.NetworkTransactionID,
		"minor_amount":           int64(req.Amount),
		"currency":               string(req.Currency),
		"capture_method":         string(req.CaptureMethod),
		"off_session":            req.OffSession,
		"webhook_url":            req.WebhookURL,
		"metadata":               stringMap(req.Metadata),
	}, nil
}

func getPayload(rd *envelope.RouterData[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData]) (map[string]any, error) {
	req := rd.Request
	if req.ConnectorTransactionID == "" {
		return nil, errs.MissingRequiredField("connector_transaction_id")
	}
	return map[string]any{
		"request_ref_id": refID(&rd.Common),
		"transaction_id": map[string]any{"id": req.ConnectorTransactionID},
		"encoded_data":   req.EncodedData,
		"capture_method": string(req.CaptureMethod),
		"minor_amount":   int64(req.Amount),
		"currency":       string(req.Currency),
	}, nil
}

func completePayload(rd *envelope.RouterData[envelope.CompleteAuthorize, envelope.CompleteAuthorizeData, envelope.PaymentsResponseData]) (map[string]any, error) {
	req := rd.Request
	if req.ConnectorTransactionID == "" {
		return nil, errs.MissingRequiredField("connector_transaction_id")
	}
	out := map[string]any{
		"request_ref_id": refID(&rd.Common),
		"transaction_id": map[string]any{"id": req.ConnectorTransactionID},
		"minor_amount":   int64(req.Amount),
		"currency":       string(req.Currency),
		"capture_method": string(req.CaptureMethod),
	}
	if r := req.RedirectResponse; r != nil {
		out["redirect_response"] = map[string]any{
			"params":  r.Params,
			"payload": stringMap(r.Payload),
		}
	}
	return out, nil
}

func registerPayload(rd *envelope.RouterData[envelope.SetupMandate, envelope.SetupMandateData, envelope.PaymentsResponseData]) (map[string]any, error) {
	req := rd.Request
	pm, err := paymentMethod(req.PaymentMethodData, rd.Connector)
	if err != nil {
		return nil, err
	}
	if req.CustomerAcceptance == nil {
		return nil, errs.MissingRequiredField("customer_acceptance")
	}
	out := map[string]any{
		"request_ref_id":      refID(&rd.Common),
		"currency":            string(req.Currency),
		"payment_method":      pm,
		"customer_acceptance": acceptance(req.CustomerAcceptance),
		"setup_future_usage":  string(req.SetupFutureUsage),
		"off_session":         req.OffSession,
		"email":               req.Email,
		"browser_info":        browser(req.BrowserInfo),
		"return_url":          rd.ReturnURL,
		"metadata":            stringMap(req.Metadata),
	}
	if req.Amount != nil {
		out["minor_amount"] = int64(*req.Amount)
	}
	return out, nil
}

// unifiedResponse is the decoded payment service reply.
type unifiedResponse struct {
	Status           string
	StatusCode       int
	Raw              string
	TransactionID    string
	ReferenceID      string
	NetworkTxnID     string
	IncrementalAuth  bool
	Redirect         *envelope.RedirectForm
	Mandate          *payment.MandateReference
	CapturedAmount   *payment.MinorUnit
	CapturableAmount *payment.MinorUnit
	AccessToken      *envelope.AccessToken
	Error            *envelope.ErrorResponse
}

func parseResponse(s *structpb.Struct) unifiedResponse {
	m := s.AsMap()
	u := unifiedResponse{
		Status:          str(m, "status"),
		StatusCode:      int(num(m, "status_code")),
		Raw:             str(m, "raw_connector_response"),
		TransactionID:   str(sub(m, "transaction_id"), "id"),
		ReferenceID:     str(m, "response_ref_id"),
		NetworkTxnID:    str(m, "network_txn_id"),
		IncrementalAuth: boolean(m, "incremental_authorization_allowed"),
	}
	if r := sub(m, "redirection_data"); r != nil {
		u.Redirect = &envelope.RedirectForm{
			Endpoint: str(r, "endpoint"),
			Method:   str(r, "method"),
			HTML:     str(r, "html"),
		}
		if fields := sub(r, "form_fields"); len(fields) > 0 {
			u.Redirect.FormFields = make(map[string]string, len(fields))
			for k := range fields {
				u.Redirect.FormFields[k] = str(fields, k)
			}
		}
	}
	if mr := sub(m, "mandate_reference"); mr != nil {
		u.Mandate = &payment.MandateReference{
			ConnectorMandateID: str(mr, "mandate_id"),
			PaymentMethodID:    str(mr, "payment_method_id"),
			MandateMetadata:    str(mr, "mandate_metadata"),
		}
	}
	if v, ok := m["captured_amount"].(float64); ok {
		amt := payment.MinorUnit(v)
		u.CapturedAmount = &amt
	}
	if v, ok := m["minor_capturable_amount"].(float64); ok {
		amt := payment.MinorUnit(v)
		u.CapturableAmount = &amt
	}
	if st := sub(m, "state"); st != nil {
		if tok := sub(st, "access_token"); tok != nil && str(tok, "token") != "" {
			u.AccessToken = &envelope.AccessToken{
				Token:     str(tok, "token"),
				ExpiresIn: int64(num(tok, "expires_in_seconds")),
			}
		}
	}
	if e := sub(m, "error"); e != nil && (str(e, "code") != "" || str(e, "message") != "") {
		u.Error = &envelope.ErrorResponse{
			Code:                   str(e, "code"),
			Message:                str(e, "message"),
			Reason:                 str(e, "reason"),
			NetworkDeclineCode:     str(e, "network_decline_code"),
			StatusCode:             u.StatusCode,
			ConnectorTransactionID: u.TransactionID,
			Class:                  errs.ClassBusinessDecline,
		}
	}
	return u
}

func (u unifiedResponse) responseData() envelope.PaymentsResponseData {
	return envelope.PaymentsResponseData{
		ResourceID:                   u.TransactionID,
		RedirectionData:              u.Redirect,
		MandateReference:             u.Mandate,
		NetworkTxnID:                 u.NetworkTxnID,
		ConnectorResponseReferenceID: u.ReferenceID,
		IncrementalAuthAllowed:       u.IncrementalAuth,
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func sub(m map[string]any, key string) map[string]any {
	s, _ := m[key].(map[string]any)
	return s
}
