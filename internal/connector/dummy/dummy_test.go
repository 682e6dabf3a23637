package dummy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

func newAuthorize(cm payment.CaptureMethod, pm payment.PaymentMethodData) *authorizeData {
	return envelope.New[envelope.Authorize, envelope.AuthorizeData, envelope.PaymentsResponseData](
		envelope.Common{
			Connector:                   ID,
			PaymentID:                   "pay_1",
			ConnectorRequestReferenceID: "ref_1",
			ConnectorAuthType:           credential.HeaderKey("sk_test"),
			Status:                      payment.StatusStarted,
		},
		envelope.AuthorizeData{Amount: 1000, Currency: payment.USD, CaptureMethod: cm, PaymentMethodData: pm},
	)
}

func card() *payment.Card {
	return &payment.Card{Number: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "2030", CVC: "123"}
}

func TestAuthorizeRequest(t *testing.T) {
	d := New("https://dummy.example/", Options{})
	req, err := authorize{d}.BuildRequest(newAuthorize(payment.CaptureAutomatic, card()))
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, "https://dummy.example/v1/payments", req.URL)
	assert.Equal(t, "Bearer sk_test", req.Headers.Get("Authorization"))
	assert.Equal(t, "ref_1", req.Headers.Get("Idempotency-Key"))

	var body paymentRequest
	require.NoError(t, json.Unmarshal(req.Body.Raw, &body))
	assert.True(t, body.Capture)
	assert.Equal(t, int64(1000), body.Amount)
	assert.Equal(t, "4242424242424242", body.Card.Number)
}

func TestAuthorizeSeparateCaptureSendsAuthOnly(t *testing.T) {
	d := New("https://dummy.example", Options{SeparateCapture: true})
	req, err := authorize{d}.BuildRequest(newAuthorize(payment.CaptureAutomatic, card()))
	require.NoError(t, err)

	var body paymentRequest
	require.NoError(t, json.Unmarshal(req.Body.Raw, &body))
	assert.False(t, body.Capture)
	assert.True(t, d.Capabilities().FollowUpCapture)
}

func TestAuthorizeRejectsUnsupportedMethods(t *testing.T) {
	d := New("https://dummy.example", Options{})
	_, err := authorize{d}.BuildRequest(newAuthorize(payment.CaptureAutomatic, &payment.MobileMoney{PhoneNumber: "254700000000"}))
	assert.True(t, errs.IsKind(err, errs.KindNotSupported))

	_, err = authorize{d}.BuildRequest(newAuthorize(payment.CaptureAutomatic, nil))
	assert.True(t, errs.IsKind(err, errs.KindMissingRequiredField))
}

func TestAuthorizeRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"txn_1","status":"succeeded","amount":1000,"currency":"usd","amount_captured":1000}`))
	}))
	defer srv.Close()

	d := New(srv.URL, Options{})
	rd := newAuthorize(payment.CaptureAutomatic, card())
	req, err := authorize{d}.BuildRequest(rd)
	require.NoError(t, err)
	res, err := base.NewHTTPClient(time.Second).Send(context.Background(), ID, req)
	require.NoError(t, err)

	rd, err = authorize{d}.HandleResponse(rd, res)
	require.NoError(t, err)
	resp, errResp := rd.Response()
	require.Nil(t, errResp)
	assert.Equal(t, "txn_1", resp.ResourceID)
	assert.Equal(t, payment.StatusCharged, rd.Status)
	assert.Equal(t, payment.MinorUnit(1000), *rd.AmountCaptured)
	assert.Equal(t, payment.USD, resp.Integrity.Currency)
}

func TestRedirectMeansAuthenticationPending(t *testing.T) {
	d := New("https://dummy.example", Options{})
	rd := newAuthorize(payment.CaptureAutomatic, card())
	res := &base.Response{StatusCode: 200, Body: []byte(`{"id":"txn_2","status":"requires_action","next_action":{"redirect_url":"https://acs.example/challenge"}}`)}

	rd, err := authorize{d}.HandleResponse(rd, res)
	require.NoError(t, err)
	resp, _ := rd.Response()
	assert.Equal(t, payment.StatusAuthenticationPending, rd.Status)
	assert.Equal(t, "GET", resp.RedirectionData.Method)
}

func TestErrorDecoders(t *testing.T) {
	d := New("https://dummy.example", Options{})

	e, err := connector.DecodeError(authorize{d}, &base.Response{StatusCode: 402, Body: []byte(`{"error":{"code":"card_declined","message":"Insufficient funds","decline_reason":"51"}}`)})
	require.NoError(t, err)
	assert.Equal(t, "card_declined", e.Code)
	assert.Equal(t, "51", e.Reason)

	e, err = connector.DecodeError(authorize{d}, &base.Response{StatusCode: 503, Body: []byte(`{"fault":{"type":"maintenance","detail":"back soon"}}`)})
	require.NoError(t, err)
	assert.Equal(t, "maintenance", e.Code)
	assert.True(t, e.Retryable)

	e, err = connector.DecodeError(authorize{d}, &base.Response{StatusCode: 502, Body: []byte(`<html>bad gateway</html>`)})
	require.NoError(t, err)
	assert.Equal(t, "connector_unavailable", e.Code)

	_, err = connector.DecodeError(authorize{d}, &base.Response{StatusCode: 400, Body: []byte(`nope`)})
	assert.True(t, errs.IsKind(err, errs.KindResponseDeserializationFailed))
}

func TestRepeatPaymentContract(t *testing.T) {
	d := New("https://dummy.example", Options{})
	rd := envelope.New[envelope.RepeatPayment, envelope.RepeatPaymentData, envelope.PaymentsResponseData](
		envelope.Common{ConnectorAuthType: credential.HeaderKey("sk")},
		envelope.RepeatPaymentData{
			Amount:           500,
			Currency:         payment.EUR,
			CaptureMethod:    payment.CaptureAutomatic,
			MandateReference: payment.MandateIDs{ConnectorMandate: &payment.MandateReference{ConnectorMandateID: "md_1"}},
		})
	req, err := repeatPayment{d}.BuildRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, "https://dummy.example/v1/payments/recurring", req.URL)

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body.Raw, &body))
	assert.Equal(t, "md_1", body["mandate_id"])

	rd.Request.MandateReference = payment.MandateIDs{}
	_, err = repeatPayment{d}.BuildRequest(rd)
	assert.True(t, errs.IsKind(err, errs.KindMissingRequiredField))
}

func TestAccessTokenOnlyWhenOAuth(t *testing.T) {
	rd := envelope.New[envelope.AccessTokenAuth, envelope.AccessTokenRequestData, envelope.AccessToken](
		envelope.Common{ConnectorAuthType: credential.BodyKey("client", "secret")}, envelope.AccessTokenRequestData{})

	req, err := accessToken{New("https://dummy.example", Options{})}.BuildRequest(rd)
	require.NoError(t, err)
	assert.Nil(t, req)

	req, err = accessToken{New("https://dummy.example", Options{OAuth: true})}.BuildRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, "https://dummy.example/oauth/token", req.URL)
	assert.Contains(t, req.Headers.Get("Authorization"), "Basic ")

	rd, err = accessToken{New("", Options{OAuth: true})}.HandleResponse(rd, &base.Response{StatusCode: 200, Body: []byte(`{"access_token":"at_1","expires_in":3600}`)})
	require.NoError(t, err)
	tok, _ := rd.Response()
	assert.Equal(t, "at_1", tok.Token)
}

func TestOAuthHeadersNeedToken(t *testing.T) {
	d := New("https://dummy.example", Options{OAuth: true})
	rd := newAuthorize(payment.CaptureManual, card())
	_, err := authorize{d}.BuildRequest(rd)
	assert.True(t, errs.IsKind(err, errs.KindFailedToObtainAuthType))

	rd.AccessToken = &envelope.AccessToken{Token: "at_1", ExpiresIn: 60}
	req, err := authorize{d}.BuildRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, "Bearer at_1", req.Headers.Get("Authorization"))
}

func TestRegisterBindsFlows(t *testing.T) {
	r := connector.NewRegistry()
	Register(r, New("https://dummy.example", Options{}))

	_, in, err := connector.Lookup[envelope.Capture, envelope.CaptureData, envelope.PaymentsResponseData](r, ID)
	require.NoError(t, err)
	assert.IsType(t, capture{}, in)

	_, in2, err := connector.Lookup[envelope.CreateOrder, envelope.CreateOrderData, envelope.PaymentsResponseData](r, ID)
	require.NoError(t, err)
	req, err := in2.BuildRequest(nil)
	assert.NoError(t, err)
	assert.Nil(t, req)

	_, ok := interface{}(psync{}).(connector.MultipleCaptureSyncer)
	assert.True(t, ok)
}

func TestDeclineInSuccessBodyIsAnError(t *testing.T) {
	d := New("https://dummy.example", Options{})
	rd := newAuthorize(payment.CaptureAutomatic, card())
	res := &base.Response{StatusCode: 200, Body: []byte(`{"id":"txn_3","status":"declined","failure_code":"do_not_honor","failure_message":"Do not honor"}`)}

	rd, err := authorize{d}.HandleResponse(rd, res)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailure, rd.Status)
	e := rd.Err()
	require.NotNil(t, e)
	assert.Equal(t, "do_not_honor", e.Code)
	assert.Equal(t, "Do not honor", e.Message)
	assert.Equal(t, "txn_3", e.ConnectorTransactionID)
	assert.Equal(t, errs.ClassBusinessDecline, e.Class)
	assert.Nil(t, rd.AmountCaptured)
}
