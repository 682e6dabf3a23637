package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/accesstoken"
	"payswitch/internal/config"
	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/connector/dummy"
	"payswitch/internal/domain/payment"
	"payswitch/internal/gateway"
	"payswitch/internal/orchestrator"
	"payswitch/internal/store/memory"
)

const (
	adminToken   = "admin-secret"
	serviceToken = "service-secret"
	merchant     = "m_1"
)

// acquirer answers the dummy connector's API for a single payment.
type acquirer struct {
	mu         sync.Mutex
	captures   int
	authorizes int
	// authorizeStatus overrides the "authorized" reply to new payments.
	authorizeStatus string
}

func (a *acquirer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	amount, _ := body["amount"].(float64)

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/payments":
		a.mu.Lock()
		a.authorizes++
		status := a.authorizeStatus
		a.mu.Unlock()
		if status == "" {
			status = "authorized"
		}
		out := map[string]any{"id": "txn_1", "status": status, "amount": int64(amount), "currency": "usd"}
		if status == "requires_action" {
			out["next_action"] = map[string]any{"redirect_url": "https://acs.example/challenge", "method": "GET"}
		}
		_ = json.NewEncoder(w).Encode(out)
	case "/v1/mandates":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "txn_m", "status": "succeeded", "currency": "usd", "mandate_id": "md_1"})
	case "/v1/payments/txn_1/capture":
		a.mu.Lock()
		a.captures++
		a.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "txn_1", "status": "succeeded", "amount": int64(amount), "currency": "usd", "amount_captured": int64(amount)})
	case "/v1/payments/txn_1":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "txn_1", "status": "succeeded", "amount": 1000, "currency": "usd"})
	case "/v1/refunds":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "status": "succeeded"})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "not_found", "message": r.URL.Path}})
	}
}

func (a *acquirer) authorizeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authorizes
}

func (a *acquirer) captureCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.captures
}

type fixture struct {
	handler  http.Handler
	acquirer *acquirer
	intents  *memory.IntentRepository
	holder   *gateway.SnapshotHolder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	acq := &acquirer{}
	srv := httptest.NewServer(acq)
	t.Cleanup(srv.Close)

	reg := connector.NewRegistry()
	dummy.Register(reg, dummy.New(srv.URL, dummy.Options{SeparateCapture: true}))

	cfg := config.Cfg{Sec: config.SecurityCfg{
		AESKey:       bytes.Repeat([]byte("k"), 32),
		AdminToken:   adminToken,
		ServiceToken: serviceToken,
	}}
	intents := memory.NewIntentRepository()
	holder := gateway.NewSnapshotHolder(gateway.FromConfig(cfg.UCS))
	tokens := accesstoken.NewManager(accesstoken.NewMemoryStore(), time.Minute)

	h := NewRouter(RouterDependencies{
		Config:       cfg,
		Orchestrator: orchestrator.New(reg, base.NewHTTPClient(5*time.Second), nil, nil, tokens),
		Registry:     reg,
		Accounts:     memory.NewMerchantConnectorAccountRepository(),
		Intents:      intents,
		Snapshots:    holder,
	})
	return &fixture{handler: h, acquirer: acq, intents: intents, holder: holder}
}

func (f *fixture) do(t *testing.T, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func admin() map[string]string { return map[string]string{"X-Admin-Token": adminToken} }

func service() map[string]string {
	return map[string]string{"Authorization": "Bearer " + serviceToken, "X-Merchant-Id": merchant}
}

func (f *fixture) onboard(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/admin/connector-accounts", admin(), map[string]any{
		"merchantId": merchant,
		"connector":  "dummy",
		"testMode":   true,
		"authType":   "body_key",
		"apiKey":     "sk_test",
		"key1":       "acct_1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk_test")
}

func authorizeBody(paymentID, captureMethod string) map[string]any {
	return map[string]any{
		"paymentId":     paymentID,
		"connector":     "dummy",
		"amount":        1000,
		"currency":      "usd",
		"captureMethod": captureMethod,
		"paymentMethod": map[string]any{
			"type": "card",
			"card": map[string]any{"number": "4242424242424242", "expiryMonth": "12", "expiryYear": "2030", "cvc": "123"},
		},
	}
}

type paymentView struct {
	PaymentID              string                `json:"paymentId"`
	Status                 payment.AttemptStatus `json:"status"`
	GatewaySystem          string                `json:"gatewaySystem"`
	ConnectorTransactionID string                `json:"connectorTransactionId"`
	AmountCaptured         *int64                `json:"amountCaptured"`
	Error                  *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) paymentView {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v paymentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dummy")
}

func TestDispatchRoutesRequireServiceToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/payments", nil, authorizeBody("pay_1", "manual"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/payments", map[string]string{"Authorization": "Bearer " + serviceToken}, authorizeBody("pay_1", "manual"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/gateway/snapshot", map[string]string{"X-Admin-Token": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeAutomaticCaptureSettlesInOneCall(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	v := decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_auto", "automatic")))

	assert.Equal(t, payment.StatusCharged, v.Status)
	assert.Equal(t, "direct", v.GatewaySystem)
	assert.Equal(t, "txn_1", v.ConnectorTransactionID)
	require.NotNil(t, v.AmountCaptured)
	assert.EqualValues(t, 1000, *v.AmountCaptured)
	assert.Equal(t, 1, f.acquirer.captureCount())

	in, err := f.intents.FindByID(context.Background(), "pay_auto")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCharged, in.Status)
}

func TestManualCaptureThenSync(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	v := decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_manual", "manual")))
	assert.Equal(t, payment.StatusAuthorized, v.Status)
	assert.Zero(t, f.acquirer.captureCount())

	v = decodeView(t, f.do(t, http.MethodPost, "/v1/payments/pay_manual/capture", service(), map[string]any{
		"connector":              "dummy",
		"connectorTransactionId": "txn_1",
		"amount":                 1000,
		"captureMethod":          "manual",
	}))
	assert.Equal(t, payment.StatusCharged, v.Status)

	v = decodeView(t, f.do(t, http.MethodPost, "/v1/payments/pay_manual/sync", service(), map[string]any{
		"connector":              "dummy",
		"connectorTransactionId": "txn_1",
	}))
	assert.Equal(t, payment.StatusCharged, v.Status)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_r", "automatic")))

	rec := f.do(t, http.MethodPost, "/v1/payments/pay_r/refunds", service(), map[string]any{
		"connector":              "dummy",
		"connectorTransactionId": "txn_1",
		"amount":                 400,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		RefundID          string `json:"refundId"`
		ConnectorRefundID string `json:"connectorRefundId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.RefundID)
	assert.Equal(t, "re_1", out.ConnectorRefundID)
}

func TestFollowUpOnUnknownPaymentIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	rec := f.do(t, http.MethodPost, "/v1/payments/pay_missing/capture", service(), map[string]any{
		"connector":              "dummy",
		"connectorTransactionId": "txn_1",
		"amount":                 1000,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorizeWithoutConnectorAccount(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_x", "manual"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorizeValidation(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	body := authorizeBody("pay_v", "manual")
	body["amount"] = 0
	rec := f.do(t, http.MethodPost, "/v1/payments", service(), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = authorizeBody("pay_v", "manual")
	body["paymentMethod"] = map[string]any{"type": "crypto"}
	rec = f.do(t, http.MethodPost, "/v1/payments", service(), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/admin/gateway/snapshot", admin(), map[string]any{"enabled": true, "default_percent": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/admin/gateway/snapshot", admin(), map[string]any{
		"enabled":         true,
		"default_percent": 25,
		"rules":           map[string]float64{"m_1:dummy:*:*": 100},
		"version":         "v2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "v2", f.holder.Load().Version)
	assert.Equal(t, float64(100), f.holder.Load().Percent("m_1", "dummy", "card", "authorize"))

	rec = f.do(t, http.MethodGet, "/admin/gateway/snapshot", admin(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"version":"v2"`))
}

func TestConnectorAccountAdmin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/connector-accounts", admin(), map[string]any{
		"merchantId": merchant, "connector": "nope", "authType": "header_key", "apiKey": "k",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/connector-accounts", admin(), map[string]any{
		"merchantId": merchant, "connector": "dummy", "authType": "body_key", "apiKey": "k",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "body_key needs key1")

	f.onboard(t)
	rec = f.do(t, http.MethodGet, "/admin/merchants/"+merchant+"/connector-accounts", admin(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []struct {
			ID        string `json:"id"`
			Connector string `json:"connector"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "dummy", list.Items[0].Connector)

	rec = f.do(t, http.MethodDelete, "/admin/connector-accounts/"+list.Items[0].ID, admin(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_d", "manual"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepeatedAuthorizeDoesNotDispatchAgain(t *testing.T) {
	cases := []struct {
		name     string
		reply    string
		capture  string
		expected payment.AttemptStatus
	}{
		{"charged", "", "automatic", payment.StatusCharged},
		{"redirected", "requires_action", "automatic", payment.StatusAuthenticationPending},
		{"authorized", "", "manual", payment.StatusAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.acquirer.authorizeStatus = tc.reply
			f.onboard(t)

			v := decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_twice", tc.capture)))
			require.Equal(t, tc.expected, v.Status)
			captures := f.acquirer.captureCount()

			rec := f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_twice", tc.capture))
			require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
			var again paymentView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
			assert.Equal(t, tc.expected, again.Status)
			assert.Equal(t, "txn_1", again.ConnectorTransactionID)
			require.NotNil(t, again.Error)
			assert.Equal(t, "payment_already_attempted", again.Error.Code)

			assert.Equal(t, 1, f.acquirer.authorizeCount())
			assert.Equal(t, captures, f.acquirer.captureCount())
		})
	}
}

func TestAuthorizeRetriesPaymentThatNeverDispatched(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	require.NoError(t, f.intents.Save(context.Background(), &payment.Intent{
		ID: "pay_started", MerchantID: merchant, Amount: 1000, Currency: "USD", Status: payment.StatusStarted,
	}))

	v := decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_started", "manual")))
	assert.Equal(t, payment.StatusAuthorized, v.Status)
	assert.Equal(t, 1, f.acquirer.authorizeCount())
}

func TestAuthorizeOnOtherMerchantsPaymentIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	require.NoError(t, f.intents.Save(context.Background(), &payment.Intent{
		ID: "pay_other", MerchantID: "m_2", Amount: 1000, Currency: "USD", Status: payment.StatusStarted,
	}))

	rec := f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_other", "manual"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.acquirer.authorizeCount())
}

func mandateBody(paymentID string) map[string]any {
	return map[string]any{
		"paymentId": paymentID,
		"connector": "dummy",
		"currency":  "usd",
		"paymentMethod": map[string]any{
			"type": "card",
			"card": map[string]any{"number": "4242424242424242", "expiryMonth": "12", "expiryYear": "2030", "cvc": "123"},
		},
		"customerAcceptance": map[string]any{"type": "online", "ipAddress": "10.0.0.1"},
	}
}

func TestSetupMandate(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	v := decodeView(t, f.do(t, http.MethodPost, "/v1/mandates", service(), mandateBody("pay_mandate")))
	assert.Equal(t, payment.StatusCharged, v.Status)

	in, err := f.intents.FindByID(context.Background(), "pay_mandate")
	require.NoError(t, err)
	assert.Equal(t, merchant, in.MerchantID)
	assert.Zero(t, in.Amount)
}

func TestSetupMandateLeavesExistingPaymentAlone(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	decodeView(t, f.do(t, http.MethodPost, "/v1/payments", service(), authorizeBody("pay_settled", "automatic")))

	rec := f.do(t, http.MethodPost, "/v1/mandates", service(), mandateBody("pay_settled"))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	in, err := f.intents.FindByID(context.Background(), "pay_settled")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCharged, in.Status)
	assert.EqualValues(t, 1000, in.Amount)
}

func TestSetupMandateOnOtherMerchantsPaymentIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	require.NoError(t, f.intents.Save(context.Background(), &payment.Intent{
		ID: "pay_foreign", MerchantID: "m_2", Amount: 500, Currency: "USD", Status: payment.StatusStarted,
	}))

	rec := f.do(t, http.MethodPost, "/v1/mandates", service(), mandateBody("pay_foreign"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	in, err := f.intents.FindByID(context.Background(), "pay_foreign")
	require.NoError(t, err)
	assert.Equal(t, "m_2", in.MerchantID)
	assert.EqualValues(t, 500, in.Amount)
}
