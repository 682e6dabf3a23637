package base

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payswitch/internal/domain/payment"
	"payswitch/internal/errs"
)

func TestHTTPClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":100}`, string(b))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"txn_1"}`))
	}))
	defer srv.Close()

	body, err := JSONBody(map[string]int{"amount": 100})
	require.NoError(t, err)
	req := &Request{
		Method:  MethodPost,
		URL:     srv.URL + "/payments",
		Headers: Headers{}.AddMasked("Authorization", "Bearer secret"),
		Body:    body,
	}

	resp, err := NewHTTPClient(time.Second).Send(context.Background(), "dummy", req)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.False(t, resp.Is5xx())

	var out struct{ ID string }
	require.NoError(t, resp.UnmarshalJSON(&out))
	assert.Equal(t, "txn_1", out.ID)
}

func TestHTTPClientTimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(20*time.Millisecond).Send(context.Background(), "dummy", &Request{Method: MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errs.As(err).Retryable())
}

func TestUnmarshalFailureIsDecodeError(t *testing.T) {
	r := &Response{StatusCode: 200, Body: []byte("<html>")}
	var v map[string]any
	err := r.UnmarshalJSON(&v)
	assert.True(t, errs.IsKind(err, errs.KindResponseDeserializationFailed))
}

func TestHeadersGet(t *testing.T) {
	h := Headers{}.Add("x-request-id", "abc").AddMasked("Authorization", "k")
	assert.Equal(t, "abc", h.Get("X-Request-Id"))
	assert.True(t, h[1].Masked)
}

func TestPhoneValidator(t *testing.T) {
	v := NewPhoneValidator("KE")
	got, err := v.ValidatePhone("0712 345-678")
	require.NoError(t, err)
	assert.Equal(t, "254712345678", got)

	_, err = v.ValidatePhone("12345")
	assert.Error(t, err)

	_, err = v.ValidatePhone("")
	assert.True(t, errs.IsKind(err, errs.KindMissingRequiredField))
}

func TestAmountValidator(t *testing.T) {
	v := NewAmountValidator(payment.KES, 100, 15000000)
	assert.NoError(t, v.ValidateAmount(1000, payment.KES))
	assert.Error(t, v.ValidateAmount(0, payment.KES))
	assert.Error(t, v.ValidateAmount(50, payment.KES))
	assert.Error(t, v.ValidateAmount(15000001, payment.KES))
	assert.True(t, errs.IsKind(v.ValidateAmount(1000, payment.USD), errs.KindNotSupported))
}
