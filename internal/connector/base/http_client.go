package base

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"payswitch/internal/errs"
	"payswitch/internal/logging"
)

type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// Header is one outbound header. Masked headers are never logged in clear.
type Header struct {
	Name   string
	Value  string
	Masked bool
}

type Headers []Header

// Add appends a plain header
func (h Headers) Add(name, value string) Headers {
	return append(h, Header{Name: name, Value: value})
}

// AddMasked appends a credential header
func (h Headers) AddMasked(name, value string) Headers {
	return append(h, Header{Name: name, Value: value, Masked: true})
}

// Get returns the first value for name
func (h Headers) Get(name string) string {
	for _, hd := range h {
		if http.CanonicalHeaderKey(hd.Name) == http.CanonicalHeaderKey(name) {
			return hd.Value
		}
	}
	return ""
}

// RequestBody is an encoded connector payload
type RequestBody struct {
	ContentType string
	Raw         []byte
}

// JSONBody encodes v as JSON
func JSONBody(v any) (*RequestBody, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.RequestEncodingFailed(err)
	}
	return &RequestBody{ContentType: "application/json", Raw: raw}, nil
}

// FormBody encodes values as application/x-www-form-urlencoded
func FormBody(values url.Values) *RequestBody {
	return &RequestBody{ContentType: "application/x-www-form-urlencoded", Raw: []byte(values.Encode())}
}

// Request is a fully built connector call
type Request struct {
	Method  Method
	URL     string
	Headers Headers
	Body    *RequestBody
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
}

// IsSuccess checks if the response indicates success (2xx status code)
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Is5xx reports a server-side failure
func (r *Response) Is5xx() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// UnmarshalJSON unmarshals the body, mapping failures to a decode error
func (r *Response) UnmarshalJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errs.ResponseDeserializationFailed(err)
	}
	return nil
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// Sender executes built requests. The orchestrator only talks to connectors
// through a Sender.
type Sender interface {
	Send(ctx context.Context, connector string, req *Request) (*Response, error)
}

// HTTPClient is the production Sender
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates an instrumented client with the given timeout
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send executes req. Network failures and timeouts come back as transport
// errors; any HTTP status is a response.
func (c *HTTPClient) Send(ctx context.Context, connector string, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body.Raw)
	}
	req, err := http.NewRequestWithContext(ctx, string(r.Method), r.URL, body)
	if err != nil {
		return nil, errs.RequestEncodingFailed(fmt.Errorf("failed to create request: %w", err))
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", r.Body.ContentType)
	}
	req.Header.Set("User-Agent", "payswitch/"+connector)
	for _, h := range r.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	log.Debug().
		Str("connector", connector).
		Str("method", string(r.Method)).
		Str("url", r.URL).
		Interface("headers", logging.MaskHeaders(req.Header)).
		Msg("making connector request")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().
			Str("connector", connector).
			Str("url", r.URL).
			Err(err).
			Msg("connector request failed")
		return nil, errs.Transport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transport(fmt.Errorf("failed to read response body: %w", err))
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
		Latency:    time.Since(started),
	}

	log.Debug().
		Str("connector", connector).
		Int("status_code", resp.StatusCode).
		Int("body_length", len(raw)).
		Dur("latency", out.Latency).
		Msg("received connector response")

	return out, nil
}
