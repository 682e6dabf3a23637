// Package mpesa implements the Safaricom Daraja mobile-money connector. An
// authorize is an STK push that completes asynchronously on the customer's
// handset, so it always settles through psync.
package mpesa

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/domain/credential"
	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

const ID = "mpesa"

const (
	SandboxURL    = "https://sandbox.safaricom.co.ke"
	ProductionURL = "https://api.safaricom.co.ke"
)

var eat = time.FixedZone("EAT", 3*3600)

// Connector implements connector.Connector for M-Pesa Daraja
type Connector struct {
	baseURL     string
	callbackURL string
	phones      *base.PhoneValidator
	amounts     *base.AmountValidator
	now         func() time.Time
}

// New creates the connector. callbackURL receives Daraja's STK callbacks.
func New(baseURL, callbackURL string) *Connector {
	if baseURL == "" {
		baseURL = SandboxURL
	}
	return &Connector{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: callbackURL,
		phones:      base.NewPhoneValidator("KE"),
		amounts:     base.NewAmountValidator(payment.KES, 100, 15000000),
		now:         time.Now,
	}
}

func (c *Connector) ID() string      { return ID }
func (c *Connector) BaseURL() string { return c.baseURL }

func (c *Connector) Capabilities() connector.Capabilities {
	return connector.Capabilities{AccessToken: true}
}

// darajaAuth is the credential layout: consumer key and secret, the
// business shortcode and the Lipa Na M-Pesa passkey.
type darajaAuth struct {
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
}

func parseAuth(auth credential.ConnectorAuthType) (darajaAuth, error) {
	if auth.Kind != credential.AuthMultiAuthKey || auth.Validate() != nil {
		return darajaAuth{}, errs.FailedToObtainAuthType().WithConnector(ID, "")
	}
	return darajaAuth{
		consumerKey:    auth.APIKey,
		consumerSecret: auth.APISecret,
		shortcode:      auth.Key1,
		passkey:        auth.Key2,
	}, nil
}

// AuthHeaders returns the Basic header used by the token endpoint
func (c *Connector) AuthHeaders(auth credential.ConnectorAuthType) (base.Headers, error) {
	a, err := parseAuth(auth)
	if err != nil {
		return nil, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(a.consumerKey + ":" + a.consumerSecret))
	return base.Headers{}.AddMasked("Authorization", "Basic "+basic), nil
}

func (c *Connector) bearer(cm *envelope.Common) (base.Headers, error) {
	if cm.AccessToken == nil || cm.AccessToken.Token == "" {
		return nil, errs.FailedToObtainAuthType().WithConnector(ID, "")
	}
	return base.Headers{}.
		AddMasked("Authorization", "Bearer "+cm.AccessToken.Token).
		Add("X-Reference-Id", cm.ConnectorRequestReferenceID), nil
}

// password derives the STK password for the given timestamp
func (c *Connector) password(a darajaAuth) (pwd, ts string) {
	ts = c.now().In(eat).Format("20060102150405")
	return base64.StdEncoding.EncodeToString([]byte(a.shortcode + a.passkey + ts)), ts
}

// wholeShillings converts minor units to the integer amount Daraja takes
func wholeShillings(amount payment.MinorUnit) (int64, error) {
	if amount%100 != 0 {
		return 0, errs.NotSupported("fractional shilling amounts", ID)
	}
	return int64(amount / 100), nil
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// GetErrorResponse decodes Daraja's error envelope
func (c *Connector) GetErrorResponse(res *base.Response) (envelope.ErrorResponse, error) {
	var body darajaError
	if err := res.UnmarshalJSON(&body); err != nil {
		return envelope.ErrorResponse{}, err
	}
	return envelope.ErrorResponse{
		Code:       body.ErrorCode,
		Message:    body.ErrorMessage,
		StatusCode: res.StatusCode,
		Reason:     body.RequestID,
	}, nil
}

func (c *Connector) logOperation(operation string, fields map[string]any) {
	log.Info().
		Str("connector", ID).
		Str("operation", operation).
		Fields(fields).
		Msg("mpesa operation")
}

// expiresIn parses Daraja's string expiry, defaulting to one hour
func expiresIn(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 3600
	}
	return n
}

// Register binds the flows Daraja supports
func Register(r *connector.Registry, c *Connector) {
	r.Register(c)
	connector.Bind[envelope.AccessTokenAuth](r, ID, accessToken{c})
	connector.Bind[envelope.Authorize](r, ID, stkPush{c})
	connector.Bind[envelope.PSync](r, ID, stkQuery{c})
}

func (c *Connector) url(path string) string { return fmt.Sprintf("%s%s", c.baseURL, path) }
