package envelope

import (
	"payswitch/internal/domain/payment"
)

// AuthorizeData is the fresh customer-initiated authorization request.
type AuthorizeData struct {
	Amount               payment.MinorUnit
	Currency             payment.Currency
	PaymentMethodData    payment.PaymentMethodData
	CaptureMethod        payment.CaptureMethod
	Confirm              bool
	MandateID            *payment.MandateIDs
	SetupFutureUsage     payment.FutureUsage
	OffSession           bool
	CustomerAcceptance   *payment.CustomerAcceptance
	EnrolledFor3DS       bool
	Email                string
	StatementDescriptor  string
	CompleteAuthorizeURL string
	WebhookURL           string
	BrowserInfo          *BrowserInfo
	Metadata             map[string]string
}

type BrowserInfo struct {
	UserAgent      string
	AcceptHeader   string
	Language       string
	IPAddress      string
	ScreenHeight   int
	ScreenWidth    int
	TimeZoneOffset int
}

// MultipleCaptureData identifies one capture in a ManualMultiple sequence.
type MultipleCaptureData struct {
	CaptureSequence  int
	CaptureReference string
}

type CaptureData struct {
	AmountToCapture        payment.MinorUnit
	Currency               payment.Currency
	ConnectorTransactionID string
	PaymentAmount          payment.MinorUnit
	CaptureMethod          payment.CaptureMethod
	MultipleCaptureData    *MultipleCaptureData
	ConnectorMeta          map[string]any
}

type CancelData struct {
	ConnectorTransactionID string
	CancellationReason     string
	Amount                 *payment.MinorUnit
	Currency               payment.Currency
	ConnectorMeta          map[string]any
}

// SyncType selects a single payment lookup or a multiple-capture sync.
type SyncType struct {
	MultipleCaptureIDs []string
}

func (s SyncType) IsMultipleCapture() bool { return len(s.MultipleCaptureIDs) > 0 }

type SyncData struct {
	ConnectorTransactionID string
	EncodedData            string
	CaptureMethod          payment.CaptureMethod
	SyncType               SyncType
	Amount                 payment.MinorUnit
	Currency               payment.Currency
	MandateID              *payment.MandateIDs
	ConnectorMeta          map[string]any
}

type RefundsData struct {
	RefundID               string
	ConnectorTransactionID string
	ConnectorRefundID      string
	Currency               payment.Currency
	PaymentAmount          payment.MinorUnit
	RefundAmount           payment.MinorUnit
	Reason                 string
	ConnectorMeta          map[string]any
}

type SetupMandateData struct {
	Amount             *payment.MinorUnit
	Currency           payment.Currency
	PaymentMethodData  payment.PaymentMethodData
	CustomerAcceptance *payment.CustomerAcceptance
	SetupFutureUsage   payment.FutureUsage
	OffSession         bool
	Email              string
	BrowserInfo        *BrowserInfo
	Metadata           map[string]string
}

// RedirectResponse is what the customer's browser returned after the
// connector's challenge page.
type RedirectResponse struct {
	Params  string
	Payload map[string]string
}

type CompleteAuthorizeData struct {
	Amount                 payment.MinorUnit
	Currency               payment.Currency
	PaymentMethodData      payment.PaymentMethodData
	CaptureMethod          payment.CaptureMethod
	ConnectorTransactionID string
	RedirectResponse       *RedirectResponse
	MandateID              *payment.MandateIDs
	CustomerAcceptance     *payment.CustomerAcceptance
	SetupFutureUsage       payment.FutureUsage
	OffSession             bool
	Email                  string
}

type PreProcessingData struct {
	Amount            payment.MinorUnit
	Currency          payment.Currency
	PaymentMethodData payment.PaymentMethodData
	Email             string
	EnrolledFor3DS    bool
	RedirectResponse  *RedirectResponse
	BrowserInfo       *BrowserInfo
}

type PostProcessingData struct {
	ConnectorTransactionID string
	Amount                 payment.MinorUnit
	Currency               payment.Currency
	PaymentMethodData      payment.PaymentMethodData
}

type AccessTokenRequestData struct {
	AppID string
	ID    string
}

type CreateOrderData struct {
	Amount            payment.MinorUnit
	Currency          payment.Currency
	PaymentMethodData payment.PaymentMethodData
}

type ConnectorCustomerData struct {
	Email       string
	Name        string
	Phone       string
	Description string
}

type PaymentMethodTokenizationData struct {
	PaymentMethodData payment.PaymentMethodData
	Amount            payment.MinorUnit
	Currency          payment.Currency
}

// RepeatPaymentData is the merchant-initiated charge against a stored
// credential. It replaces AuthorizeData when a mandate is present.
type RepeatPaymentData struct {
	Amount             payment.MinorUnit
	Currency           payment.Currency
	MandateReference   payment.MandateIDs
	CaptureMethod      payment.CaptureMethod
	OffSession         bool
	CustomerAcceptance *payment.CustomerAcceptance
	WebhookURL         string
	Metadata           map[string]string
}

// RepeatFromAuthorize builds the repeat contract out of an authorize request.
func RepeatFromAuthorize(a AuthorizeData) RepeatPaymentData {
	r := RepeatPaymentData{
		Amount:             a.Amount,
		Currency:           a.Currency,
		CaptureMethod:      a.CaptureMethod,
		OffSession:         true,
		CustomerAcceptance: a.CustomerAcceptance,
		WebhookURL:         a.WebhookURL,
		Metadata:           a.Metadata,
	}
	if a.MandateID != nil {
		r.MandateReference = *a.MandateID
	}
	return r
}
