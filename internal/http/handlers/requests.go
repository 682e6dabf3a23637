package handlers

import (
	"fmt"
	"strings"
	"time"

	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
)

type cardReq struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	HolderName  string `json:"holderName,omitempty"`
	CVC         string `json:"cvc"`
	Network     string `json:"network,omitempty"`
}

type walletReq struct {
	Kind                    string `json:"kind"` // google_pay | apple_pay | paypal
	Token                   string `json:"token"`
	CardHolderAuthenticated *bool  `json:"cardHolderAuthenticated,omitempty"`
	AccountVerified         *bool  `json:"accountVerified,omitempty"`
}

type bankRedirectReq struct {
	Bank    string `json:"bank"`
	Country string `json:"country"`
	Issuer  string `json:"issuer,omitempty"`
}

type mobileMoneyReq struct {
	Provider string `json:"provider"`
	Phone    string `json:"phone"`
}

// paymentMethodReq carries exactly one instrument, selected by Type.
type paymentMethodReq struct {
	Type         string           `json:"type"`
	Card         *cardReq         `json:"card,omitempty"`
	Wallet       *walletReq       `json:"wallet,omitempty"`
	BankRedirect *bankRedirectReq `json:"bankRedirect,omitempty"`
	MobileMoney  *mobileMoneyReq  `json:"mobileMoney,omitempty"`
}

func (p paymentMethodReq) resolve() (payment.PaymentMethodData, error) {
	switch payment.PaymentMethodType(strings.ToLower(strings.TrimSpace(p.Type))) {
	case payment.MethodCard:
		if p.Card == nil {
			return nil, fmt.Errorf("paymentMethod.card is required")
		}
		return &payment.Card{
			Number:      p.Card.Number,
			ExpiryMonth: p.Card.ExpiryMonth,
			ExpiryYear:  p.Card.ExpiryYear,
			HolderName:  p.Card.HolderName,
			CVC:         p.Card.CVC,
			Network:     p.Card.Network,
		}, nil
	case payment.MethodWallet:
		if p.Wallet == nil {
			return nil, fmt.Errorf("paymentMethod.wallet is required")
		}
		w := &payment.Wallet{Kind: payment.WalletKind(p.Wallet.Kind), Token: p.Wallet.Token}
		if p.Wallet.CardHolderAuthenticated != nil || p.Wallet.AccountVerified != nil {
			w.Assurance = &payment.AssuranceDetails{
				CardHolderAuthenticated: p.Wallet.CardHolderAuthenticated != nil && *p.Wallet.CardHolderAuthenticated,
				AccountVerified:         p.Wallet.AccountVerified != nil && *p.Wallet.AccountVerified,
			}
		}
		return w, nil
	case payment.MethodBankRedirect:
		if p.BankRedirect == nil {
			return nil, fmt.Errorf("paymentMethod.bankRedirect is required")
		}
		return &payment.BankRedirect{Bank: p.BankRedirect.Bank, Country: p.BankRedirect.Country, Issuer: p.BankRedirect.Issuer}, nil
	case payment.MethodMobileMoney:
		if p.MobileMoney == nil {
			return nil, fmt.Errorf("paymentMethod.mobileMoney is required")
		}
		return &payment.MobileMoney{Provider: p.MobileMoney.Provider, PhoneNumber: p.MobileMoney.Phone}, nil
	case payment.MethodMandate:
		return &payment.MandatePayment{}, nil
	}
	return nil, fmt.Errorf("unknown paymentMethod.type %q", p.Type)
}

type acceptanceReq struct {
	Type       string    `json:"type"` // online | offline
	AcceptedAt time.Time `json:"acceptedAt"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

func (a *acceptanceReq) resolve() *payment.CustomerAcceptance {
	if a == nil {
		return nil
	}
	out := &payment.CustomerAcceptance{
		Type:       payment.AcceptanceType(a.Type),
		AcceptedAt: a.AcceptedAt,
		IPAddress:  a.IPAddress,
		UserAgent:  a.UserAgent,
	}
	if out.Type == "" {
		out.Type = payment.AcceptanceOnline
	}
	if out.AcceptedAt.IsZero() {
		out.AcceptedAt = time.Now().UTC()
	}
	return out
}

type mandateReq struct {
	MandateID            string `json:"mandateId,omitempty"`
	ConnectorMandateID   string `json:"connectorMandateId,omitempty"`
	NetworkTransactionID string `json:"networkTransactionId,omitempty"`
}

func (m *mandateReq) resolve() *payment.MandateIDs {
	if m == nil {
		return nil
	}
	out := &payment.MandateIDs{MandateID: m.MandateID, NetworkTransactionID: m.NetworkTransactionID}
	if m.ConnectorMandateID != "" {
		out.ConnectorMandate = &payment.MandateReference{ConnectorMandateID: m.ConnectorMandateID}
	}
	return out
}

type browserReq struct {
	UserAgent string `json:"userAgent"`
	Accept    string `json:"accept"`
	Language  string `json:"language"`
	IPAddress string `json:"ipAddress"`
}

func (b *browserReq) resolve() *envelope.BrowserInfo {
	if b == nil {
		return nil
	}
	return &envelope.BrowserInfo{UserAgent: b.UserAgent, AcceptHeader: b.Accept, Language: b.Language, IPAddress: b.IPAddress}
}

// attemptReq is the part every dispatch call shares.
type attemptReq struct {
	Connector   string `json:"connector"`
	AttemptID   string `json:"attemptId,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`
	Label       string `json:"label,omitempty"`
}

type authorizeReq struct {
	attemptReq
	PaymentID          string            `json:"paymentId"`
	Amount             int64             `json:"amount"` // minor units
	Currency           string            `json:"currency"`
	CaptureMethod      string            `json:"captureMethod,omitempty"`
	AuthenticationType string            `json:"authenticationType,omitempty"`
	EnrolledFor3DS     bool              `json:"enrolledFor3ds,omitempty"`
	PaymentMethod      paymentMethodReq  `json:"paymentMethod"`
	SetupFutureUsage   string            `json:"setupFutureUsage,omitempty"`
	OffSession         bool              `json:"offSession,omitempty"`
	CustomerAcceptance *acceptanceReq    `json:"customerAcceptance,omitempty"`
	Mandate            *mandateReq       `json:"mandate,omitempty"`
	Browser            *browserReq       `json:"browser,omitempty"`
	Email              string            `json:"email,omitempty"`
	Description        string            `json:"description,omitempty"`
	ReturnURL          string            `json:"returnUrl,omitempty"`
	WebhookURL         string            `json:"webhookUrl,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

func (in *authorizeReq) validate() error {
	if strings.TrimSpace(in.PaymentID) == "" || strings.TrimSpace(in.Connector) == "" {
		return fmt.Errorf("paymentId and connector are required")
	}
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

func (in *authorizeReq) data() (envelope.AuthorizeData, error) {
	mandate := in.Mandate.resolve()
	var pm payment.PaymentMethodData
	if mandate.IsRepeat() && in.PaymentMethod.Type == "" {
		pm = &payment.MandatePayment{}
	} else {
		var err error
		if pm, err = in.PaymentMethod.resolve(); err != nil {
			return envelope.AuthorizeData{}, err
		}
	}
	return envelope.AuthorizeData{
		Amount:             payment.MinorUnit(in.Amount),
		Currency:           payment.Currency(strings.ToUpper(in.Currency)),
		PaymentMethodData:  pm,
		CaptureMethod:      payment.CaptureMethod(in.CaptureMethod),
		Confirm:            true,
		MandateID:          mandate,
		SetupFutureUsage:   payment.FutureUsage(in.SetupFutureUsage),
		OffSession:         in.OffSession,
		CustomerAcceptance: in.CustomerAcceptance.resolve(),
		EnrolledFor3DS:     in.EnrolledFor3DS,
		Email:              in.Email,
		WebhookURL:         in.WebhookURL,
		BrowserInfo:        in.Browser.resolve(),
		Metadata:           in.Metadata,
	}, nil
}

type captureReq struct {
	attemptReq
	ConnectorTransactionID string `json:"connectorTransactionId"`
	Amount                 int64  `json:"amount"`
	PaymentAmount          int64  `json:"paymentAmount,omitempty"`
	CaptureMethod          string `json:"captureMethod,omitempty"`
	Sequence               int    `json:"sequence,omitempty"`
	CaptureReference       string `json:"captureReference,omitempty"`
}

type voidReq struct {
	attemptReq
	ConnectorTransactionID string `json:"connectorTransactionId"`
	Reason                 string `json:"reason,omitempty"`
}

type syncReq struct {
	attemptReq
	ConnectorTransactionID string   `json:"connectorTransactionId"`
	CaptureMethod          string   `json:"captureMethod,omitempty"`
	CaptureIDs             []string `json:"captureIds,omitempty"`
}

type completeReq struct {
	attemptReq
	ConnectorTransactionID string            `json:"connectorTransactionId"`
	CaptureMethod          string            `json:"captureMethod,omitempty"`
	Params                 string            `json:"params,omitempty"`
	Payload                map[string]string `json:"payload,omitempty"`
}

type refundReq struct {
	attemptReq
	RefundID               string `json:"refundId"`
	ConnectorTransactionID string `json:"connectorTransactionId"`
	ConnectorRefundID      string `json:"connectorRefundId,omitempty"`
	Amount                 int64  `json:"amount"`
	PaymentAmount          int64  `json:"paymentAmount,omitempty"`
	Reason                 string `json:"reason,omitempty"`
}

type setupMandateReq struct {
	attemptReq
	PaymentID          string            `json:"paymentId"`
	Amount             *int64            `json:"amount,omitempty"`
	Currency           string            `json:"currency"`
	PaymentMethod      paymentMethodReq  `json:"paymentMethod"`
	CustomerAcceptance *acceptanceReq    `json:"customerAcceptance"`
	Email              string            `json:"email,omitempty"`
	Browser            *browserReq       `json:"browser,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}
