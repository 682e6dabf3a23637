package payment

// PaymentMethodType is the family of a payment method.
type PaymentMethodType string

const (
	MethodCard         PaymentMethodType = "card"
	MethodWallet       PaymentMethodType = "wallet"
	MethodBankRedirect PaymentMethodType = "bank_redirect"
	MethodMobileMoney  PaymentMethodType = "mobile_money"
	MethodMandate      PaymentMethodType = "mandate_payment"
)

// PaymentMethodData is an already-resolved payment method. The set of
// variants is closed: every variant implements Accept, and adding one adds a
// method to MethodVisitor, so each request builder stops compiling until it
// handles the new family.
type PaymentMethodData interface {
	Type() PaymentMethodType
	Accept(v MethodVisitor) error
}

// MethodVisitor must handle every payment method family.
type MethodVisitor interface {
	VisitCard(*Card) error
	VisitWallet(*Wallet) error
	VisitBankRedirect(*BankRedirect) error
	VisitMobileMoney(*MobileMoney) error
	VisitMandate(*MandatePayment) error
}

type Card struct {
	Number       string
	ExpiryMonth  string
	ExpiryYear   string
	HolderName   string
	CVC          string
	Network      string
	IsNetworkTok bool
}

func (*Card) Type() PaymentMethodType        { return MethodCard }
func (c *Card) Accept(v MethodVisitor) error { return v.VisitCard(c) }

// Last4 of the card number.
func (c *Card) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

type WalletKind string

const (
	WalletGooglePay WalletKind = "google_pay"
	WalletApplePay  WalletKind = "apple_pay"
	WalletPayPal    WalletKind = "paypal"
)

// AssuranceDetails are the wallet's signals about the card holder.
type AssuranceDetails struct {
	CardHolderAuthenticated bool
	AccountVerified         bool
}

type Wallet struct {
	Kind      WalletKind
	Token     string
	Assurance *AssuranceDetails
}

func (*Wallet) Type() PaymentMethodType        { return MethodWallet }
func (w *Wallet) Accept(v MethodVisitor) error { return v.VisitWallet(w) }

type BankRedirect struct {
	Bank    string
	Country string
	Issuer  string
}

func (*BankRedirect) Type() PaymentMethodType        { return MethodBankRedirect }
func (b *BankRedirect) Accept(v MethodVisitor) error { return v.VisitBankRedirect(b) }

type MobileMoney struct {
	Provider    string
	PhoneNumber string
}

func (*MobileMoney) Type() PaymentMethodType        { return MethodMobileMoney }
func (m *MobileMoney) Accept(v MethodVisitor) error { return v.VisitMobileMoney(m) }

// MandatePayment is used for merchant-initiated charges against a stored
// credential; it carries no instrument data of its own.
type MandatePayment struct{}

func (*MandatePayment) Type() PaymentMethodType        { return MethodMandate }
func (m *MandatePayment) Accept(v MethodVisitor) error { return v.VisitMandate(m) }
