package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMajorUnitString(t *testing.T) {
	assert.Equal(t, "10.50", MinorUnit(1050).MajorUnitString(USD))
	assert.Equal(t, "1050", MinorUnit(1050).MajorUnitString(JPY))
	assert.Equal(t, "1.050", MinorUnit(1050).MajorUnitString("KWD"))
	assert.Equal(t, "0.05", MinorUnit(5).MajorUnitString(EUR))
}

func TestParseMajorUnit(t *testing.T) {
	m, err := ParseMajorUnit("10.50", USD)
	require.NoError(t, err)
	assert.Equal(t, MinorUnit(1050), m)

	_, err = ParseMajorUnit("10.505", USD)
	assert.Error(t, err)

	_, err = ParseMajorUnit("ten", USD)
	assert.Error(t, err)
}

func TestStatusClasses(t *testing.T) {
	assert.True(t, StatusCharged.IsTerminal())
	assert.True(t, StatusCaptureFailed.IsFailure())
	assert.False(t, StatusAuthorized.IsTerminal())
	assert.False(t, StatusPending.IsFailure())
	assert.Greater(t, StatusCharged.Rank(), StatusAuthorized.Rank())
	assert.Equal(t, -1, AttemptStatus("bogus").Rank())
}

func TestCaptureMethodIsAutomatic(t *testing.T) {
	assert.True(t, CaptureAutomatic.IsAutomatic())
	assert.True(t, CaptureSequentialAutomatic.IsAutomatic())
	assert.True(t, CaptureMethod("").IsAutomatic())
	assert.False(t, CaptureManual.IsAutomatic())
	assert.False(t, CaptureScheduled.IsAutomatic())
}

func TestParseGatewaySystem(t *testing.T) {
	g, err := ParseGatewaySystem(" direct ")
	require.NoError(t, err)
	assert.Equal(t, GatewayDirect, g)

	_, err = ParseGatewaySystem("carrier-pigeon")
	assert.Error(t, err)
}

type countingVisitor struct{ seen []PaymentMethodType }

func (c *countingVisitor) VisitCard(*Card) error { c.seen = append(c.seen, MethodCard); return nil }
func (c *countingVisitor) VisitWallet(*Wallet) error {
	c.seen = append(c.seen, MethodWallet)
	return nil
}
func (c *countingVisitor) VisitBankRedirect(*BankRedirect) error {
	c.seen = append(c.seen, MethodBankRedirect)
	return nil
}
func (c *countingVisitor) VisitMobileMoney(*MobileMoney) error {
	c.seen = append(c.seen, MethodMobileMoney)
	return nil
}
func (c *countingVisitor) VisitMandate(*MandatePayment) error {
	c.seen = append(c.seen, MethodMandate)
	return nil
}

func TestVisitorDispatch(t *testing.T) {
	v := &countingVisitor{}
	for _, pm := range []PaymentMethodData{&Card{}, &Wallet{}, &BankRedirect{}, &MobileMoney{}, &MandatePayment{}} {
		require.NoError(t, pm.Accept(v))
	}
	assert.Equal(t, []PaymentMethodType{MethodCard, MethodWallet, MethodBankRedirect, MethodMobileMoney, MethodMandate}, v.seen)
}
