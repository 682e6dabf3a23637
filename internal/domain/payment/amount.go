package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnit is an amount in the currency's smallest unit (cents).
type MinorUnit int64

// MajorUnitString renders the amount in major units, e.g. 1050 USD -> "10.50".
func (m MinorUnit) MajorUnitString(c Currency) string {
	exp := c.Exponent()
	return decimal.New(int64(m), -exp).StringFixed(exp)
}

// ParseMajorUnit converts "10.50" USD back to 1050.
func ParseMajorUnit(s string, c Currency) (MinorUnit, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(c.Exponent())
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", s, c)
	}
	return MinorUnit(scaled.IntPart()), nil
}
