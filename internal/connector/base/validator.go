package base

import (
	"fmt"
	"regexp"
	"strings"

	"payswitch/internal/domain/payment"
	"payswitch/internal/errs"
)

// PhoneValidator provides phone number validation for mobile money connectors
type PhoneValidator struct {
	countryCode string
	patterns    []*regexp.Regexp
}

// NewPhoneValidator creates a validator for a specific country
func NewPhoneValidator(countryCode string) *PhoneValidator {
	var patterns []*regexp.Regexp

	switch countryCode {
	case "KE":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^254[17]\d{8}$`),
		}
	case "UG":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^256[37]\d{8}$`),
		}
	case "TZ":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^255[67]\d{8}$`),
		}
	}

	return &PhoneValidator{
		countryCode: countryCode,
		patterns:    patterns,
	}
}

// ValidatePhone validates and normalizes a phone number to international
// format without the plus sign
func (v *PhoneValidator) ValidatePhone(phone string) (string, error) {
	normalized := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(phone)
	if normalized == "" {
		return "", errs.MissingRequiredField("payment_method_data.mobile_money.phone_number")
	}

	if strings.HasPrefix(normalized, "0") && v.countryCode == "KE" {
		normalized = "254" + normalized[1:]
	}

	for _, pattern := range v.patterns {
		if pattern.MatchString(normalized) {
			return normalized, nil
		}
	}

	return "", &errs.Error{
		Kind:    errs.KindMissingRequiredField,
		Field:   "payment_method_data.mobile_money.phone_number",
		Message: fmt.Sprintf("invalid phone number format for %s", v.countryCode),
	}
}

// AmountValidator enforces connector amount limits in minor units
type AmountValidator struct {
	min      payment.MinorUnit
	max      payment.MinorUnit
	currency payment.Currency
}

func NewAmountValidator(currency payment.Currency, minAmount, maxAmount payment.MinorUnit) *AmountValidator {
	return &AmountValidator{min: minAmount, max: maxAmount, currency: currency}
}

// ValidateAmount rejects non-positive and out-of-range amounts
func (v *AmountValidator) ValidateAmount(amount payment.MinorUnit, currency payment.Currency) error {
	if currency != v.currency {
		return errs.NotSupported(fmt.Sprintf("currency %s", currency), "")
	}
	if amount <= 0 {
		return &errs.Error{Kind: errs.KindMissingRequiredField, Field: "amount", Message: "amount must be greater than zero"}
	}
	if amount < v.min {
		return &errs.Error{Kind: errs.KindMissingRequiredField, Field: "amount",
			Message: fmt.Sprintf("amount must be at least %s %s", v.min.MajorUnitString(v.currency), v.currency)}
	}
	if v.max > 0 && amount > v.max {
		return &errs.Error{Kind: errs.KindMissingRequiredField, Field: "amount",
			Message: fmt.Sprintf("amount must not exceed %s %s", v.max.MajorUnitString(v.currency), v.currency)}
	}
	return nil
}
