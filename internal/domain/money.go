package domain

import (
	"github.com/shopspring/decimal"
)

// All monetary state is stored as integer hundredths of the asset unit
// ("cents"). The payment provider speaks decimal strings with two
// fractional digits; conversion in either direction lives here so no other
// package does money arithmetic on floats.

// CentsToDecimal converts an integer cents amount to the provider's decimal
// value (1050 → 10.5). CentsString renders it with two fractional digits.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// CentsString renders a cents amount as the provider decimal string.
func CentsString(cents int64) string {
	return CentsToDecimal(cents).StringFixed(2)
}

// DecimalToCents converts a provider decimal amount to cents.
// Amounts with more than two fractional digits are rejected: the provider
// contract is two-digit precision and anything finer would silently lose
// value in the integer representation.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	return scaled.IntPart(), nil
}

// ParseAmountCents parses a user- or provider-supplied decimal string into
// cents, enforcing positivity and two-digit precision.
func ParseAmountCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrAmountInvalid
	}
	cents, err := DecimalToCents(d)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrAmountNotPositive
	}
	return cents, nil
}
