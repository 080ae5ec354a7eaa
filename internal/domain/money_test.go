package domain_test

import (
	"errors"
	"testing"

	"github.com/ringside/sidebet/internal/domain"
	"github.com/shopspring/decimal"
)

// TestCentsString checks the cents → provider-decimal rendering always
// carries two fractional digits.
func TestCentsString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{100, "1.00"},
		{1050, "10.50"},
		{25600, "256.00"},
	}
	for _, tc := range cases {
		if got := domain.CentsString(tc.cents); got != tc.want {
			t.Errorf("CentsString(%d): want %q, got %q", tc.cents, tc.want, got)
		}
	}
}

// TestParseAmountCents covers acceptance, precision rejection, and sign
// rejection for provider / user amounts.
func TestParseAmountCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{"10", 1000, nil},
		{"10.5", 1050, nil},
		{"10.50", 1050, nil},
		{"0.01", 1, nil},
		{"10.505", 0, domain.ErrAmountPrecision},
		{"0", 0, domain.ErrAmountNotPositive},
		{"-5", 0, domain.ErrAmountNotPositive},
		{"abc", 0, domain.ErrAmountInvalid},
		{"", 0, domain.ErrAmountInvalid},
	}

	for _, tc := range cases {
		got, err := domain.ParseAmountCents(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ParseAmountCents(%q): want error %v, got %v", tc.in, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmountCents(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmountCents(%q): want %d, got %d", tc.in, tc.want, got)
		}
	}
}

// TestDecimalRoundTrip: cents → decimal → cents must be the identity.
func TestDecimalRoundTrip(t *testing.T) {
	for _, cents := range []int64{1, 99, 100, 1050, 123456789} {
		back, err := domain.DecimalToCents(domain.CentsToDecimal(cents))
		if err != nil {
			t.Fatalf("round trip %d: %v", cents, err)
		}
		if back != cents {
			t.Errorf("round trip: want %d, got %d", cents, back)
		}
	}

	// Three fractional digits never survive the boundary.
	d := decimal.RequireFromString("1.005")
	if _, err := domain.DecimalToCents(d); !errors.Is(err, domain.ErrAmountPrecision) {
		t.Errorf("DecimalToCents(1.005): want ErrAmountPrecision, got %v", err)
	}
}
