package model

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformedAmount  = errors.New("malformed amount")
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// MaxAmount is the first magnitude a NUMERIC(20,2) column cannot hold.
var MaxAmount = decimal.New(1, 18)

// CheckAmount reports whether d is representable in the ledger: whole cents
// and a magnitude below MaxAmount.
func CheckAmount(d decimal.Decimal) error {
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return ErrMalformedAmount
	}
	if d.Abs().GreaterThanOrEqual(MaxAmount) {
		return ErrAmountOutOfRange
	}
	return nil
}

// ParseAmount accepts "100", "$1,250.50" and similar. At most two fractional
// digits are allowed; the sign is kept so callers can reject non-positive values.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, ErrMalformedAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	return d, nil
}

// FormatMoney renders an amount as "$1,250.50".
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
