package domain

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	CurrencyEUR = "EUR"
	CurrencyBTC = "BTC"

	defaultScale int32 = 8
)

// currencyScale holds display precision per currency code.
var currencyScale = map[string]int32{
	CurrencyEUR: 2,
	CurrencyBTC: 8,
}

// ErrInvalidAmount is returned when a decimal string cannot be parsed.
var ErrInvalidAmount = errors.New("invalid decimal amount")

// ParseAmount parses a decimal string without going through float64.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}

	return d, nil
}

// Scale returns the display precision of the currency.
func Scale(currency string) int32 {
	if scale, ok := currencyScale[strings.ToUpper(currency)]; ok {
		return scale
	}

	return defaultScale
}

// FormatNumber renders v with the precision of the currency.
func FormatNumber(v decimal.Decimal, currency string) string {
	return v.StringFixed(Scale(currency))
}

// Sum returns a + b.
func Sum(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b)
}

// Sub returns a - b.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}

// Mul returns a * b.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b)
}

// Comp compares a and b exactly: -1 if a < b, 0 if equal, 1 if a > b.
func Comp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}
