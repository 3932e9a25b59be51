package calculator

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatAmount renders amount in the given ISO 4217 currency (e.g. "$1.50").
// Unknown currencies fall back to the plain amount followed by the code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		if currency == "" {
			return amount.StringFixed(2)
		}
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// IsKnownCurrency reports whether code is a currency go-money knows about.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}
