package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	formatted := formatPositiveCurrency(d.Abs())
	if d.IsNegative() {
		return "-$" + formatted
	}
	return "$" + formatted
}

// Percent renders a signed fraction as a percentage with two decimals (e.g., "+5.26%").
func Percent(fraction float64) string {
	d := decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).Round(2)
	if d.IsZero() {
		return "0.00%"
	}
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// Cents rounds an amount to two decimals using decimal arithmetic.
func Cents(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return f
}

func formatPositiveCurrency(value decimal.Decimal) string {
	formatted := value.StringFixed(2)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + "." + decPart
}
