package shared

import "github.com/shopspring/decimal"

// PriceScale and PriceIntegerDigits mirror the NUMERIC(12, 2) price columns.
const (
	PriceScale         = 2
	PriceIntegerDigits = 10
)

var maxPriceExclusive = decimal.New(1, PriceIntegerDigits)

// ValidPrice reports whether d is positive and storable without rounding.
func ValidPrice(d decimal.Decimal) bool {
	if !d.IsPositive() || !d.LessThan(maxPriceExclusive) {
		return false
	}
	return d.Equal(d.Round(PriceScale))
}
