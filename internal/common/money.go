package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrFractionalCents rejects dollar amounts with more than two decimal
// places. The pricing engine works in integer cents only; truncating here
// would silently misprice.
var ErrFractionalCents = errors.New("amount has sub-cent precision")

// ParseDollarsToCents converts a decimal dollar string such as "74.99" into
// integer cents exactly. The conversion happens once at the system boundary;
// nothing downstream touches decimal dollars again.
func ParseDollarsToCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return DecimalToCents(d)
}

// DecimalToCents converts a decimal dollar amount into integer cents,
// rejecting sub-cent precision.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, ErrFractionalCents
	}
	return cents.IntPart(), nil
}

// CentsToDecimal renders integer cents as a two-place decimal dollar amount
// for display payloads.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// FormatCents renders cents as a fixed two-decimal string, e.g. 7499 ->
// "74.99".
func FormatCents(cents int64) string {
	return CentsToDecimal(cents).StringFixed(2)
}
