package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in minor currency units (paise). All arithmetic on
// amounts happens in integers so balances compare exactly, without the
// epsilon tolerance float math would need.
type Money int64

// ErrInvalidAmount indicates a malformed or out-of-range amount string.
var ErrInvalidAmount = errors.New("invalid amount")

var minorFactor = decimal.NewFromInt(100)

// ParseMoney converts a decimal string like "1499.50" into minor units.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Mul(minorFactor)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-minor precision", ErrInvalidAmount, s)
	}
	return Money(minor.IntPart()), nil
}

// MustParseMoney panics on a bad amount. Test helper.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the major-unit decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(minorFactor)
}

// String renders the amount with two decimal places, e.g. "1499.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MulQty multiplies a unit price by a quantity.
func (m Money) MulQty(qty int64) Money {
	return Money(int64(m) * qty)
}

var amountPrinter = message.NewPrinter(language.English)

// DisplayAmount formats an amount with thousand separators for
// notification payloads and human-facing messages.
func DisplayAmount(m Money) string {
	whole := int64(m) / 100
	frac := int64(m) % 100
	if frac < 0 {
		frac = -frac
	}
	return amountPrinter.Sprintf("%d.%02d", whole, frac)
}
