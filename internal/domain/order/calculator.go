package order

import (
	"github.com/shopspring/decimal"
)

// Calculator validates carts and prices them.
type Calculator struct{}

// Validate checks that the cart has at least one item and that every item
// has a positive price and quantity.
func (Calculator) Validate(c Cart) error {
	if len(c.Items) == 0 {
		return ErrItemsRequired
	}
	for _, item := range c.Items {
		if !item.Price.IsPositive() || item.Quantity <= 0 {
			return ErrItemsInvalid
		}
	}
	return nil
}

// Calculate returns the cart total minus discount, floored at zero.
//
// The positivity check runs on the pre-discount sum, so it guards callers
// that skip Validate: a zero or negative sum is rejected, never clamped.
func (Calculator) Calculate(c Cart, discount decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if !total.IsPositive() {
		return decimal.Zero, ErrTotalNotPositive
	}

	final := total.Sub(discount)
	if final.IsNegative() {
		return decimal.Zero, nil
	}
	return final, nil
}
