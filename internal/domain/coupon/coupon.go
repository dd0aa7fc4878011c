package coupon

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error reports a coupon code that does not resolve to a discount.
type Error struct {
	Code string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "invalid coupon"
	}
	return fmt.Sprintf("invalid coupon %q", e.Code)
}

// Is makes every *Error match ErrInvalidCoupon.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// ErrInvalidCoupon is the sentinel matched by every coupon lookup failure
// that means "no such coupon". Use Invalid to attach the code.
var ErrInvalidCoupon error = &Error{}

// Invalid returns an *Error for code.
func Invalid(code string) error {
	return &Error{Code: code}
}

// Discount is an absolute amount subtracted from an order total.
type Discount struct {
	Amount decimal.Decimal
}

// NewDiscount returns a Discount for amount, clamping negative values to zero.
func NewDiscount(amount decimal.Decimal) Discount {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Discount{Amount: amount}
}

// Resolver looks up the discount granted by a coupon code.
// Implementations return an error matching ErrInvalidCoupon when the code
// has no coupon record.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Discount, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, code string) (*Discount, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, code string) (*Discount, error) {
	return f(ctx, code)
}
