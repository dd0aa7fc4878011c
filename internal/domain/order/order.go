package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// CartItem is a single line of a cart.
type CartItem struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Cart is the caller-supplied set of items and optional coupon code. An
// empty CouponID means no coupon was supplied.
type Cart struct {
	Items    []CartItem
	CouponID string
}

// PricedOrder is a cart with its final price and primary payment method.
type PricedOrder struct {
	Items         []CartItem
	CouponID      string
	TotalPrice    decimal.Decimal
	PaymentMethod payment.Method
}

// StoredOrder is a PricedOrder after the Store assigned it an identifier.
type StoredOrder struct {
	PricedOrder
	ID        string
	CreatedAt time.Time
}

// Price derives a PricedOrder from c. The item slice is copied so later
// changes to the cart do not leak into the order.
func (c Cart) Price(total decimal.Decimal, method payment.Method) PricedOrder {
	return PricedOrder{
		Items:         slices.Clone(c.Items),
		CouponID:      c.CouponID,
		TotalPrice:    total,
		PaymentMethod: method,
	}
}

// Store persists priced orders.
type Store interface {
	// Create stores o and returns it with a unique ID. Failures should be
	// reported as *PersistenceError.
	Create(ctx context.Context, o PricedOrder) (*StoredOrder, error)
}

// Redirector sends the buyer to the payment page of a stored order. It
// fires the redirect and returns; it must not wait for the payment.
type Redirector interface {
	Redirect(ctx context.Context, o StoredOrder) error
}
