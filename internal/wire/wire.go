// Package wire encodes and decodes checkout JSON documents.
//
// Documents use the field names of the storefront API:
//
//	{"id":"1","items":[{"productId":"1","price":100,"quantity":2}],
//	 "couponId":"123","totalPrice":150,"paymentMethod":"CREDIT"}
//
// Money is written as a JSON number and accepted as a number or a string.
package wire

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// DecodeCart reads a cart document. Unknown fields are skipped. Structural
// checks (non-empty items, positive values) are left to order.Calculator.
func DecodeCart(d *jx.Decoder) (order.Cart, error) {
	var c order.Cart
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			items, err := decodeItems(d)
			if err != nil {
				return errors.Wrap(err, "items")
			}
			c.Items = items
		case "couponId":
			s, err := optString(d)
			if err != nil {
				return errors.Wrap(err, "couponId")
			}
			c.CouponID = s
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return order.Cart{}, err
	}
	return c, nil
}

// EncodePricedOrder writes o as a document without an id.
func EncodePricedOrder(e *jx.Encoder, o order.PricedOrder) {
	e.ObjStart()
	encodePricedFields(e, o)
	e.ObjEnd()
}

// EncodeStoredOrder writes o. A non-empty paymentURL is added as
// "paymentUrl".
func EncodeStoredOrder(e *jx.Encoder, o order.StoredOrder, paymentURL string) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	encodePricedFields(e, o.PricedOrder)
	if !o.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	}
	if paymentURL != "" {
		e.FieldStart("paymentUrl")
		e.Str(paymentURL)
	}
	e.ObjEnd()
}

// DecodeStoredOrder reads an order document that carries an id. Numeric
// ids are accepted and kept in their decimal form.
func DecodeStoredOrder(d *jx.Decoder) (order.StoredOrder, error) {
	var o order.StoredOrder
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = stringOrNumber(d)
		case "items":
			o.Items, err = decodeItems(d)
		case "couponId":
			o.CouponID, err = optString(d)
		case "totalPrice":
			o.TotalPrice, err = Money(d)
		case "paymentMethod":
			var s string
			if s, err = d.Str(); err == nil {
				o.PaymentMethod, err = payment.ParseMethod(s)
			}
		case "createdAt":
			o.CreatedAt, err = optTime(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return order.StoredOrder{}, err
	}
	if o.ID == "" {
		return order.StoredOrder{}, errors.New("missing id")
	}
	return o, nil
}

// DecodeDiscount reads a coupon document. A null document or one without a
// "discount" field yields ok=false.
func DecodeDiscount(d *jx.Decoder) (_ coupon.Discount, ok bool, _ error) {
	if d.Next() == jx.Null {
		return coupon.Discount{}, false, d.Null()
	}
	var (
		amount decimal.Decimal
		found  bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "discount" {
			return d.Skip()
		}
		v, err := Money(d)
		if err != nil {
			return errors.Wrap(err, "discount")
		}
		amount, found = v, true
		return nil
	})
	if err != nil || !found {
		return coupon.Discount{}, false, err
	}
	return coupon.NewDiscount(amount), true, nil
}

// EncodeMethods writes {"methods":[...]}.
func EncodeMethods(e *jx.Encoder, methods []payment.Method) {
	e.ObjStart()
	e.FieldStart("methods")
	e.ArrStart()
	for _, m := range methods {
		e.Str(m.String())
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeError writes {"code":...,"message":...}.
func EncodeError(e *jx.Encoder, code int, message string) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
}

// Money reads a decimal written as a JSON number or string.
func Money(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("expected number, got %v", d.Next())
	}
}

func encodePricedFields(e *jx.Encoder, o order.PricedOrder) {
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("price")
		encodeMoney(e, item.Price)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	if o.CouponID != "" {
		e.FieldStart("couponId")
		e.Str(o.CouponID)
	}
	e.FieldStart("totalPrice")
	encodeMoney(e, o.TotalPrice)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod.String())
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func decodeItems(d *jx.Decoder) ([]order.CartItem, error) {
	var items []order.CartItem
	err := d.Arr(func(d *jx.Decoder) error {
		var item order.CartItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				item.ProductID, err = stringOrNumber(d)
			case "price":
				item.Price, err = Money(d)
			case "quantity":
				item.Quantity, err = d.Int()
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "item %d", len(items))
		}
		items = append(items, item)
		return nil
	})
	if items == nil && err == nil {
		items = []order.CartItem{}
	}
	return items, err
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func stringOrNumber(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	}
	return d.Str()
}

func optTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.Null:
		return time.Time{}, d.Null()
	case jx.Number:
		sec, err := d.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0).UTC(), nil
	default:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		if sec, convErr := strconv.ParseInt(s, 10, 64); convErr == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
		return time.Parse(time.RFC3339, s)
	}
}
