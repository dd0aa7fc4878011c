package payment

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method identifies a payment method offered at checkout.
type Method string

const (
	// MethodCredit is card payment. It has no upper limit.
	MethodCredit Method = "CREDIT"
	// MethodPayPay is the PayPay wallet.
	MethodPayPay Method = "PAYPAY"
	// MethodAuPay is the au PAY wallet.
	MethodAuPay Method = "AUPAY"
)

// Default eligibility limits. A total equal to the limit is still eligible.
var (
	DefaultPayPayLimit = decimal.NewFromInt(500_000)
	DefaultAuPayLimit  = decimal.NewFromInt(300_000)
)

// ErrUnknownMethod is returned by ParseMethod for unsupported names.
var ErrUnknownMethod = errors.New("unknown payment method")

// ParseMethod converts a wire name (case-insensitive) to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCredit, MethodPayPay, MethodAuPay:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnknownMethod, "%q", s)
	}
}

func (m Method) String() string { return string(m) }

// Rule makes a method eligible for totals up to and including Limit.
// A zero Limit means the method has no upper bound.
type Rule struct {
	Method Method
	Limit  decimal.Decimal
}

func (r Rule) allows(total decimal.Decimal) bool {
	return r.Limit.IsZero() || total.LessThanOrEqual(r.Limit)
}

// Selector returns the payment methods eligible for an order total, in
// preference order.
type Selector struct {
	rules []Rule
}

// NewSelector creates a Selector from rules. The rule order is the order
// of the returned methods.
func NewSelector(rules ...Rule) *Selector {
	return &Selector{rules: append([]Rule(nil), rules...)}
}

// DefaultSelector returns the CREDIT, PAYPAY, AUPAY selector with the
// default limits.
func DefaultSelector() *Selector {
	return NewSelector(
		Rule{Method: MethodCredit},
		Rule{Method: MethodPayPay, Limit: DefaultPayPayLimit},
		Rule{Method: MethodAuPay, Limit: DefaultAuPayLimit},
	)
}

// Select returns the eligible methods for total. The total is not
// validated: zero and negative totals satisfy every limit.
func (s *Selector) Select(total decimal.Decimal) []Method {
	methods := make([]Method, 0, len(s.rules))
	for _, r := range s.rules {
		if r.allows(total) {
			methods = append(methods, r.Method)
		}
	}
	return methods
}

// Primary returns the first method of an eligible list, which is the one
// recorded on the order. It returns false for an empty list.
func Primary(methods []Method) (Method, bool) {
	if len(methods) == 0 {
		return "", false
	}
	return methods[0], true
}
