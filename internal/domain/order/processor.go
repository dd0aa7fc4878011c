package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// ErrNoPaymentMethod is returned when the selector offers no method for
// the order total. The default selector always offers CREDIT.
var ErrNoPaymentMethod = errors.New("no eligible payment method")

const instrumentationName = "github.com/xenking/kart-checkout/internal/domain/order"

// Outcomes recorded on the checkout.orders counter.
const (
	OutcomeCompleted   = "completed"
	OutcomeValidation  = "validation"
	OutcomeCoupon      = "coupon"
	OutcomePricing     = "pricing"
	OutcomePersistence = "persistence"
	OutcomeRedirect    = "redirect"
)

// ProcessorOptions holds optional Processor dependencies.
type ProcessorOptions struct {
	// Selector picks payment methods. Defaults to payment.DefaultSelector.
	Selector *payment.Selector

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *ProcessorOptions) setDefaults() {
	if o.Selector == nil {
		o.Selector = payment.DefaultSelector()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
}

// Processor runs the checkout pipeline: validate, resolve the coupon,
// price, select the payment method, persist and redirect to payment.
//
// A Processor holds no per-call state and is safe for concurrent use as
// long as its collaborators are.
type Processor struct {
	calc       Calculator
	selector   *payment.Selector
	coupons    coupon.Resolver
	store      Store
	redirector Redirector

	tracer trace.Tracer
	orders metric.Int64Counter
}

// NewProcessor creates a Processor with the given collaborators.
func NewProcessor(
	coupons coupon.Resolver,
	store Store,
	redirector Redirector,
	opts ProcessorOptions,
) (*Processor, error) {
	opts.setDefaults()

	orders, err := opts.MeterProvider.Meter(instrumentationName).Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}

	return &Processor{
		selector:   opts.Selector,
		coupons:    coupons,
		store:      store,
		redirector: redirector,
		tracer:     opts.TracerProvider.Tracer(instrumentationName),
		orders:     orders,
	}, nil
}

// Process checks out the cart and returns the stored order once the
// payment redirect has been issued.
//
// Steps run strictly in sequence and the first failure is returned as is:
// *ValidationError before any collaborator call, the coupon resolver's
// error, *PersistenceError from the store, or the redirector's error.
// Nothing is rolled back.
func (p *Processor) Process(ctx context.Context, c Cart) (_ *StoredOrder, rerr error) {
	ctx, span := p.tracer.Start(ctx, "order.Process",
		trace.WithAttributes(
			attribute.Int("order.items", len(c.Items)),
			attribute.Bool("order.coupon", c.CouponID != ""),
		),
	)
	outcome := OutcomeValidation
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		} else {
			outcome = OutcomeCompleted
		}
		p.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()
	lg := zctx.From(ctx)

	if err := p.calc.Validate(c); err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if c.CouponID != "" {
		outcome = OutcomeCoupon
		d, err := p.coupons.Resolve(ctx, c.CouponID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			discount = d.Amount
		}
	}

	outcome = OutcomePricing
	total, err := p.calc.Calculate(c, discount)
	if err != nil {
		return nil, err
	}
	method, ok := payment.Primary(p.selector.Select(total))
	if !ok {
		return nil, ErrNoPaymentMethod
	}

	outcome = OutcomePersistence
	stored, err := p.store.Create(ctx, c.Price(total, method))
	if err != nil {
		var pErr *PersistenceError
		if !errors.As(err, &pErr) {
			err = &PersistenceError{Err: err}
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", stored.ID))
	lg.Debug("Order stored",
		zap.String("order_id", stored.ID),
		zap.Stringer("total", stored.TotalPrice),
		zap.Stringer("payment_method", stored.PaymentMethod),
	)

	outcome = OutcomeRedirect
	if err := p.redirector.Redirect(ctx, *stored); err != nil {
		return nil, err
	}

	return stored, nil
}
