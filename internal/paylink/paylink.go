// Package paylink redirects buyers to the payment page of a stored order.
//
// The payment page lives at {base}/pay?orderId=<id>. How the buyer gets
// there depends on the transport: the HTTP API answers with a redirect
// (CaptureOpener), the CLI prints the link (WriterOpener).
package paylink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// DefaultBaseURL is the payment page host used when none is configured.
const DefaultBaseURL = "https://payment.example.com"

// Build returns the payment link for orderID under base.
func Build(base, orderID string) string {
	return strings.TrimRight(base, "/") + "/pay?" + url.Values{"orderId": {orderID}}.Encode()
}

// Opener delivers a payment link to the buyer.
type Opener interface {
	Open(ctx context.Context, link string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, link string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, link string) error {
	return f(ctx, link)
}

var _ order.Redirector = (*Redirector)(nil)

// Redirector implements order.Redirector by building the payment link of
// the order and handing it to an Opener.
type Redirector struct {
	base   string
	opener Opener
}

// NewRedirector creates a Redirector for payment pages under base.
func NewRedirector(base string, opener Opener) *Redirector {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Redirector{base: base, opener: opener}
}

// Redirect opens the payment link of o.
func (r *Redirector) Redirect(ctx context.Context, o order.StoredOrder) error {
	if o.ID == "" {
		return errors.New("redirect: order has no id")
	}
	link := Build(r.base, o.ID)
	zctx.From(ctx).Debug("Redirecting to payment", zap.String("order_id", o.ID), zap.String("link", link))
	if err := r.opener.Open(ctx, link); err != nil {
		return errors.Wrap(err, "open payment link")
	}
	return nil
}

// Capture holds the payment link opened during one request.
type Capture struct {
	mu   sync.Mutex
	link string
}

// Link returns the captured link, or "" if nothing was opened.
func (c *Capture) Link() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

type captureKey struct{}

// WithCapture returns a context on which CaptureOpener records links.
func WithCapture(ctx context.Context) (context.Context, *Capture) {
	c := &Capture{}
	return context.WithValue(ctx, captureKey{}, c), c
}

// CaptureOpener records the link on the Capture carried by the context so
// the HTTP handler can redirect the buyer once the pipeline completes.
type CaptureOpener struct{}

// Open stores link in the context's Capture. It fails if the context has
// none, since the link would otherwise be lost.
func (CaptureOpener) Open(ctx context.Context, link string) error {
	c, ok := ctx.Value(captureKey{}).(*Capture)
	if !ok {
		return errors.New("no link capture in context")
	}
	c.mu.Lock()
	c.link = link
	c.mu.Unlock()
	return nil
}

// WriterOpener prints the link on its own line.
type WriterOpener struct {
	W io.Writer
}

// Open writes link to w.
func (o WriterOpener) Open(_ context.Context, link string) error {
	_, err := fmt.Fprintln(o.W, link)
	return err
}
