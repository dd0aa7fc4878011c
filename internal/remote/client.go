// Package remote implements the checkout collaborators on top of the
// storefront REST API: coupon lookup at GET /coupons/{id} and order
// creation at POST /order.
package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/wire"
)

// DefaultBaseURL is the mock storefront API.
const DefaultBaseURL = "https://67eb7353aa794fb3222a4c0e.mockapi.io"

// maxBody caps response bodies read from the API.
const maxBody = 1 << 20

var (
	_ coupon.Resolver = (*Client)(nil)
	_ order.Store     = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	// Timeout bounds each request of the default client.
	Timeout time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client talks to the storefront REST API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		if opts.Timeout == 0 {
			opts.Timeout = 10 * time.Second
		}
		var otelOpts []otelhttp.Option
		if opts.TracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
		}
		if opts.MeterProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
		}
		hc = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
		}
	}

	return &Client{base: u, http: hc}, nil
}

// Resolve fetches the coupon with the given id. A 404 or a null body
// means the coupon does not exist.
//
// The id is escaped as a single path segment, so it can only address a
// resource under /coupons.
func (c *Client) Resolve(ctx context.Context, code string) (*coupon.Discount, error) {
	switch code {
	case "", ".", "..":
		return nil, coupon.Invalid(code)
	}
	u := c.base.JoinPath("coupons", url.PathEscape(code))
	body, status, err := c.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if status == http.StatusNotFound {
		return nil, coupon.Invalid(code)
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("lookup coupon: unexpected status %d", status)
	}

	d, ok, err := wire.DecodeDiscount(jx.DecodeBytes(body))
	if err != nil {
		return nil, errors.Wrap(err, "decode coupon")
	}
	if !ok {
		return nil, coupon.Invalid(code)
	}
	return &d, nil
}

// Create posts the order and returns the stored copy with the id
// assigned by the API.
func (c *Client) Create(ctx context.Context, o order.PricedOrder) (*order.StoredOrder, error) {
	var e jx.Encoder
	wire.EncodePricedOrder(&e, o)

	body, status, err := c.do(ctx, http.MethodPost, c.base.JoinPath("order").String(), e.Bytes())
	if err != nil {
		return nil, &order.PersistenceError{Err: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, &order.PersistenceError{Err: errors.Errorf("unexpected status %d", status)}
	}

	stored, err := wire.DecodeStoredOrder(jx.DecodeBytes(body))
	if err != nil {
		return nil, &order.PersistenceError{Err: errors.Wrap(err, "decode order")}
	}
	return &stored, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, int, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s %s", method, target)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read body")
	}
	return body, resp.StatusCode, nil
}
