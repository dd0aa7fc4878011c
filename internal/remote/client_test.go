package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, Options{HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestClient_Resolve(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/coupons/123":
			_, _ = io.WriteString(w, `{"id":"123","discount":50}`)
		case "/coupons/null":
			_, _ = io.WriteString(w, `null`)
		case "/coupons/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	d, err := c.Resolve(ctx, "123")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(d.Amount))

	_, err = c.Resolve(ctx, "null")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

	_, err = c.Resolve(ctx, "missing")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

	_, err = c.Resolve(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_ResolveEscapesCode(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := paths
		paths = nil
		return out
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		mu.Unlock()
		// Answer every path with a discount so that reaching anything
		// outside /coupons would look like a valid coupon.
		_, _ = io.WriteString(w, `{"discount":999}`)
	})
	ctx := context.Background()

	tests := []struct {
		code string
		want string
	}{
		{code: "../admin", want: "/coupons/..%2Fadmin"},
		{code: "../order/7", want: "/coupons/..%2Forder%2F7"},
		{code: "a?b#c", want: "/coupons/a%3Fb%23c"},
		{code: "50% off", want: "/coupons/50%25%20off"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := c.Resolve(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, seen())
		})
	}

	for _, code := range []string{".", ".."} {
		t.Run(code, func(t *testing.T) {
			_, err := c.Resolve(ctx, code)
			require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
			assert.Empty(t, seen())
		})
	}
}

func TestClient_Create(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"items":[{"productId":"1","price":100,"quantity":2}],"couponId":"123","totalPrice":150,"paymentMethod":"CREDIT"}`,
			string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"1","createdAt":"2025-04-01T10:00:00Z","items":[{"productId":"1","price":100,"quantity":2}],"couponId":"123","totalPrice":150,"paymentMethod":"CREDIT"}`)
	})

	stored, err := c.Create(context.Background(), order.PricedOrder{
		Items:         []order.CartItem{{ProductID: "1", Price: decimal.NewFromInt(100), Quantity: 2}},
		CouponID:      "123",
		TotalPrice:    decimal.NewFromInt(150),
		PaymentMethod: payment.MethodCredit,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", stored.ID)
	assert.True(t, decimal.NewFromInt(150).Equal(stored.TotalPrice))
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestClient_CreateFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{}`},
		{name: "missing id", status: http.StatusCreated, body: `{"totalPrice":1}`},
		{name: "garbage", status: http.StatusCreated, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Create(context.Background(), order.PricedOrder{PaymentMethod: payment.MethodCredit})

			var pErr *order.PersistenceError
			require.ErrorAs(t, err, &pErr)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), order.PricedOrder{})
	var pErr *order.PersistenceError
	require.ErrorAs(t, err, &pErr)
}

func TestNew_InvalidBase(t *testing.T) {
	_, err := New("not-a-url", Options{})
	require.Error(t, err)
}
