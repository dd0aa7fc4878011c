// Package handler serves the checkout HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/paylink"
	"github.com/xenking/kart-checkout/internal/wire"
)

// maxBodySize bounds the checkout request body.
const maxBodySize = 1 << 20

// Checkouter runs the checkout pipeline. *order.Processor implements it.
type Checkouter interface {
	Process(ctx context.Context, c order.Cart) (*order.StoredOrder, error)
}

var _ Checkouter = (*order.Processor)(nil)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// PaymentURL is the payment page base used when the redirector did not
	// record a link on the request.
	PaymentURL string
	// Selector answers payment method queries. Defaults to
	// payment.DefaultSelector.
	Selector *payment.Selector
}

// Handler implements the checkout endpoints.
type Handler struct {
	orders     Checkouter
	selector   *payment.Selector
	paymentURL string
}

// NewHandler creates a Handler that checks out through orders.
func NewHandler(cfg HandlerConfig, orders Checkouter) *Handler {
	if cfg.Selector == nil {
		cfg.Selector = payment.DefaultSelector()
	}
	if cfg.PaymentURL == "" {
		cfg.PaymentURL = paylink.DefaultBaseURL
	}
	return &Handler{
		orders:     orders,
		selector:   cfg.Selector,
		paymentURL: cfg.PaymentURL,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/checkout", h.Checkout)
	r.Get("/payment-methods", h.PaymentMethods)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	wire.EncodeError(&e, status, msg)
	writeJSON(w, status, &e)
}
