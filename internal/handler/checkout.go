package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/paylink"
	"github.com/xenking/kart-checkout/internal/wire"
)

// Checkout decodes a cart, runs the pipeline and redirects the buyer to
// the payment page with 303 See Other. The body carries the stored order
// and its payment link for clients that do not follow redirects.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	cart, err := wire.DecodeCart(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed cart: "+err.Error())
		return
	}

	ctx, capture := paylink.WithCapture(r.Context())
	stored, err := h.orders.Process(ctx, cart)
	if err != nil {
		status, msg := mapOrderError(err)
		if status >= http.StatusInternalServerError {
			zctx.From(ctx).Error("Checkout failed", zap.Error(err))
		} else {
			zctx.From(ctx).Debug("Checkout rejected", zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	link := capture.Link()
	if link == "" {
		link = paylink.Build(h.paymentURL, stored.ID)
	}

	var e jx.Encoder
	wire.EncodeStoredOrder(&e, *stored, link)
	w.Header().Set("Location", link)
	writeJSON(w, http.StatusSeeOther, &e)
}

// PaymentMethods lists the payment methods eligible for ?total=.
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("total")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "total is required")
		return
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "total must be a number")
		return
	}

	var e jx.Encoder
	wire.EncodeMethods(&e, h.selector.Select(total))
	writeJSON(w, http.StatusOK, &e)
}

// mapOrderError converts pipeline errors to an HTTP status and a message
// safe to show to the client.
func mapOrderError(err error) (int, string) {
	var vErr *order.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Error()
	}

	// The submitted code is not echoed back.
	if errors.Is(err, coupon.ErrInvalidCoupon) {
		return http.StatusUnprocessableEntity, coupon.ErrInvalidCoupon.Error()
	}

	var pErr *order.PersistenceError
	if errors.As(err, &pErr) {
		return http.StatusBadGateway, "order could not be stored"
	}

	return http.StatusInternalServerError, "internal server error"
}
