package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/laundrypos/api/internal/checkout"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Checkouter places orders. Satisfied by *checkout.Service.
type Checkouter interface {
	Checkout(ctx context.Context, store checkout.CartStore, req checkout.Request) (*checkout.Receipt, error)
}

// CheckoutHandler turns carts into orders. A nil service means no database
// is configured and checkout answers 503.
type CheckoutHandler struct {
	stores  Stores
	service Checkouter
}

func NewCheckoutHandler(stores Stores, service Checkouter) *CheckoutHandler {
	return &CheckoutHandler{stores: stores, service: service}
}

// RegisterRoutes registers the checkout endpoint.
// Expected to be mounted inside a terminal-scoped subrouter: /terminals/{tid}
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/carts/{cid}/checkout", h.Checkout)
}

type checkoutRequest struct {
	PaymentMethod  string  `json:"payment_method" validate:"omitempty,oneof=cash card upi credit"`
	PaymentStatus  string  `json:"payment_status" validate:"omitempty,oneof=pending partial paid"`
	AdvancePayment *string `json:"advance_payment" validate:"omitnil,numeric"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout is not configured")
		return
	}
	tid, err := terminalIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid terminal ID")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := checkout.Request{
		TerminalID:    tid,
		CartID:        chi.URLParam(r, "cid"),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
	}
	if req.AdvancePayment != nil {
		var adv decimal.Decimal
		adv, err = parseAmount("advance_payment", *req.AdvancePayment, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.AdvancePayment = &adv
	}

	receipt, err := h.service.Checkout(r.Context(), h.stores.Get(tid), in)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrCartNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, checkout.ErrCheckoutInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, checkout.ErrEmptyCart),
			errors.Is(err, checkout.ErrDeliveryAddress),
			errors.Is(err, checkout.ErrInvalidPaymentMethod),
			errors.Is(err, checkout.ErrInvalidPaymentStatus),
			errors.Is(err, checkout.ErrInvalidDiscount),
			errors.Is(err, checkout.ErrInvalidAdvancePayment):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Str("cart_id", in.CartID).Msg("checkout failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}
