package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/auth"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

// ListMenu returns every menu item with its unit price.
func (h *Handler) ListMenu(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMenu(e, h.ledger.Catalog())
	})
}

// CreateOrder places an order for the authenticated caller.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := decodeCreateOrder(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	id, err := h.ledger.CreateOrder(ctx, caller, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r, http.StatusCreated, id)
}

// ListOrders returns every order. Merchant only.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	if caller != h.ledger.Merchant() {
		writeError(w, r, order.ErrUnauthorized)
		return
	}

	orders, err := h.ledger.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

// GetOrder returns one order to the merchant or the order's customer. Other
// callers get the same not found response as for a missing id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.ledger.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if caller != h.ledger.Merchant() && caller != o.Customer {
		writeError(w, r, order.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PayOrder pays for an order with the amount in the body.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := decodePayment(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.gate.Pay(r.Context(), id, caller, amount); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r, http.StatusOK, id)
}

// ChangeStatus sets the preparation status of a paid order. Merchant only.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := decodeStatus(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.ledger.ChangeStatus(r.Context(), id, status, caller); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r, http.StatusOK, id)
}

// CompleteOrder closes a delivered order. Merchant only.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrError(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.ledger.MarkCompleted(r.Context(), id, caller); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondOrder(w, r, http.StatusOK, id)
}

// respondOrder writes the current state of order id.
func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, status int, id order.ID) {
	o, err := h.ledger.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func callerOrError(w http.ResponseWriter, r *http.Request) (account.ID, bool) {
	caller, ok := auth.AccountFrom(r.Context())
	if !ok {
		writeError(w, r, errUnauthenticated)
	}
	return caller, ok
}

func orderID(r *http.Request) (order.ID, error) {
	raw := chi.URLParam(r, "id")
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errBadRequest, "invalid order id %q", raw)
	}
	return order.ID(v), nil
}
