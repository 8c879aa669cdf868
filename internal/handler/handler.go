// Package handler exposes the order ledger over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/burger-ledger/internal/domain/order"
	"github.com/xenking/burger-ledger/internal/domain/payment"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Handler serves the ledger API. Every mutating route runs as the caller
// authenticated by the Security middleware.
type Handler struct {
	ledger *order.Ledger
	gate   *payment.Gate
}

// NewHandler constructs a Handler over the ledger and its payment gate.
func NewHandler(ledger *order.Ledger, gate *payment.Gate) *Handler {
	return &Handler{
		ledger: ledger,
		gate:   gate,
	}
}

// Routes registers the API under r. auth guards the order routes; the menu
// is public.
func (h *Handler) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/menu", h.ListMenu)

	r.Route("/order", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/pay", h.PayOrder)
		r.Put("/{id}/status", h.ChangeStatus)
		r.Post("/{id}/complete", h.CompleteOrder)
	})
}
