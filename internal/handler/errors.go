package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

// errUnauthenticated is returned when a request carries no valid API key.
var errUnauthenticated = errors.New("unauthenticated")

type errorKind struct {
	target error
	status int
	name   string
}

// errorKinds is matched in order; the first hit decides the response.
var errorKinds = []errorKind{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{order.ErrEmptyOrder, http.StatusBadRequest, "empty_order"},
	{catalog.ErrUnknownMenuItem, http.StatusBadRequest, "unknown_menu_item"},
	{order.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{order.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{order.ErrUnauthorizedCreator, http.StatusForbidden, "unauthorized_creator"},
	{order.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{order.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{order.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{order.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{order.ErrNotYetPaid, http.StatusConflict, "not_yet_paid"},
	{order.ErrIncompleteOrder, http.StatusConflict, "incomplete_order"},
	{order.ErrIncorrectAmount, http.StatusUnprocessableEntity, "incorrect_amount"},
	{order.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed"},
}

// writeError maps err to a status code and writes
// {"code":...,"error":"...","message":"..."}. Unknown errors are logged and
// reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, name, message := http.StatusInternalServerError, "internal", "internal server error"
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			status, name, message = k.status, k.name, err.Error()
			break
		}
	}
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("error", func(e *jx.Encoder) { e.Str(name) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}
