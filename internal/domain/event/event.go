// Package event describes the ledger notifications delivered to external
// auditors and indexers.
package event

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/account"
)

// Type names a ledger notification.
type Type string

const (
	OrderCreated       Type = "order.created"
	PaymentCompleted   Type = "payment.completed"
	OrderStatusChanged Type = "order.status_changed"
	OrderCompleted     Type = "order.completed"
)

// Event is a single ledger notification. Only the fields relevant to the
// event type are set.
type Event struct {
	ID      string
	Type    Type
	OrderID uint64
	At      time.Time

	// Customer and Total describe a created order.
	Customer account.ID
	Total    decimal.Decimal
	// Status is the new status name of a status change.
	Status string
	// Payment is set for PaymentCompleted.
	Payment *Payment
}

// Payment records funds moved for an order.
type Payment struct {
	Payer  account.ID
	Payee  account.ID
	Amount decimal.Decimal
}

// Key returns the partitioning key: all events of one order share it.
func (e Event) Key() string {
	return strconv.FormatUint(e.OrderID, 10)
}

// Encode writes the event as JSON. Amounts are encoded as decimal strings.
func (e Event) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(e.ID)
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.UInt64(e.OrderID)
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))

	enc.FieldStart("payload")
	enc.ObjStart()
	switch e.Type {
	case OrderCreated:
		enc.FieldStart("customer")
		enc.Str(string(e.Customer))
		enc.FieldStart("total")
		enc.Str(e.Total.String())
	case OrderStatusChanged:
		enc.FieldStart("status")
		enc.Str(e.Status)
	case PaymentCompleted:
		if p := e.Payment; p != nil {
			enc.FieldStart("payer")
			enc.Str(string(p.Payer))
			enc.FieldStart("payee")
			enc.Str(string(p.Payee))
			enc.FieldStart("amount")
			enc.Str(p.Amount.String())
		}
	}
	enc.ObjEnd()

	enc.ObjEnd()
}

// Marshal returns the JSON encoding of the event.
func (e Event) Marshal() []byte {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes()
}

// Sink delivers events to an external system.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(context.Context, Event) error { return nil }

// Notifier delivers events without letting delivery failures reach the
// caller. The ledger state change an event describes is already durable.
type Notifier struct {
	sink Sink
}

// NewNotifier wraps sink. A nil sink discards events.
func NewNotifier(sink Sink) *Notifier {
	if sink == nil {
		sink = Nop{}
	}
	return &Notifier{sink: sink}
}

// Notify publishes e and logs any error.
func (n *Notifier) Notify(ctx context.Context, e Event) {
	if err := n.sink.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Event delivery failed",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Uint64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
