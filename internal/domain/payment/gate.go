// Package payment accepts exact payments for ledger orders and moves the
// funds to the merchant.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/event"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

const instrumentationName = "github.com/xenking/burger-ledger/internal/domain/payment"

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a Gate.
type Option func(*options)

// WithMeterProvider sets the meter provider used for payment metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for payment spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// Gate validates payments against orders and settles them.
type Gate struct {
	merchant account.ID
	orders   order.Repository
	locker   order.Locker
	tx       order.TxRunner
	funds    account.Transferrer
	events   *event.Notifier
	now      func() time.Time

	tracer   trace.Tracer
	payments metric.Int64Counter
}

// NewGate creates a Gate that pays merchant.
func NewGate(
	merchant account.ID,
	orders order.Repository,
	locker order.Locker,
	tx order.TxRunner,
	funds account.Transferrer,
	sink event.Sink,
	opts ...Option,
) (*Gate, error) {
	if merchant == "" {
		return nil, errors.New("merchant account is required")
	}
	o := options{
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	payments, err := o.meterProvider.Meter(instrumentationName).Int64Counter("ledger.payments",
		metric.WithDescription("Payment attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Gate{
		merchant: merchant,
		orders:   orders,
		locker:   locker,
		tx:       tx,
		funds:    funds,
		events:   event.NewNotifier(sink),
		now:      time.Now,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		payments: payments,
	}, nil
}

// Pay settles order id with tendered, which must equal the order total.
// Only the order's customer may pay, and only before preparation starts.
// Either funds move and the order becomes paid and Preparing, or nothing
// changes.
func (g *Gate) Pay(ctx context.Context, id order.ID, caller account.ID, tendered decimal.Decimal) (err error) {
	ctx, span := g.tracer.Start(ctx, "payment.Pay",
		trace.WithAttributes(attribute.Int64("order.id", int64(id))),
	)
	defer span.End()
	defer func() {
		result := "accepted"
		if err != nil {
			result = "rejected"
			span.RecordError(err)
		}
		g.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}()

	paid, err := g.settle(ctx, id, caller, tendered)
	if err != nil {
		return err
	}

	zctx.From(ctx).Info("Payment accepted",
		zap.Uint64("order_id", uint64(id)),
		zap.String("payer", string(caller)),
		zap.Stringer("amount", tendered),
	)
	g.events.Notify(ctx, event.Event{
		ID:      uuid.New().String(),
		Type:    event.PaymentCompleted,
		OrderID: uint64(id),
		At:      paid.UpdatedAt,
		Payment: &event.Payment{
			Payer:  caller,
			Payee:  g.merchant,
			Amount: tendered,
		},
	})

	return nil
}

// settle runs the checked transfer and order write under the order lock and
// returns the paid order. The lock is released before any event is sent.
func (g *Gate) settle(ctx context.Context, id order.ID, caller account.ID, tendered decimal.Decimal) (*order.Order, error) {
	unlock, err := g.locker.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", id)
	}
	defer unlock()

	o, err := g.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	if err := g.check(o, caller, tendered); err != nil {
		return nil, err
	}

	next := o.Clone()
	next.Paid = true
	next.Status = order.Preparing
	next.UpdatedAt = g.now()

	// MarkPaid only succeeds on an unpaid row, so a transfer racing a second
	// payer is rolled back with the transaction.
	err = g.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.funds.Transfer(ctx, caller, g.merchant, tendered); err != nil {
			return &order.PaymentError{Cause: err}
		}
		if err := g.orders.MarkPaid(ctx, next); err != nil {
			return errors.Wrapf(err, "record payment for order %d", id)
		}
		return nil
	})
	if err != nil {
		zctx.From(ctx).Warn("Payment failed",
			zap.Uint64("order_id", uint64(id)),
			zap.String("payer", string(caller)),
			zap.Error(err),
		)
		return nil, err
	}
	return next, nil
}

// check applies the payment preconditions in their defined order.
func (g *Gate) check(o *order.Order, caller account.ID, tendered decimal.Decimal) error {
	switch {
	case o.Paid:
		return order.ErrAlreadyPaid
	case caller != o.Customer:
		return order.ErrUnauthorized
	case o.Completed:
		return order.ErrAlreadyCompleted
	case o.Status != order.GettingIngredients:
		return order.ErrInvalidState
	case !tendered.Equal(o.TotalPrice):
		return &order.IncorrectAmountError{Want: o.TotalPrice, Got: tendered}
	}
	return nil
}
