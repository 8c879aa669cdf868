package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/event"
)

const instrumentationName = "github.com/xenking/burger-ledger/internal/domain/order"

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a Ledger.
type Option func(*options)

// WithMeterProvider sets the meter provider used for ledger metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for ledger spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// Ledger owns the collection of orders and applies creation and merchant
// operations against the order state machine.
type Ledger struct {
	merchant account.ID
	catalog  *catalog.Catalog
	orders   Repository
	locker   Locker
	events   *event.Notifier
	now      func() time.Time

	tracer      trace.Tracer
	created     metric.Int64Counter
	transitions metric.Int64Counter
}

// NewLedger creates a Ledger operated by merchant.
func NewLedger(
	merchant account.ID,
	cat *catalog.Catalog,
	orders Repository,
	locker Locker,
	sink event.Sink,
	opts ...Option,
) (*Ledger, error) {
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

	meter := o.meterProvider.Meter(instrumentationName)
	created, err := meter.Int64Counter("ledger.orders.created",
		metric.WithDescription("Orders accepted by the ledger"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	transitions, err := meter.Int64Counter("ledger.orders.transitions",
		metric.WithDescription("Merchant status changes and completions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Ledger{
		merchant:    merchant,
		catalog:     cat,
		orders:      orders,
		locker:      locker,
		events:      event.NewNotifier(sink),
		now:         time.Now,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		created:     created,
		transitions: transitions,
	}, nil
}

// Merchant returns the merchant identity the ledger was created with.
func (l *Ledger) Merchant() account.ID {
	return l.merchant
}

// Catalog returns the price list used for new orders.
func (l *Ledger) Catalog() *catalog.Catalog {
	return l.catalog
}

// CreateOrder validates items, prices them, and appends a new order for
// customer in state GettingIngredients.
func (l *Ledger) CreateOrder(ctx context.Context, customer account.ID, items []catalog.LineItem) (ID, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CreateOrder")
	defer span.End()

	if len(items) == 0 {
		return 0, ErrEmptyOrder
	}
	for _, li := range items {
		if li.Quantity <= 0 {
			return 0, &InvalidQuantityError{Item: li.Item, Quantity: li.Quantity}
		}
		if !li.Item.Valid() {
			return 0, errors.Wrapf(catalog.ErrUnknownMenuItem, "tag %d", uint8(li.Item))
		}
	}
	if customer == l.merchant {
		return 0, ErrUnauthorizedCreator
	}

	now := l.now()
	o := &Order{
		Customer:   customer,
		Items:      append([]catalog.LineItem(nil), items...),
		TotalPrice: l.catalog.TotalPrice(items),
		Status:     GettingIngredients,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.orders.Create(ctx, o); err != nil {
		return 0, errors.Wrap(err, "create order")
	}

	span.SetAttributes(attribute.Int64("order.id", int64(o.ID)))
	l.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.Uint64("order_id", uint64(o.ID)),
		zap.String("customer", string(customer)),
		zap.Stringer("total", o.TotalPrice),
	)
	l.events.Notify(ctx, event.Event{
		ID:       uuid.New().String(),
		Type:     event.OrderCreated,
		OrderID:  uint64(o.ID),
		At:       now,
		Customer: customer,
		Total:    o.TotalPrice,
	})

	return o.ID, nil
}

// GetOrder returns the order with the given id.
func (l *Ledger) GetOrder(ctx context.Context, id ID) (*Order, error) {
	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// ListOrders returns every order in creation order.
func (l *Ledger) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := l.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ChangeStatus moves a paid, not yet completed order to status. Only the
// merchant may call it. Any target other than GettingIngredients is
// accepted regardless of the current status.
func (l *Ledger) ChangeStatus(ctx context.Context, id ID, status Status, caller account.ID) (Status, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.ChangeStatus",
		trace.WithAttributes(attribute.Int64("order.id", int64(id))),
	)
	defer span.End()

	if !status.Valid() {
		return 0, errors.Wrapf(ErrInvalidStatus, "tag %d", uint8(status))
	}
	if caller != l.merchant {
		return 0, ErrUnauthorized
	}

	err := l.mutate(ctx, id, func(o *Order) error {
		if o.Completed {
			return ErrAlreadyCompleted
		}
		if !o.Paid {
			return ErrNotYetPaid
		}
		if status == GettingIngredients {
			// A paid order has left GettingIngredients for good.
			return ErrInvalidState
		}
		o.Status = status
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
	zctx.From(ctx).Info("Order status changed",
		zap.Uint64("order_id", uint64(id)),
		zap.Stringer("status", status),
	)
	l.events.Notify(ctx, event.Event{
		ID:      uuid.New().String(),
		Type:    event.OrderStatusChanged,
		OrderID: uint64(id),
		At:      l.now(),
		Status:  status.String(),
	})

	return status, nil
}

// MarkCompleted closes a paid and delivered order. Only the merchant may
// call it, and a second call fails with ErrAlreadyCompleted.
func (l *Ledger) MarkCompleted(ctx context.Context, id ID, caller account.ID) error {
	ctx, span := l.tracer.Start(ctx, "ledger.MarkCompleted",
		trace.WithAttributes(attribute.Int64("order.id", int64(id))),
	)
	defer span.End()

	if caller != l.merchant {
		return ErrUnauthorized
	}

	err := l.mutate(ctx, id, func(o *Order) error {
		if o.Completed {
			return ErrAlreadyCompleted
		}
		if !o.Paid || o.Status != Delivered {
			return ErrIncompleteOrder
		}
		o.Completed = true
		return nil
	})
	if err != nil {
		return err
	}

	l.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "completed")))
	zctx.From(ctx).Info("Order completed", zap.Uint64("order_id", uint64(id)))
	l.events.Notify(ctx, event.Event{
		ID:      uuid.New().String(),
		Type:    event.OrderCompleted,
		OrderID: uint64(id),
		At:      l.now(),
	})

	return nil
}

// mutate runs the lock, get, validate-and-modify, put cycle for one order.
// fn receives a copy; nothing is written when it returns an error.
func (l *Ledger) mutate(ctx context.Context, id ID, fn func(o *Order) error) error {
	unlock, err := l.locker.Lock(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "lock order %d", id)
	}
	defer unlock()

	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "get order %d", id)
	}

	next := o.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = l.now()

	if err := l.orders.Update(ctx, next); err != nil {
		return errors.Wrapf(err, "update order %d", id)
	}
	return nil
}
