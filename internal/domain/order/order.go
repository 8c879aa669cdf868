package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
)

// ID identifies an order. IDs are dense, start at 0 and are never reused.
type ID uint64

// Status is the delivery stage of an order. The numeric value is the
// persisted tag.
type Status uint8

const (
	GettingIngredients Status = iota
	Preparing
	SentForDelivery
	Delivered

	numStatuses
)

var statusNames = [numStatuses]string{
	GettingIngredients: "getting_ingredients",
	Preparing:          "preparing",
	SentForDelivery:    "sent_for_delivery",
	Delivered:          "delivered",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s < numStatuses
}

// String returns the stable wire name of the status.
func (s Status) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return statusNames[s]
}

// ParseStatus resolves a wire name into a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidStatus, "%q", name)
}

// Order is a customer purchase tracked through payment and delivery.
type Order struct {
	ID         ID
	Customer   account.ID
	Items      []catalog.LineItem
	TotalPrice decimal.Decimal
	Paid       bool
	Status     Status
	Completed  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]catalog.LineItem(nil), o.Items...)
	return &c
}

// Check reports the first violated ledger invariant, if any.
func (o *Order) Check() error {
	switch {
	case len(o.Items) == 0:
		return errors.Errorf("order %d: no line items", o.ID)
	case !o.Status.Valid():
		return errors.Errorf("order %d: invalid status tag %d", o.ID, uint8(o.Status))
	case o.Completed && !o.Paid:
		return errors.Errorf("order %d: completed but not paid", o.ID)
	case o.Completed && o.Status != Delivered:
		return errors.Errorf("order %d: completed in status %s", o.ID, o.Status)
	case o.Paid && o.Status == GettingIngredients:
		return errors.Errorf("order %d: paid but still %s", o.ID, o.Status)
	}
	for _, li := range o.Items {
		if li.Quantity <= 0 {
			return errors.Errorf("order %d: non-positive quantity for %s", o.ID, li.Item)
		}
		if !li.Item.Valid() {
			return errors.Errorf("order %d: unknown menu item tag %d", o.ID, uint8(li.Item))
		}
	}
	return nil
}

// Repository persists orders. Get and List return copies owned by the caller.
type Repository interface {
	// Create assigns the next sequential ID to o and stores it.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id ID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// MarkPaid writes the payment fields of o only if the stored order is
	// still unpaid, and returns ErrAlreadyPaid otherwise.
	MarkPaid(ctx context.Context, o *Order) error
	// List returns all orders in creation order.
	List(ctx context.Context) ([]Order, error)
}

// Locker serializes operations on a single order.
type Locker interface {
	Lock(ctx context.Context, id ID) (unlock func(), err error)
}

// TxRunner runs fn so that every store write inside it commits or none do.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
