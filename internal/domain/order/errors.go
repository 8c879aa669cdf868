package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/catalog"
)

// Sentinel errors returned by ledger and payment operations.
var (
	ErrEmptyOrder          = errors.New("order has no line items")
	ErrUnauthorizedCreator = errors.New("merchant cannot place orders")
	ErrOrderNotFound       = errors.New("order not found")
	ErrAlreadyPaid         = errors.New("order already paid")
	ErrUnauthorized        = errors.New("caller is not allowed to perform this operation")
	ErrAlreadyCompleted    = errors.New("order already completed")
	ErrInvalidState        = errors.New("order is not in a state that allows this operation")
	ErrIncorrectAmount     = errors.New("tendered amount does not match order total")
	ErrPaymentFailed       = errors.New("payment transfer failed")
	ErrNotYetPaid          = errors.New("order not yet paid")
	ErrIncompleteOrder     = errors.New("order is not paid and delivered")
	ErrInvalidStatus       = errors.New("invalid order status")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
// It matches ErrEmptyOrder.
type InvalidQuantityError struct {
	Item     catalog.MenuItem
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for %s, got %d", e.Item, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrEmptyOrder }

// IncorrectAmountError carries the expected and tendered amounts of a
// rejected payment. It matches ErrIncorrectAmount.
type IncorrectAmountError struct {
	Want decimal.Decimal
	Got  decimal.Decimal
}

func (e *IncorrectAmountError) Error() string {
	return fmt.Sprintf("tendered %s, order total is %s", e.Got, e.Want)
}

func (e *IncorrectAmountError) Unwrap() error { return ErrIncorrectAmount }

// PaymentError wraps the transfer failure behind a rejected payment.
// It matches ErrPaymentFailed and exposes the cause through Unwrap.
type PaymentError struct {
	Cause error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %v", ErrPaymentFailed, e.Cause)
}

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentFailed }

func (e *PaymentError) Unwrap() error { return e.Cause }
