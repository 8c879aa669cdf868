// Package account defines caller identities and the fund transfer primitive.
package account

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ID identifies an authenticated account (a customer or the merchant).
type ID string

var (
	// ErrAccountNotFound is returned when a transfer names an unknown account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds is returned when the payer's balance does not
	// cover the transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned for non-positive transfer amounts.
	ErrInvalidAmount = errors.New("transfer amount must be positive")
)

// Transferrer moves funds between accounts. A transfer either fully
// completes or returns an error with no balance changed.
type Transferrer interface {
	Transfer(ctx context.Context, from, to ID, amount decimal.Decimal) error
}
