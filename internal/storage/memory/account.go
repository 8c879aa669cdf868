package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
)

var _ account.Transferrer = (*Accounts)(nil)

// Accounts keeps balances in memory.
type Accounts struct {
	mu       sync.Mutex
	balances map[account.ID]decimal.Decimal
}

// NewAccounts returns an Accounts seeded with the given balances.
func NewAccounts(balances map[account.ID]decimal.Decimal) *Accounts {
	a := &Accounts{balances: make(map[account.ID]decimal.Decimal, len(balances))}
	for id, b := range balances {
		a.balances[id] = b
	}
	return a
}

// Balance returns the balance of id and whether the account exists.
func (a *Accounts) Balance(id account.ID) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.balances[id]
	return b, ok
}

// Transfer moves amount from one account to another.
func (a *Accounts) Transfer(_ context.Context, from, to account.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return account.ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	src, ok := a.balances[from]
	if !ok {
		return account.ErrAccountNotFound
	}
	dst, ok := a.balances[to]
	if !ok {
		return account.ErrAccountNotFound
	}
	if src.LessThan(amount) {
		return account.ErrInsufficientFunds
	}

	if from == to {
		return nil
	}
	a.balances[from] = src.Sub(amount)
	a.balances[to] = dst.Add(amount)
	return nil
}
