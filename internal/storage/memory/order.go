// Package memory provides in-process implementations of the ledger's
// storage and funds interfaces.
package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/burger-ledger/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an append-only in-memory order store. The slice index
// is the order ID.
type OrderRepository struct {
	mu     sync.RWMutex
	orders []*order.Order
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// Create assigns the next ID and stores a copy of o.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.ID = order.ID(len(r.orders))
	r.orders = append(r.orders, o.Clone())
	return nil
}

// Get returns a copy of the order with the given ID.
func (r *OrderRepository) Get(_ context.Context, id order.ID) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if uint64(id) >= uint64(len(r.orders)) {
		return nil, order.ErrOrderNotFound
	}
	return r.orders[id].Clone(), nil
}

// Update replaces the stored order with a copy of o.
func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(o.ID) >= uint64(len(r.orders)) {
		return errors.Wrapf(order.ErrOrderNotFound, "update %d", o.ID)
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

// MarkPaid replaces the stored order with a copy of o unless it is already
// paid.
func (r *OrderRepository) MarkPaid(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(o.ID) >= uint64(len(r.orders)) {
		return errors.Wrapf(order.ErrOrderNotFound, "mark paid %d", o.ID)
	}
	if r.orders[o.ID].Paid {
		return order.ErrAlreadyPaid
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

// List returns copies of all orders in creation order.
func (r *OrderRepository) List(_ context.Context) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, len(r.orders))
	for i, o := range r.orders {
		out[i] = *o.Clone()
	}
	return out, nil
}

// TxRunner runs functions directly. Memory writes are applied in call order,
// so callers must perform fallible steps before writing.
type TxRunner struct{}

// RunInTx calls fn with ctx.
func (TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
