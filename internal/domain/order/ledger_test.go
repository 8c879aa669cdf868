package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/event"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    []*Order
	createErr error
	updateErr error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	o.ID = ID(len(m.orders))
	m.orders = append(m.orders, o.Clone())
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.orders) {
		return nil, ErrOrderNotFound
	}
	return m.orders[id].Clone(), nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orders[o.ID].Paid {
		return ErrAlreadyPaid
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	for i, o := range m.orders {
		out[i] = *o.Clone()
	}
	return out, nil
}

// put stores o directly, bypassing the ledger.
func (m *mockOrderRepo) put(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = ID(len(m.orders))
	m.orders = append(m.orders, o.Clone())
}

type mockLocker struct {
	mu    sync.Mutex
	locks int
	err   error
}

func (m *mockLocker) Lock(_ context.Context, _ ID) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.locks++
	return m.mu.Unlock, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Publish(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// --- Helpers ---

const (
	merchant = account.ID("shop")
	alice    = account.ID("alice")
	bob      = account.ID("bob")
)

func newTestLedger(t *testing.T) (*Ledger, *mockOrderRepo, *recordingSink) {
	t.Helper()

	repo := &mockOrderRepo{}
	sink := &recordingSink{}
	l, err := NewLedger(merchant, catalog.Default(), repo, &mockLocker{}, sink)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return l, repo, sink
}

func paidOrder(status Status) *Order {
	return &Order{
		Customer:   alice,
		Items:      []catalog.LineItem{{Item: catalog.ChickenBurger, Quantity: 2}},
		TotalPrice: decimal.NewFromInt(300),
		Paid:       true,
		Status:     status,
	}
}

func twoChickenBurgers() []catalog.LineItem {
	return []catalog.LineItem{{Item: catalog.ChickenBurger, Quantity: 2}}
}

// --- Tests ---

func TestNewLedger_RequiresMerchant(t *testing.T) {
	_, err := NewLedger("", catalog.Default(), &mockOrderRepo{}, &mockLocker{}, nil)
	require.Error(t, err)
}

func TestCreateOrder(t *testing.T) {
	l, _, sink := newTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateOrder(ctx, alice, twoChickenBurgers())
	require.NoError(t, err)
	assert.Equal(t, ID(0), id)

	o, err := l.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, o.Customer)
	assert.True(t, decimal.NewFromInt(300).Equal(o.TotalPrice))
	assert.False(t, o.Paid)
	assert.False(t, o.Completed)
	assert.Equal(t, GettingIngredients, o.Status)
	assert.NoError(t, o.Check())

	assert.Equal(t, []event.Type{event.OrderCreated}, sink.types())
}

func TestCreateOrder_SequentialIDs(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	for want := range 5 {
		id, err := l.CreateOrder(ctx, bob, []catalog.LineItem{{Item: catalog.ClassicBurger, Quantity: 1}})
		require.NoError(t, err)
		assert.Equal(t, ID(want), id)
	}

	orders, err := l.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 5)
	for i, o := range orders {
		assert.Equal(t, ID(i), o.ID)
	}
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		customer account.ID
		items    []catalog.LineItem
		wantErr  error
	}{
		{
			name:     "empty items",
			customer: alice,
			items:    nil,
			wantErr:  ErrEmptyOrder,
		},
		{
			name:     "zero quantity",
			customer: alice,
			items: []catalog.LineItem{
				{Item: catalog.ClassicBurger, Quantity: 1},
				{Item: catalog.CheeseBurger, Quantity: 0},
			},
			wantErr: ErrEmptyOrder,
		},
		{
			name:     "negative quantity",
			customer: alice,
			items:    []catalog.LineItem{{Item: catalog.ClassicBurger, Quantity: -3}},
			wantErr:  ErrEmptyOrder,
		},
		{
			name:     "unknown item",
			customer: alice,
			items:    []catalog.LineItem{{Item: catalog.MenuItem(99), Quantity: 1}},
			wantErr:  catalog.ErrUnknownMenuItem,
		},
		{
			name:     "merchant orders for itself",
			customer: merchant,
			items:    twoChickenBurgers(),
			wantErr:  ErrUnauthorizedCreator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, repo, sink := newTestLedger(t)

			_, err := l.CreateOrder(context.Background(), tt.customer, tt.items)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.orders, "ledger must stay unchanged")
			assert.Empty(t, sink.types())
		})
	}
}

func TestCreateOrder_InvalidQuantityDetails(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.CreateOrder(context.Background(), alice, []catalog.LineItem{
		{Item: catalog.VeggieBurger, Quantity: 0},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, catalog.VeggieBurger, iqErr.Item)
}

func TestCreateOrder_PriceSnapshot(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateOrder(ctx, alice, twoChickenBurgers())
	require.NoError(t, err)

	// Prices change after the order was placed.
	prices := map[catalog.MenuItem]decimal.Decimal{}
	for _, item := range catalog.MenuItems() {
		prices[item] = decimal.NewFromInt(1)
	}
	cheaper, err := catalog.New(prices)
	require.NoError(t, err)
	l.catalog = cheaper

	o, err := l.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(o.TotalPrice))
}

func TestCreateOrder_StoreError(t *testing.T) {
	l, repo, sink := newTestLedger(t)
	repo.createErr = errors.New("db write failed")

	_, err := l.CreateOrder(context.Background(), alice, twoChickenBurgers())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, sink.types())
}

func TestGetOrder_NotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.GetOrder(context.Background(), 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrders_Empty(t *testing.T) {
	l, _, _ := newTestLedger(t)

	orders, err := l.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestChangeStatus(t *testing.T) {
	tests := []struct {
		name    string
		order   *Order
		caller  account.ID
		status  Status
		wantErr error
	}{
		{
			name:   "merchant advances paid order",
			order:  paidOrder(Preparing),
			caller: merchant,
			status: SentForDelivery,
		},
		{
			name:   "backwards move is permitted",
			order:  paidOrder(Delivered),
			caller: merchant,
			status: Preparing,
		},
		{
			name:    "customer cannot change status",
			order:   paidOrder(Preparing),
			caller:  alice,
			status:  SentForDelivery,
			wantErr: ErrUnauthorized,
		},
		{
			name: "unpaid order",
			order: &Order{
				Customer: alice,
				Items:    twoChickenBurgers(),
				Status:   GettingIngredients,
			},
			caller:  merchant,
			status:  Preparing,
			wantErr: ErrNotYetPaid,
		},
		{
			name: "completed order",
			order: func() *Order {
				o := paidOrder(Delivered)
				o.Completed = true
				return o
			}(),
			caller:  merchant,
			status:  SentForDelivery,
			wantErr: ErrAlreadyCompleted,
		},
		{
			name:    "paid order cannot return to getting ingredients",
			order:   paidOrder(Preparing),
			caller:  merchant,
			status:  GettingIngredients,
			wantErr: ErrInvalidState,
		},
		{
			name:    "unknown status tag",
			order:   paidOrder(Preparing),
			caller:  merchant,
			status:  Status(17),
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, repo, sink := newTestLedger(t)
			repo.put(tt.order)
			before, err := repo.Get(context.Background(), 0)
			require.NoError(t, err)

			got, err := l.ChangeStatus(context.Background(), 0, tt.status, tt.caller)
			after, getErr := repo.Get(context.Background(), 0)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, after, "failed call must not change the order")
				assert.Empty(t, sink.types())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, got)
			assert.Equal(t, tt.status, after.Status)
			assert.NoError(t, after.Check())
			assert.Equal(t, []event.Type{event.OrderStatusChanged}, sink.types())
		})
	}
}

func TestChangeStatus_NotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.ChangeStatus(context.Background(), 3, Delivered, merchant)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMarkCompleted(t *testing.T) {
	tests := []struct {
		name    string
		order   *Order
		caller  account.ID
		wantErr error
	}{
		{
			name:   "delivered and paid",
			order:  paidOrder(Delivered),
			caller: merchant,
		},
		{
			name:    "not delivered",
			order:   paidOrder(SentForDelivery),
			caller:  merchant,
			wantErr: ErrIncompleteOrder,
		},
		{
			name: "not paid",
			order: &Order{
				Customer: alice,
				Items:    twoChickenBurgers(),
				Status:   GettingIngredients,
			},
			caller:  merchant,
			wantErr: ErrIncompleteOrder,
		},
		{
			name:    "customer cannot complete",
			order:   paidOrder(Delivered),
			caller:  alice,
			wantErr: ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, repo, _ := newTestLedger(t)
			repo.put(tt.order)
			before, err := repo.Get(context.Background(), 0)
			require.NoError(t, err)

			err = l.MarkCompleted(context.Background(), 0, tt.caller)
			after, getErr := repo.Get(context.Background(), 0)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, after)
				return
			}
			require.NoError(t, err)
			assert.True(t, after.Completed)
			assert.NoError(t, after.Check())
		})
	}
}

func TestMarkCompleted_Twice(t *testing.T) {
	l, repo, sink := newTestLedger(t)
	repo.put(paidOrder(Delivered))
	ctx := context.Background()

	require.NoError(t, l.MarkCompleted(ctx, 0, merchant))
	err := l.MarkCompleted(ctx, 0, merchant)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	assert.Equal(t, []event.Type{event.OrderCompleted}, sink.types())
}

func TestMutate_UpdateError(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	repo.put(paidOrder(Preparing))
	repo.updateErr = errors.New("disk full")

	_, err := l.ChangeStatus(context.Background(), 0, Delivered, merchant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update order 0")
}

func TestMutate_LockError(t *testing.T) {
	repo := &mockOrderRepo{}
	repo.put(paidOrder(Preparing))
	l, err := NewLedger(merchant, catalog.Default(), repo, &mockLocker{err: context.Canceled}, nil)
	require.NoError(t, err)

	_, err = l.ChangeStatus(context.Background(), 0, Delivered, merchant)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseStatus(t *testing.T) {
	for s := GettingIngredients; s < numStatuses; s++ {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("cancelled")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderCheck(t *testing.T) {
	ok := paidOrder(Delivered)
	ok.Completed = true
	assert.NoError(t, ok.Check())

	completedUndelivered := paidOrder(SentForDelivery)
	completedUndelivered.Completed = true
	assert.Error(t, completedUndelivered.Check())

	paidStuck := paidOrder(GettingIngredients)
	assert.Error(t, paidStuck.Check())

	unpaidCompleted := &Order{
		Customer:  alice,
		Items:     twoChickenBurgers(),
		Status:    Delivered,
		Completed: true,
	}
	assert.Error(t, unpaidCompleted.Check())
}
