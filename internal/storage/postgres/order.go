package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

const (
	nextOrderIDSQL = `UPDATE ledger_counters SET value = value + 1
	WHERE name = 'orders' RETURNING value - 1`

	createOrderSQL = `INSERT INTO orders
	(id, customer, items, total, paid, status, completed, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectOrderColumns = `SELECT id, customer, items, total, paid, status, completed, created_at, updated_at
	FROM orders`

	getOrderSQL   = selectOrderColumns + ` WHERE id = $1`
	listOrdersSQL = selectOrderColumns + ` ORDER BY id`

	updateOrderSQL = `UPDATE orders
	SET paid = $2, status = $3, completed = $4, updated_at = $5
	WHERE id = $1`

	markPaidSQL = `UPDATE orders
	SET paid = true, status = $2, updated_at = $3
	WHERE id = $1 AND NOT paid`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. IDs come
// from the orders row of ledger_counters, so they stay dense from 0.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create allocates the next ID and inserts o in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items := encodeItems(o.Items)

	return pgx.BeginFunc(ctx, conn(ctx, r.pool), func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, nextOrderIDSQL).Scan(&id); err != nil {
			return errors.Wrap(err, "allocate order id")
		}
		if _, err := tx.Exec(ctx, createOrderSQL,
			id, string(o.Customer), items, o.TotalPrice,
			o.Paid, int16(o.Status), o.Completed, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrapf(err, "insert order %d", id)
		}
		o.ID = order.ID(id)
		return nil
	})
}

// Get returns the order with the given ID or order.ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id order.ID) (*order.Order, error) {
	o, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, getOrderSQL, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// Update writes the mutable fields of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderSQL,
		int64(o.ID), o.Paid, int16(o.Status), o.Completed, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %d", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// MarkPaid records the payment of o. The row is only written while unpaid,
// so a second payer inside another transaction fails even if the order lock
// was lost.
func (r *OrderRepository) MarkPaid(ctx context.Context, o *order.Order) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, markPaidSQL,
		int64(o.ID), int16(o.Status), o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "mark order %d paid", o.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, o.ID); err != nil {
		return err
	}
	return order.ErrAlreadyPaid
}

// List returns all orders ordered by ID.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		id        int64
		customer  string
		items     []byte
		total     decimal.Decimal
		paid      bool
		status    int16
		completed bool
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &customer, &items, &total, &paid, &status, &completed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	lineItems, err := decodeItems(items)
	if err != nil {
		return nil, errors.Wrapf(err, "decode items of order %d", id)
	}

	return &order.Order{
		ID:         order.ID(id),
		Customer:   account.ID(customer),
		Items:      lineItems,
		TotalPrice: total,
		Paid:       paid,
		Status:     order.Status(status),
		Completed:  completed,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// encodeItems renders line items as [{"item":2,"quantity":1}] using the
// persisted menu tags.
func encodeItems(items []catalog.LineItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, li := range items {
		e.Obj(func(e *jx.Encoder) {
			e.Field("item", func(e *jx.Encoder) { e.UInt8(uint8(li.Item)) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
		})
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeItems(data []byte) ([]catalog.LineItem, error) {
	var items []catalog.LineItem
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var li catalog.LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "item":
				v, err := d.UInt8()
				if err != nil {
					return err
				}
				li.Item = catalog.MenuItem(v)
			case "quantity":
				v, err := d.Int()
				if err != nil {
					return err
				}
				li.Quantity = v
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}
		items = append(items, li)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
