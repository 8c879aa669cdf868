package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

// encodeLine writes o as one JSON object. Menu items and statuses use their
// wire names so exports stay readable after tags are appended.
func encodeLine(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.UInt64(uint64(o.ID)) })
		e.Field("customer", func(e *jx.Encoder) { e.Str(string(o.Customer)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("item", func(e *jx.Encoder) { e.Str(li.Item.String()) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Str(o.TotalPrice.String()) })
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("completed", func(e *jx.Encoder) { e.Bool(o.Completed) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("updated_at", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
	})
}

func decodeLine(data []byte) (*order.Order, error) {
	var o order.Order
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.UInt64()
			o.ID = order.ID(v)
			return err
		case "customer":
			v, err := d.Str()
			o.Customer = account.ID(v)
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var li catalog.LineItem
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "item":
						name, err := d.Str()
						if err != nil {
							return err
						}
						li.Item, err = catalog.ParseMenuItem(name)
						return err
					case "quantity":
						v, err := d.Int()
						li.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				o.Items = append(o.Items, li)
				return nil
			})
		case "total":
			v, err := d.Str()
			if err != nil {
				return err
			}
			o.TotalPrice, err = decimal.NewFromString(v)
			return err
		case "paid":
			v, err := d.Bool()
			o.Paid = v
			return err
		case "status":
			name, err := d.Str()
			if err != nil {
				return err
			}
			o.Status, err = order.ParseStatus(name)
			return err
		case "completed":
			v, err := d.Bool()
			o.Completed = v
			return err
		case "created_at", "updated_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return err
			}
			if key == "created_at" {
				o.CreatedAt = ts
			} else {
				o.UpdatedAt = ts
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}
