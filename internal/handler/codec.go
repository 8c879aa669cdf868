package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/order"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// Bounds for payment amounts. Comparing decimals rescales both sides to the
// smaller exponent, so an unbounded exponent costs time proportional to it.
const (
	maxAmountExponent = 18
	maxAmountDigits   = 38
)

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errBadRequest, err.Error())
	}
	return jx.DecodeBytes(data), nil
}

// decodeError keeps domain errors raised while decoding and marks the rest
// as malformed input.
func decodeError(err error) error {
	if errors.Is(err, catalog.ErrUnknownMenuItem) || errors.Is(err, order.ErrInvalidStatus) {
		return err
	}
	return errors.Wrap(errBadRequest, err.Error())
}

// decodeCreateOrder reads {"items":[{"item":"chicken_burger","quantity":2}]}.
func decodeCreateOrder(d *jx.Decoder) ([]catalog.LineItem, error) {
	var items []catalog.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
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
					q, err := d.Int()
					if err != nil {
						return err
					}
					li.Quantity = q
					return nil
				default:
					return d.Skip()
				}
			}); err != nil {
				return err
			}
			items = append(items, li)
			return nil
		})
	})
	if err != nil {
		return nil, decodeError(err)
	}
	return items, nil
}

// decodePayment reads {"amount":"300"}. A bare JSON number is accepted too.
func decodePayment(d *jx.Decoder) (decimal.Decimal, error) {
	var (
		amount decimal.Decimal
		found  bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "amount" {
			return d.Skip()
		}
		var raw string
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			raw = s
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			raw = n.String()
		default:
			return errors.New("amount must be a string or a number")
		}
		v, err := parseAmount(raw)
		if err != nil {
			return err
		}
		amount, found = v, true
		return nil
	})
	if err != nil {
		return decimal.Zero, decodeError(err)
	}
	if !found {
		return decimal.Zero, errors.Wrap(errBadRequest, "amount is required")
	}
	return amount, nil
}

// parseAmount parses a payment amount and rejects values whose exponent or
// precision is outside what a menu total can have.
func parseAmount(raw string) (decimal.Decimal, error) {
	if len(raw) > maxAmountDigits+8 {
		return decimal.Zero, errors.New("amount too long")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse amount")
	}
	if exp := v.Exponent(); exp < -maxAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, errors.Errorf("amount exponent %d out of range", exp)
	}
	if v.NumDigits() > maxAmountDigits {
		return decimal.Zero, errors.New("amount has too many digits")
	}
	return v, nil
}

// decodeStatus reads {"status":"delivered"}.
func decodeStatus(d *jx.Decoder) (order.Status, error) {
	var (
		status order.Status
		found  bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		name, err := d.Str()
		if err != nil {
			return err
		}
		status, err = order.ParseStatus(name)
		found = err == nil
		return err
	})
	if err != nil {
		return 0, decodeError(err)
	}
	if !found {
		return 0, errors.Wrap(errBadRequest, "status is required")
	}
	return status, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
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
		e.Field("total_price", func(e *jx.Encoder) { e.Str(o.TotalPrice.String()) })
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("completed", func(e *jx.Encoder) { e.Bool(o.Completed) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("updated_at", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
	})
}

func encodeMenu(e *jx.Encoder, c *catalog.Catalog) {
	e.Arr(func(e *jx.Encoder) {
		for _, item := range catalog.MenuItems() {
			e.Obj(func(e *jx.Encoder) {
				e.Field("item", func(e *jx.Encoder) { e.Str(item.String()) })
				e.Field("price", func(e *jx.Encoder) { e.Str(c.PriceOf(item).String()) })
			})
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
