// Package catalog holds the merchant's fixed menu and its price list.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MenuItem is a product variant on the menu. The numeric value is the
// persisted tag and must never be reassigned; new variants are appended.
type MenuItem uint8

const (
	ClassicBurger MenuItem = iota
	CheeseBurger
	ChickenBurger
	VeggieBurger
	DoubleBurger

	numMenuItems
)

var menuItemNames = [numMenuItems]string{
	ClassicBurger: "classic_burger",
	CheeseBurger:  "cheese_burger",
	ChickenBurger: "chicken_burger",
	VeggieBurger:  "veggie_burger",
	DoubleBurger:  "double_burger",
}

var (
	// ErrUnknownMenuItem is returned when a tag or name does not denote a
	// menu variant.
	ErrUnknownMenuItem = errors.New("unknown menu item")
	// ErrMissingPrice is returned when a price table omits a variant.
	ErrMissingPrice = errors.New("menu item has no price")
	// ErrInvalidPrice is returned when a price table contains a zero or
	// negative price.
	ErrInvalidPrice = errors.New("menu item price must be positive")
)

// Valid reports whether m is a known variant.
func (m MenuItem) Valid() bool {
	return m < numMenuItems
}

// String returns the stable wire name of the variant.
func (m MenuItem) String() string {
	if !m.Valid() {
		return "unknown"
	}
	return menuItemNames[m]
}

// ParseMenuItem resolves a wire name into a MenuItem.
func ParseMenuItem(name string) (MenuItem, error) {
	for i, n := range menuItemNames {
		if n == name {
			return MenuItem(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownMenuItem, "%q", name)
}

// MenuItems returns every variant in tag order.
func MenuItems() []MenuItem {
	items := make([]MenuItem, numMenuItems)
	for i := range items {
		items[i] = MenuItem(i)
	}
	return items
}

// LineItem is a quantity of one menu variant within an order.
type LineItem struct {
	Item     MenuItem
	Quantity int
}

// Catalog maps every menu variant to its unit price.
type Catalog struct {
	prices [numMenuItems]decimal.Decimal
}

// New builds a Catalog from a price table. Every variant must be priced.
func New(prices map[MenuItem]decimal.Decimal) (*Catalog, error) {
	c := &Catalog{}
	for _, item := range MenuItems() {
		p, ok := prices[item]
		if !ok {
			return nil, errors.Wrapf(ErrMissingPrice, "%s", item)
		}
		if !p.IsPositive() {
			return nil, errors.Wrapf(ErrInvalidPrice, "%s: %s", item, p)
		}
		c.prices[item] = p
	}
	for item := range prices {
		if !item.Valid() {
			return nil, errors.Wrapf(ErrUnknownMenuItem, "tag %d", uint8(item))
		}
	}
	return c, nil
}

// Default returns the shop's standard price list.
func Default() *Catalog {
	c, err := New(map[MenuItem]decimal.Decimal{
		ClassicBurger: decimal.NewFromInt(100),
		CheeseBurger:  decimal.NewFromInt(120),
		ChickenBurger: decimal.NewFromInt(150),
		VeggieBurger:  decimal.NewFromInt(130),
		DoubleBurger:  decimal.NewFromInt(200),
	})
	if err != nil {
		panic(err)
	}
	return c
}

// PriceOf returns the unit price of item. item must be valid.
func (c *Catalog) PriceOf(item MenuItem) decimal.Decimal {
	return c.prices[item]
}

// TotalPrice sums unit price times quantity over items. Quantities are
// expected to be validated by the caller.
func (c *Catalog) TotalPrice(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(c.PriceOf(li.Item).Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return total
}
