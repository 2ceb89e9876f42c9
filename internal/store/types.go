package store

import "time"

type (
	OrderID   int64
	ProductID int64
	LineID    int64
)

// Order is one remote order. Immutable once inserted.
type Order struct {
	ID     OrderID   `db:"id"`
	Number int64     `db:"order_number"`
	Date   time.Time `db:"date"`
}

// NewOrder holds the caller-supplied fields of an order.
type NewOrder struct {
	Number int64
	Date   time.Time
}

// ProductKey is a product's natural key. Matching is exact.
type ProductKey struct {
	CatalogNumber string
	OEMNumber     string
	Description   string
}

// Product is a catalog item, created the first time its key is seen.
type Product struct {
	ID            ProductID `db:"id"`
	CatalogNumber string    `db:"catalog_number"`
	OEMNumber     string    `db:"oem_number"`
	Description   string    `db:"description"`
}

// Key returns the product's natural key.
func (p Product) Key() ProductKey {
	return ProductKey{CatalogNumber: p.CatalogNumber, OEMNumber: p.OEMNumber, Description: p.Description}
}

// Line associates a product with an order. The same product may appear on
// several lines of one order.
type Line struct {
	ID        LineID    `db:"id"`
	OrderID   OrderID   `db:"order_id"`
	ProductID ProductID `db:"product_id"`
	Quantity  int64     `db:"quantity"`
}

// Match is one search hit.
type Match struct {
	LineID   LineID
	Order    Order
	Product  Product
	Quantity int64
}

// Counts reports the number of rows per table.
type Counts struct {
	Orders   int `db:"orders"`
	Products int `db:"products"`
	Lines    int `db:"lines"`
}
