package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/orderkeep/internal/record"
)

const (
	insertOrderSQL = `
		INSERT INTO orders (order_number, date)
		VALUES (?, ?)`

	insertProductSQL = `
		INSERT INTO products (catalog_number, oem_number, description)
		VALUES (?, ?, ?)`

	insertLineSQL = `
		INSERT INTO orders_products (order_id, product_id, quantity)
		VALUES (?, ?, ?)`
)

// Tx is a store transaction handed to the Update function.
type Tx struct {
	tx *sqlx.Tx
}

// FindProduct looks up a product by exact natural key.
// Returns found=false when no product matches and a ConsistencyError when
// more than one does.
func (t *Tx) FindProduct(ctx context.Context, key ProductKey) (Product, bool, error) {
	return findProduct(ctx, t.tx, key)
}

// OrderExists reports whether an order with this number is stored.
func (t *Tx) OrderExists(ctx context.Context, number int64) (bool, error) {
	return orderExists(ctx, t.tx, number)
}

// InsertOrder inserts an order and returns its new id.
// A duplicate order number is reported as a ConsistencyError.
func (t *Tx) InsertOrder(ctx context.Context, o NewOrder) (OrderID, error) {
	res, err := t.tx.ExecContext(ctx, insertOrderSQL, o.Number, record.FormatDate(o.Date))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, NewDuplicateOrderError(o.Number, "in store")
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert order: last insert id: %w", err)
	}
	return OrderID(id), nil
}

// InsertProduct inserts a product and returns its new id.
// A duplicate natural key is reported as a ConsistencyError.
func (t *Tx) InsertProduct(ctx context.Context, key ProductKey) (ProductID, error) {
	res, err := t.tx.ExecContext(ctx, insertProductSQL, key.CatalogNumber, key.OEMNumber, key.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, NewDuplicateProductError(key, 2)
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert product: last insert id: %w", err)
	}
	return ProductID(id), nil
}

// InsertOrderProduct links a product to an order with a quantity.
// Both ids must exist (foreign key constraints).
func (t *Tx) InsertOrderProduct(ctx context.Context, orderID OrderID, productID ProductID, quantity int64) (LineID, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("insert order product: negative quantity %d", quantity)
	}

	res, err := t.tx.ExecContext(ctx, insertLineSQL, orderID, productID, quantity)
	if err != nil {
		return 0, fmt.Errorf("insert order product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert order product: last insert id: %w", err)
	}
	return LineID(id), nil
}
