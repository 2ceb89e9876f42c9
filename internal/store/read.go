package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	findProductSQL = `
		SELECT id, catalog_number, oem_number, description
		FROM products
		WHERE catalog_number = ? AND oem_number = ? AND description = ?
		ORDER BY id ASC
		LIMIT 2`

	orderExistsSQL = `SELECT COUNT(*) FROM orders WHERE order_number = ?`

	latestOrderDateSQL = `SELECT date FROM orders ORDER BY date DESC LIMIT 1`

	countsSQL = `
		SELECT
			(SELECT COUNT(*) FROM orders) AS orders,
			(SELECT COUNT(*) FROM products) AS products,
			(SELECT COUNT(*) FROM orders_products) AS lines`

	searchSelectSQL = `
		SELECT op.id AS line_id, op.quantity,
		       o.id AS order_id, o.order_number, o.date,
		       p.id AS product_id,
		       COALESCE(p.catalog_number, '') AS catalog_number,
		       COALESCE(p.oem_number, '') AS oem_number,
		       COALESCE(p.description, '') AS description
		FROM orders_products op
		JOIN products p ON p.id = op.product_id
		JOIN orders o ON o.id = op.order_id`

	searchOrderSQL = `
		ORDER BY o.date ASC, o.order_number ASC, op.id ASC`
)

// Query selects order lines for Search.
//
// A non-empty CatalogNumber matches products with exactly that catalog
// number and Terms is ignored. Otherwise a line matches when any term is a
// case-insensitive substring of the product's OEM number or description.
type Query struct {
	CatalogNumber string
	Terms         []string
}

// FindProduct looks up a product by exact natural key outside a transaction.
func (s *Store) FindProduct(ctx context.Context, key ProductKey) (Product, bool, error) {
	return findProduct(ctx, s.db, key)
}

// LatestOrderDate returns the most recent order date.
// Returns ok=false when the store holds no orders.
func (s *Store) LatestOrderDate(ctx context.Context) (date time.Time, ok bool, err error) {
	err = s.db.GetContext(ctx, &date, latestOrderDateSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest order date: %w", err)
	}
	return date, true, nil
}

// Search returns matching order lines ordered by order date ascending.
// Each line appears at most once. Returns an empty slice (not nil) when
// nothing matches or the query is empty.
func (s *Store) Search(ctx context.Context, q Query) ([]Match, error) {
	where, args := q.where()
	if where == "" {
		return []Match{}, nil
	}

	var rows []matchRow
	if err := s.db.SelectContext(ctx, &rows, searchSelectSQL+"\n\t\tWHERE "+where+searchOrderSQL, args...); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, r.match())
	}
	return matches, nil
}

// Counts returns the number of orders, products and order lines.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.GetContext(ctx, &c, countsSQL); err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}

// Orders returns all orders by id.
func (s *Store) Orders(ctx context.Context) ([]Order, error) {
	orders := []Order{}
	if err := s.db.SelectContext(ctx, &orders, `SELECT id, order_number, date FROM orders ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Products returns all products by id.
func (s *Store) Products(ctx context.Context) ([]Product, error) {
	products := []Product{}
	if err := s.db.SelectContext(ctx, &products, `
		SELECT id,
		       COALESCE(catalog_number, '') AS catalog_number,
		       COALESCE(oem_number, '') AS oem_number,
		       COALESCE(description, '') AS description
		FROM products ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Lines returns all order lines by id.
func (s *Store) Lines(ctx context.Context) ([]Line, error) {
	lines := []Line{}
	if err := s.db.SelectContext(ctx, &lines, `
		SELECT id, order_id, product_id, quantity
		FROM orders_products ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	return lines, nil
}

func findProduct(ctx context.Context, q sqlx.QueryerContext, key ProductKey) (Product, bool, error) {
	var products []Product
	if err := sqlx.SelectContext(ctx, q, &products, findProductSQL,
		key.CatalogNumber, key.OEMNumber, key.Description); err != nil {
		return Product{}, false, fmt.Errorf("find product: %w", err)
	}

	switch len(products) {
	case 0:
		return Product{}, false, nil
	case 1:
		return products[0], true, nil
	default:
		return Product{}, false, NewDuplicateProductError(key, len(products))
	}
}

func orderExists(ctx context.Context, q sqlx.QueryerContext, number int64) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count, orderExistsSQL, number); err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	return count > 0, nil
}

// where builds the WHERE clause for q. Returns "" for an empty query.
func (q Query) where() (string, []any) {
	if q.CatalogNumber != "" {
		return "p.catalog_number = ?", []any{q.CatalogNumber}
	}

	var clauses []string
	var args []any
	for _, term := range q.Terms {
		if term == "" {
			continue
		}
		pattern := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(p.oem_number LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	return strings.Join(clauses, " OR "), args
}

// escapeLike escapes LIKE wildcards so terms match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type matchRow struct {
	LineID        LineID    `db:"line_id"`
	Quantity      int64     `db:"quantity"`
	OrderID       OrderID   `db:"order_id"`
	OrderNumber   int64     `db:"order_number"`
	Date          time.Time `db:"date"`
	ProductID     ProductID `db:"product_id"`
	CatalogNumber string    `db:"catalog_number"`
	OEMNumber     string    `db:"oem_number"`
	Description   string    `db:"description"`
}

func (r matchRow) match() Match {
	return Match{
		LineID:   r.LineID,
		Quantity: r.Quantity,
		Order:    Order{ID: r.OrderID, Number: r.OrderNumber, Date: r.Date},
		Product: Product{
			ID:            r.ProductID,
			CatalogNumber: r.CatalogNumber,
			OEMNumber:     r.OEMNumber,
			Description:   r.Description,
		},
	}
}
