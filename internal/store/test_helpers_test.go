package store

import (
	"context"
	"testing"
	"time"
)

// createTestStore creates a new in-memory store with schema for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := CreateEmpty(context.Background(), t.TempDir()+"/missing.snapshot")
	if err != nil {
		t.Fatalf("CreateEmpty() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// date builds a calendar date in UTC.
func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// insertOrderWithLines inserts an order and one line per key in a single transaction.
func insertOrderWithLines(t *testing.T, s *Store, number int64, day time.Time, keys ...ProductKey) OrderID {
	t.Helper()
	ctx := context.Background()

	var orderID OrderID
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		orderID, err = tx.InsertOrder(ctx, NewOrder{Number: number, Date: day})
		if err != nil {
			return err
		}
		for i, key := range keys {
			p, found, err := tx.FindProduct(ctx, key)
			if err != nil {
				return err
			}
			productID := p.ID
			if !found {
				if productID, err = tx.InsertProduct(ctx, key); err != nil {
					return err
				}
			}
			if _, err := tx.InsertOrderProduct(ctx, orderID, productID, int64(i+1)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert order %d failed: %v", number, err)
	}
	return orderID
}

func getTableColumns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	var columns []struct {
		CID     int     `db:"cid"`
		Name    string  `db:"name"`
		Type    string  `db:"type"`
		NotNull int     `db:"notnull"`
		Default *string `db:"dflt_value"`
		PK      int     `db:"pk"`
	}
	if err := s.db.Select(&columns, "PRAGMA table_info("+table+")"); err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}
	return names
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
