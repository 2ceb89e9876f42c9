package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/orderkeep/internal/store"
)

type seedLine struct {
	key      store.ProductKey
	quantity int64
}

type seedOrder struct {
	number int64
	date   time.Time
	lines  []seedLine
}

var (
	tonerC35P = store.ProductKey{CatalogNumber: "4455 3256", OEMNumber: "44469803", Description: "Toner C35P"}
	tonerOKI  = store.ProductKey{CatalogNumber: "4475 0255", OEMNumber: "09004078", Description: "Toner kart OKI"}
	cableUSB  = store.ProductKey{CatalogNumber: "0123 4567", OEMNumber: "O'Neil", Description: "Kabel; USB 2.0 A-B"}
)

// fixtureOrders is the data set behind the golden dump.
var fixtureOrders = []seedOrder{
	{number: 420397, date: day(2022, 1, 1), lines: []seedLine{{tonerC35P, 4}, {tonerOKI, 5}}},
	{number: 420398, date: day(2022, 1, 15), lines: []seedLine{{tonerC35P, 1}, {cableUSB, 2}}},
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newEmptyStore returns a schema-less store, the target of a restore.
func newEmptyStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(context.Background())
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// newSeededStore returns a store with schema holding orders.
func newSeededStore(t *testing.T, orders []seedOrder) *store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.CreateEmpty(ctx, t.TempDir()+"/none.db")
	if err != nil {
		t.Fatalf("store.CreateEmpty() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	err = st.Update(ctx, func(tx *store.Tx) error {
		for _, o := range orders {
			orderID, err := tx.InsertOrder(ctx, store.NewOrder{Number: o.number, Date: o.date})
			if err != nil {
				return err
			}
			for _, l := range o.lines {
				p, found, err := tx.FindProduct(ctx, l.key)
				if err != nil {
					return err
				}
				productID := p.ID
				if !found {
					if productID, err = tx.InsertProduct(ctx, l.key); err != nil {
						return err
					}
				}
				if _, err := tx.InsertOrderProduct(ctx, orderID, productID, l.quantity); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return st
}

// contents is everything a restore must reproduce.
type contents struct {
	Orders   []store.Order
	Products []store.Product
	Lines    []store.Line
}

func readContents(t *testing.T, st *store.Store) contents {
	t.Helper()
	ctx := context.Background()

	var c contents
	var err error
	if c.Orders, err = st.Orders(ctx); err != nil {
		t.Fatalf("Orders() failed: %v", err)
	}
	if c.Products, err = st.Products(ctx); err != nil {
		t.Fatalf("Products() failed: %v", err)
	}
	if c.Lines, err = st.Lines(ctx); err != nil {
		t.Fatalf("Lines() failed: %v", err)
	}
	return c
}
