package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/orderkeep/internal/record"
)

// Window is one recorded FetchOrders call.
type Window struct {
	Start time.Time
	End   time.Time
}

// FakeFetcher serves orders from memory and records every requested window.
//
// Orders whose date lies inside the requested window are returned in the
// order they were added. Err, when set, is returned by the next call instead.
type FakeFetcher struct {
	mu     sync.Mutex
	orders []record.Order
	calls  []Window
	Err    error
}

// NewFakeFetcher creates a fetcher serving orders.
func NewFakeFetcher(orders ...record.Order) *FakeFetcher {
	return &FakeFetcher{orders: orders}
}

// Add appends orders to the remote side.
func (f *FakeFetcher) Add(orders ...record.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, orders...)
}

// FetchOrders implements engine.Fetcher.
func (f *FakeFetcher) FetchOrders(ctx context.Context, start, end time.Time) ([]record.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Window{Start: start, End: end})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		err := f.Err
		f.Err = nil
		return nil, err
	}

	var out []record.Order
	for _, o := range f.orders {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Calls returns the windows requested so far.
func (f *FakeFetcher) Calls() []Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.calls...)
}

// Order builds a scraped order. lines are given as
// catalog, oem, description, quantity quadruples.
func Order(number string, date time.Time, lines ...[4]string) record.Order {
	o := record.Order{Number: number, Date: date}
	for _, l := range lines {
		o.Lines = append(o.Lines, record.Line{
			CatalogNumber: l[0],
			OEMNumber:     l[1],
			Description:   l[2],
			Quantity:      l[3],
		})
	}
	return o
}
