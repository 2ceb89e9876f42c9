package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/orderkeep/internal/record"
	"github.com/roach88/orderkeep/internal/store"
)

// DefaultLookback is the length of an update window when no start date is given.
const DefaultLookback = 365

// Fetcher returns every order placed in the inclusive window [start, end].
// It either returns the full batch or fails; partial results are never merged.
// Implemented by scraper.Client.
type Fetcher interface {
	FetchOrders(ctx context.Context, start, end time.Time) ([]record.Order, error)
}

// Window is an inclusive range of calendar dates. A zero Start or End takes
// the update default.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return record.FormatDate(w.Start) + ".." + record.FormatDate(w.End)
}

// Stats summarizes one merge.
type Stats struct {
	BatchID        string
	Window         Window
	Fetched        int
	NewOrders      int
	SkippedOrders  int
	NewProducts    int
	ReusedProducts int
	NewLines       int
}

// Engine owns the merge path into one store. It is not safe for concurrent use.
type Engine struct {
	store   *store.Store
	fetcher Fetcher
	clock   Clock
	ids     BatchIDGenerator
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithBatchIDs replaces the UUIDv7 batch id generator.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine merging into s. fetcher may be nil when only Merge
// is used.
func New(s *store.Store, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		fetcher: fetcher,
		clock:   SystemClock{},
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Update fetches the window and merges the result. The window defaults to
// the trailing DefaultLookback days through today.
func (e *Engine) Update(ctx context.Context, w Window) (Stats, error) {
	today := e.clock.Today()
	if w.End.IsZero() {
		w.End = today
	}
	if w.Start.IsZero() {
		w.Start = today.AddDate(0, 0, -DefaultLookback)
	}
	w.Start, w.End = record.Day(w.Start), record.Day(w.End)
	if w.Start.After(w.End) {
		return Stats{}, &WindowError{Start: w.Start, End: w.End}
	}
	return e.fetchAndMerge(ctx, w)
}

// Refresh fetches everything after the newest stored order through today.
// It fails with ErrEmptyStore when there is nothing to refresh from.
func (e *Engine) Refresh(ctx context.Context) (Stats, error) {
	latest, ok, err := e.store.LatestOrderDate(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("refresh: %w", err)
	}
	if !ok {
		return Stats{}, ErrEmptyStore
	}

	w := Window{Start: record.Day(latest).AddDate(0, 0, 1), End: e.clock.Today()}
	if w.Start.After(w.End) {
		e.logger.Info("store is up to date", "latest", record.FormatDate(latest))
		return Stats{Window: w}, nil
	}
	return e.fetchAndMerge(ctx, w)
}

func (e *Engine) fetchAndMerge(ctx context.Context, w Window) (Stats, error) {
	if e.fetcher == nil {
		return Stats{}, fmt.Errorf("fetch %s: no fetcher configured", w)
	}

	e.logger.Info("fetching orders", "window", w.String())
	orders, err := e.fetcher.FetchOrders(ctx, w.Start, w.End)
	if err != nil {
		// login errors surface unchanged for the caller to report
		return Stats{}, err
	}

	stats, err := e.Merge(ctx, orders)
	stats.Window = w
	return stats, err
}

// Merge validates a batch and commits it in one transaction. Orders already
// in the store are skipped. A malformed record or a repeated order number
// inside the batch rejects the whole batch before anything is written.
func (e *Engine) Merge(ctx context.Context, orders []record.Order) (Stats, error) {
	batchID := e.ids.Generate()
	log := e.logger.With("batch", batchID)

	batch, err := normalizeBatch(orders)
	if err != nil {
		log.Warn("batch rejected", "error", err)
		return Stats{BatchID: batchID}, err
	}

	var stats Stats
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		stats = Stats{BatchID: batchID, Fetched: len(batch)}
		for _, o := range batch {
			if err := mergeOrder(ctx, tx, o, &stats, log); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("merge rolled back", "error", err)
		return Stats{BatchID: batchID}, fmt.Errorf("merge batch %s: %w", batchID, err)
	}

	log.Info("merge committed",
		"fetched", stats.Fetched,
		"new_orders", stats.NewOrders,
		"skipped_orders", stats.SkippedOrders,
		"new_products", stats.NewProducts,
		"reused_products", stats.ReusedProducts,
		"new_lines", stats.NewLines,
	)
	return stats, nil
}

func normalizeBatch(orders []record.Order) ([]record.NormalizedOrder, error) {
	out := make([]record.NormalizedOrder, 0, len(orders))
	seen := make(map[int64]bool, len(orders))
	for _, o := range orders {
		n, err := o.Normalize()
		if err != nil {
			return nil, err
		}
		if seen[n.Number] {
			return nil, store.NewDuplicateOrderError(n.Number, "in one fetch")
		}
		seen[n.Number] = true
		out = append(out, n)
	}
	return out, nil
}

func mergeOrder(ctx context.Context, tx *store.Tx, o record.NormalizedOrder, stats *Stats, log *slog.Logger) error {
	exists, err := tx.OrderExists(ctx, o.Number)
	if err != nil {
		return err
	}
	if exists {
		stats.SkippedOrders++
		log.Debug("order already stored", "order", o.Number)
		return nil
	}

	orderID, err := tx.InsertOrder(ctx, store.NewOrder{Number: o.Number, Date: o.Date})
	if err != nil {
		return err
	}
	stats.NewOrders++

	for _, line := range o.Lines {
		key := store.ProductKey{
			CatalogNumber: line.CatalogNumber,
			OEMNumber:     line.OEMNumber,
			Description:   line.Description,
		}
		productID, created, err := resolveProduct(ctx, tx, key)
		if err != nil {
			return err
		}
		if created {
			stats.NewProducts++
		} else {
			stats.ReusedProducts++
		}

		if _, err := tx.InsertOrderProduct(ctx, orderID, productID, line.Quantity); err != nil {
			return err
		}
		stats.NewLines++
	}

	log.Debug("order merged", "order", o.Number, "date", record.FormatDate(o.Date), "lines", len(o.Lines))
	return nil
}

// resolveProduct finds the product for key or inserts it.
func resolveProduct(ctx context.Context, tx *store.Tx, key store.ProductKey) (store.ProductID, bool, error) {
	p, found, err := tx.FindProduct(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if found {
		return p.ID, false, nil
	}
	id, err := tx.InsertProduct(ctx, key)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
