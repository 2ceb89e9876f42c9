package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orderkeep/internal/record"
	"github.com/roach88/orderkeep/internal/store"
	"github.com/roach88/orderkeep/internal/testutil"
)

var (
	lineC35P = [4]string{"4455 3256", "44469803", "Toner C35P", "4"}
	lineOKI  = [4]string{"4475 0255", "09004078", "Toner kart OKI", "5"}
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.CreateEmpty(context.Background(), t.TempDir()+"/db.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, f Fetcher, clock Clock) (*Engine, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	return New(s, f, WithClock(clock)), s
}

func counts(t *testing.T, s *store.Store) store.Counts {
	t.Helper()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func TestUpdate_FirstOrder(t *testing.T) {
	ctx := context.Background()
	fetcher := testutil.NewFakeFetcher(
		testutil.Order("420397", testutil.Date(2022, 1, 1), lineC35P, lineOKI),
	)
	e, s := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	stats, err := e.Update(ctx, Window{Start: testutil.Date(2022, 1, 1), End: testutil.Date(2022, 1, 1)})
	require.NoError(t, err)

	assert.Equal(t, store.Counts{Orders: 1, Products: 2, Lines: 2}, counts(t, s))
	assert.Equal(t, 1, stats.NewOrders)
	assert.Equal(t, 2, stats.NewProducts)
	assert.Equal(t, 2, stats.NewLines)
	assert.NotEmpty(t, stats.BatchID)
}

func TestUpdate_SecondOrderReusesProduct(t *testing.T) {
	ctx := context.Background()
	fetcher := testutil.NewFakeFetcher(
		testutil.Order("420397", testutil.Date(2022, 1, 1), lineC35P, lineOKI),
	)
	e, s := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	_, err := e.Update(ctx, Window{Start: testutil.Date(2022, 1, 1), End: testutil.Date(2022, 1, 1)})
	require.NoError(t, err)

	fetcher.Add(testutil.Order("420512", testutil.Date(2022, 2, 3), [4]string{"4455 3256", "44469803", "Toner C35P", "1"}))
	stats, err := e.Update(ctx, Window{Start: testutil.Date(2022, 2, 1), End: testutil.Date(2022, 2, 28)})
	require.NoError(t, err)

	assert.Equal(t, store.Counts{Orders: 2, Products: 2, Lines: 3}, counts(t, s))
	assert.Equal(t, 0, stats.NewProducts)
	assert.Equal(t, 1, stats.ReusedProducts)
}

func TestUpdate_DefaultWindow(t *testing.T) {
	fetcher := testutil.NewFakeFetcher()
	e, _ := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	stats, err := e.Update(context.Background(), Window{})
	require.NoError(t, err)

	want := testutil.Window{Start: testutil.Date(2021, 6, 1), End: testutil.Date(2022, 6, 1)}
	assert.Equal(t, []testutil.Window{want}, fetcher.Calls())
	assert.Equal(t, Window{Start: want.Start, End: want.End}, stats.Window)
}

func TestUpdate_StartAfterEnd(t *testing.T) {
	fetcher := testutil.NewFakeFetcher()
	e, _ := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	_, err := e.Update(context.Background(), Window{Start: testutil.Date(2022, 3, 2), End: testutil.Date(2022, 3, 1)})

	var we *WindowError
	require.True(t, errors.As(err, &we), "error = %v", err)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Empty(t, fetcher.Calls())
}

func TestUpdate_FetchErrorSurfacesUnchanged(t *testing.T) {
	errLogin := errors.New("login refused")
	fetcher := testutil.NewFakeFetcher()
	fetcher.Err = errLogin
	e, s := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	_, err := e.Update(context.Background(), Window{})
	assert.Equal(t, errLogin, err)
	assert.Equal(t, store.Counts{}, counts(t, s))
	assert.Len(t, fetcher.Calls(), 1, "no retry")
}

func TestRefresh_EmptyStore(t *testing.T) {
	fetcher := testutil.NewFakeFetcher()
	e, _ := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 6, 1))

	_, err := e.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrEmptyStore)
	assert.True(t, IsEmptyStore(err))
	assert.Empty(t, fetcher.Calls())
}

func TestRefresh_StartsDayAfterLatestOrder(t *testing.T) {
	ctx := context.Background()
	fetcher := testutil.NewFakeFetcher(
		testutil.Order("1", testutil.Date(2022, 3, 1), lineC35P),
		testutil.Order("2", testutil.Date(2022, 3, 10), lineOKI),
	)
	clock := testutil.NewFixedClock(2022, 3, 10)
	e, s := newTestEngine(t, fetcher, clock)

	_, err := e.Update(ctx, Window{Start: testutil.Date(2022, 3, 1), End: testutil.Date(2022, 3, 10)})
	require.NoError(t, err)

	// an order on the latest day is never fetched twice
	clock.Advance(5)
	fetcher.Add(testutil.Order("3", testutil.Date(2022, 3, 12), lineC35P))
	stats, err := e.Refresh(ctx)
	require.NoError(t, err)

	calls := fetcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, testutil.Window{Start: testutil.Date(2022, 3, 11), End: testutil.Date(2022, 3, 15)}, calls[1])
	assert.Equal(t, 1, stats.NewOrders)
	assert.Equal(t, 0, stats.SkippedOrders)
	assert.Equal(t, store.Counts{Orders: 3, Products: 2, Lines: 3}, counts(t, s))
}

func TestRefresh_UpToDateFetchesNothing(t *testing.T) {
	ctx := context.Background()
	fetcher := testutil.NewFakeFetcher(testutil.Order("1", testutil.Date(2022, 3, 10), lineC35P))
	e, _ := newTestEngine(t, fetcher, testutil.NewFixedClock(2022, 3, 10))

	_, err := e.Update(ctx, Window{})
	require.NoError(t, err)

	stats, err := e.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 1)
	assert.Equal(t, 0, stats.Fetched)
}

func TestMerge_DuplicateKeyInOneBatchYieldsOneProduct(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil)

	stats, err := e.Merge(context.Background(), []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P),
		testutil.Order("11", testutil.Date(2022, 1, 2), lineC35P),
	})
	require.NoError(t, err)

	assert.Equal(t, store.Counts{Orders: 2, Products: 1, Lines: 2}, counts(t, s))
	assert.Equal(t, 1, stats.NewProducts)
	assert.Equal(t, 1, stats.ReusedProducts)

	lines, err := s.Lines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lines[0].ProductID, lines[1].ProductID)
}

func TestMerge_SameProductTwiceOnOneOrder(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil)

	_, err := e.Merge(context.Background(), []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P, lineC35P),
	})
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Orders: 1, Products: 1, Lines: 2}, counts(t, s))
}

func TestMerge_NormalizesNaturalKey(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil)

	_, err := e.Merge(context.Background(), []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), [4]string{" 4455 3256", "44469803 ", "Toner C35P", "1"}),
		testutil.Order("11", testutil.Date(2022, 1, 1), lineC35P),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts(t, s).Products)
}

func TestMerge_DuplicateOrderInBatchWritesNothing(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil)

	_, err := e.Merge(context.Background(), []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P),
		testutil.Order("010", testutil.Date(2022, 1, 1), lineOKI),
	})

	var ce *store.ConsistencyError
	require.True(t, errors.As(err, &ce), "error = %v", err)
	assert.Equal(t, store.CodeDuplicateOrder, ce.Code)
	assert.Equal(t, store.Counts{}, counts(t, s))
}

func TestMerge_MalformedRecordWritesNothing(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil)

	_, err := e.Merge(context.Background(), []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P),
		testutil.Order("11", testutil.Date(2022, 1, 1), [4]string{"4475 0255", "", "Toner", "five"}),
	})

	var re *record.RecordError
	require.True(t, errors.As(err, &re), "error = %v", err)
	assert.Equal(t, "quantity", re.Field)
	assert.Equal(t, store.Counts{}, counts(t, s))
}

func TestMerge_KnownOrderIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	e := New(s, nil)

	_, err := e.Merge(ctx, []record.Order{testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P)})
	require.NoError(t, err)

	stats, err := e.Merge(ctx, []record.Order{
		testutil.Order("10", testutil.Date(2022, 1, 1), lineC35P),
		testutil.Order("11", testutil.Date(2022, 1, 2), lineOKI),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SkippedOrders)
	assert.Equal(t, 1, stats.NewOrders)
	assert.Equal(t, store.Counts{Orders: 2, Products: 2, Lines: 2}, counts(t, s))
}

func TestMerge_BatchIDs(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, nil, WithBatchIDs(NewFixedGenerator("batch-1", "batch-2")))

	first, err := e.Merge(context.Background(), nil)
	require.NoError(t, err)
	second, err := e.Merge(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "batch-1", first.BatchID)
	assert.Equal(t, "batch-2", second.BatchID)
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestSystemClock_IsMidnightUTC(t *testing.T) {
	today := SystemClock{}.Today()
	assert.Equal(t, time.UTC, today.Location())
	assert.Zero(t, today.Hour())
}
