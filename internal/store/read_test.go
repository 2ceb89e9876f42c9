package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var (
	tonerC35P = ProductKey{CatalogNumber: "4455 3256", OEMNumber: "44469803", Description: "Toner C35P"}
	tonerOKI  = ProductKey{CatalogNumber: "4475 0255", OEMNumber: "09004078", Description: "Toner kart OKI"}
	drumBrown = ProductKey{CatalogNumber: "1234 5678", OEMNumber: "DR-2400 DR2400", Description: "Bęben Brother 100%_proof"}
)

func seedSearchStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	// inserted out of date order on purpose
	insertOrderWithLines(t, s, 3, date(2022, 3, 1), tonerC35P)
	insertOrderWithLines(t, s, 1, date(2022, 1, 1), tonerC35P, tonerOKI)
	insertOrderWithLines(t, s, 2, date(2022, 2, 1), drumBrown)
	return s
}

func TestFindProduct(t *testing.T) {
	ctx := context.Background()
	s := seedSearchStore(t)

	p, found, err := s.FindProduct(ctx, tonerOKI)
	if err != nil {
		t.Fatalf("FindProduct() failed: %v", err)
	}
	if !found || p.Key() != tonerOKI {
		t.Errorf("FindProduct() = %+v, %v", p, found)
	}

	_, found, err = s.FindProduct(ctx, ProductKey{CatalogNumber: "4475 0255", OEMNumber: "09004078", Description: "toner kart oki"})
	if err != nil {
		t.Fatalf("FindProduct() failed: %v", err)
	}
	if found {
		t.Error("FindProduct() must match exactly, matched a different-case description")
	}
}

// A store that somehow holds two rows for one natural key must refuse to
// pick one.
func TestFindProduct_MultipleMatchesIsConsistencyError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := &Store{db: sqlx.NewDb(mockDB, "sqlite3")}

	rows := sqlmock.NewRows([]string{"id", "catalog_number", "oem_number", "description"}).
		AddRow(1, tonerC35P.CatalogNumber, tonerC35P.OEMNumber, tonerC35P.Description).
		AddRow(2, tonerC35P.CatalogNumber, tonerC35P.OEMNumber, tonerC35P.Description)
	mock.ExpectQuery(regexp.QuoteMeta(findProductSQL)).
		WithArgs(tonerC35P.CatalogNumber, tonerC35P.OEMNumber, tonerC35P.Description).
		WillReturnRows(rows)

	_, _, err = s.FindProduct(context.Background(), tonerC35P)

	var ce *ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("FindProduct() error = %v, want ConsistencyError", err)
	}
	if ce.Code != CodeDuplicateProduct {
		t.Errorf("code = %s, want %s", ce.Code, CodeDuplicateProduct)
	}
	if ce.Details["catalog_number"] != tonerC35P.CatalogNumber {
		t.Errorf("details = %v", ce.Details)
	}

	if mockErr := mock.ExpectationsWereMet(); mockErr != nil {
		t.Fatalf("unmet sqlmock expectations: %v", mockErr)
	}
}

func TestLatestOrderDate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, ok, err := s.LatestOrderDate(ctx)
	if err != nil {
		t.Fatalf("LatestOrderDate() failed: %v", err)
	}
	if ok {
		t.Fatal("LatestOrderDate() on empty store returned ok=true")
	}

	insertOrderWithLines(t, s, 2, date(2022, 5, 1))
	insertOrderWithLines(t, s, 1, date(2022, 6, 15))
	insertOrderWithLines(t, s, 3, date(2021, 12, 31))

	d, ok, err := s.LatestOrderDate(ctx)
	if err != nil {
		t.Fatalf("LatestOrderDate() failed: %v", err)
	}
	if !ok || !d.Equal(date(2022, 6, 15)) {
		t.Errorf("LatestOrderDate() = %v, %v; want 2022-06-15", d, ok)
	}
}

func TestSearch_CatalogNumberOrderedByDate(t *testing.T) {
	s := seedSearchStore(t)

	matches, err := s.Search(context.Background(), Query{CatalogNumber: "4455 3256"})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Order.Number != 1 || matches[1].Order.Number != 3 {
		t.Errorf("order = %d, %d; want 1, 3", matches[0].Order.Number, matches[1].Order.Number)
	}
	if matches[0].Quantity != 1 {
		t.Errorf("quantity = %d, want 1", matches[0].Quantity)
	}
}

func TestSearch_TermsMatchOEMAndDescription(t *testing.T) {
	s := seedSearchStore(t)

	tests := []struct {
		name  string
		terms []string
		want  []int64 // order numbers in result order
	}{
		{"description case-insensitive", []string{"toner"}, []int64{1, 1, 3}},
		{"oem substring", []string{"dr2400"}, []int64{2}},
		{"any term", []string{"oki", "dr-2400"}, []int64{1, 2}},
		{"like wildcards are literal", []string{"100%_"}, []int64{2}},
		{"percent alone matches nothing extra", []string{"%"}, []int64{2}},
		{"no match", []string{"canon"}, nil},
		{"empty terms", []string{"", ""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := s.Search(context.Background(), Query{Terms: tt.terms})
			if err != nil {
				t.Fatalf("Search() failed: %v", err)
			}
			if matches == nil {
				t.Fatal("Search() returned nil, want empty slice")
			}
			var got []int64
			for _, m := range matches {
				got = append(got, m.Order.Number)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("orders = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("orders = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSearch_LineAppearsOnce(t *testing.T) {
	s := seedSearchStore(t)

	// both terms hit the same line
	matches, err := s.Search(context.Background(), Query{Terms: []string{"toner", "oki"}})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	seen := map[LineID]bool{}
	for _, m := range matches {
		if seen[m.LineID] {
			t.Errorf("line %d returned twice", m.LineID)
		}
		seen[m.LineID] = true
	}
	if len(matches) != 3 {
		t.Errorf("got %d matches, want 3", len(matches))
	}
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	s := seedSearchStore(t)

	orders, err := s.Orders(ctx)
	if err != nil {
		t.Fatalf("Orders() failed: %v", err)
	}
	products, err := s.Products(ctx)
	if err != nil {
		t.Fatalf("Products() failed: %v", err)
	}
	lines, err := s.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines() failed: %v", err)
	}

	if len(orders) != 3 || len(products) != 3 || len(lines) != 4 {
		t.Errorf("got %d orders, %d products, %d lines", len(orders), len(products), len(lines))
	}
	if orders[0].Number != 3 {
		t.Errorf("orders not in id order: first is %d", orders[0].Number)
	}
}
