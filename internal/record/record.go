package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DateLayout is the calendar-date layout used by the portal, the CLI and the
// snapshot script.
const DateLayout = "2006-01-02"

// ErrMalformed is wrapped by every RecordError.
var ErrMalformed = errors.New("malformed record")

// Order is one remote order with its line items in portal order.
type Order struct {
	Number string
	Date   time.Time
	Lines  []Line
}

// Line is one line item of an order as printed by the portal.
// Quantity stays textual until Normalize parses it.
type Line struct {
	CatalogNumber string
	OEMNumber     string
	Description   string
	Quantity      string
}

// NormalizedOrder is an Order that passed validation.
type NormalizedOrder struct {
	Number int64
	Date   time.Time
	Lines  []NormalizedLine
}

// NormalizedLine is a Line that passed validation.
type NormalizedLine struct {
	CatalogNumber string
	OEMNumber     string
	Description   string
	Quantity      int64
}

// RecordError describes why a scraped record was rejected.
type RecordError struct {
	OrderNumber string
	Line        int // 1-based, 0 when the order itself is malformed
	Field       string
	Reason      string
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed record: order %q line %d: %s: %s", e.OrderNumber, e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record: order %q: %s: %s", e.OrderNumber, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrMalformed
}

// Normalize validates the order and returns its typed form.
func (o Order) Normalize() (NormalizedOrder, error) {
	number, err := ParseOrderNumber(o.Number)
	if err != nil {
		return NormalizedOrder{}, &RecordError{OrderNumber: o.Number, Field: "order_number", Reason: err.Error()}
	}
	if o.Date.IsZero() {
		return NormalizedOrder{}, &RecordError{OrderNumber: o.Number, Field: "date", Reason: "missing"}
	}

	out := NormalizedOrder{
		Number: number,
		Date:   Day(o.Date),
		Lines:  make([]NormalizedLine, 0, len(o.Lines)),
	}
	for i, line := range o.Lines {
		nl, err := line.normalize()
		if err != nil {
			err.OrderNumber = o.Number
			err.Line = i + 1
			return NormalizedOrder{}, err
		}
		out.Lines = append(out.Lines, nl)
	}
	return out, nil
}

func (l Line) normalize() (NormalizedLine, *RecordError) {
	out := NormalizedLine{
		CatalogNumber: NormalizeKey(l.CatalogNumber),
		OEMNumber:     NormalizeKey(l.OEMNumber),
		Description:   NormalizeKey(l.Description),
	}
	if out.CatalogNumber == "" {
		return NormalizedLine{}, &RecordError{Field: "catalog_number", Reason: "empty"}
	}
	if out.Description == "" {
		return NormalizedLine{}, &RecordError{Field: "description", Reason: "empty"}
	}

	qty, err := strconv.ParseInt(strings.TrimSpace(l.Quantity), 10, 64)
	if err != nil {
		return NormalizedLine{}, &RecordError{Field: "quantity", Reason: fmt.Sprintf("not an integer: %q", l.Quantity)}
	}
	if qty < 0 {
		return NormalizedLine{}, &RecordError{Field: "quantity", Reason: fmt.Sprintf("negative: %d", qty)}
	}
	out.Quantity = qty
	return out, nil
}

// ParseOrderNumber parses a portal order number. Order numbers are positive
// integers; surrounding whitespace is ignored.
func ParseOrderNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive: %d", n)
	}
	return n, nil
}

// NormalizeKey applies the natural-key normalization rule: trim surrounding
// whitespace and convert to NFC.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
