package scraper

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/orderkeep/internal/record"
)

var (
	orderLinkRe   = regexp.MustCompile(`zob_zam\.php3\?id=\d+`)
	orderNumberRe = regexp.MustCompile(`\d+`)
	dateRe        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const (
	// history results live in the fourth table of the page
	historyTable = 3
	// order details follow the third table of the order page
	orderInfoTable = 2
	// the order date is this many cells from the end of the order page
	orderDateFromEnd = 25
	// a line row has a leading position cell plus catalog number,
	// description, price, quantity and more
	minLineCells = 6
)

// FetchOrders returns every order placed between start and end inclusive,
// in the order the portal lists them. It logs in first when needed and
// fails with ErrLogin if the portal refuses the credentials. Either the
// whole window is returned or an error.
func (c *Client) FetchOrders(ctx context.Context, start, end time.Time) ([]record.Order, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	doc, err := c.post(ctx, historyPath, map[string]string{
		"filters":   "data_od,data_do,numer,stan",
		"data_od":   record.FormatDate(start),
		"data_do":   record.FormatDate(end),
		"numer_zam": "",
		"stan":      "",
		"sbm":       "Szukaj",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch order history: %w", err)
	}

	links := parseHistory(doc)
	c.logger.Info("order history fetched",
		"start", record.FormatDate(start), "end", record.FormatDate(end), "orders", len(links))

	orders := make([]record.Order, 0, len(links))
	for _, link := range links {
		o, err := c.fetchOrder(ctx, link)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *Client) fetchOrder(ctx context.Context, link string) (record.Order, error) {
	doc, err := c.get(ctx, link)
	if err != nil {
		return record.Order{}, fmt.Errorf("fetch order %s: %w", link, err)
	}

	o, err := parseOrder(doc)
	if err != nil {
		return record.Order{}, fmt.Errorf("parse order %s: %w", link, err)
	}

	for i := range o.Lines {
		oem, err := c.OEMNumber(ctx, o.Lines[i].CatalogNumber)
		if err != nil {
			return record.Order{}, err
		}
		o.Lines[i].OEMNumber = oem
	}
	c.logger.Debug("order fetched", "order", o.Number, "lines", len(o.Lines))
	return o, nil
}

// parseHistory returns the order page links of a history result page.
func parseHistory(doc *goquery.Document) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find("table").Eq(historyTable).Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range s.Nodes[0].Attr {
			for _, link := range orderLinkRe.FindAllString(attr.Val, -1) {
				if !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
	})
	return links
}

// parseOrder reads number, date and lines of an order page. OEM numbers are
// left empty.
func parseOrder(doc *goquery.Document) (record.Order, error) {
	var o record.Order

	number := orderNumberRe.FindString(doc.Find("p").Eq(1).Text())
	if number == "" {
		return o, fmt.Errorf("order number not found")
	}
	o.Number = number

	date, err := parseOrderDate(doc)
	if err != nil {
		return o, fmt.Errorf("order %s: %w", number, err)
	}
	o.Date = date

	o.Lines = parseLines(doc)
	return o, nil
}

// parseOrderDate reads the date cell at its fixed distance from the end of
// the page, falling back to the first date-shaped cell after the info table.
func parseOrderDate(doc *goquery.Document) (time.Time, error) {
	tables := doc.Find("table")
	if tables.Length() <= orderInfoTable {
		return time.Time{}, fmt.Errorf("order date not found: page has %d tables", tables.Length())
	}

	cells := following(doc, tables.Get(orderInfoTable), "td")
	if i := len(cells) - orderDateFromEnd; i >= 0 {
		if d, err := record.ParseDate(nodeText(cells[i])); err == nil {
			return d, nil
		}
	}
	for _, cell := range cells {
		if text := nodeText(cell); dateRe.MatchString(text) {
			return record.ParseDate(text)
		}
	}
	return time.Time{}, fmt.Errorf("order date not found")
}

// parseLines reads the line items table: the first table without nested
// tables whose header row is followed by rows of at least minLineCells
// cells.
func parseLines(doc *goquery.Document) []record.Line {
	var lines []record.Line

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if table.Find("table").Length() > 0 {
			return true
		}
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() < minLineCells {
				return
			}
			lines = append(lines, record.Line{
				CatalogNumber: cellText(cells.Eq(1)),
				Description:   cellText(cells.Eq(2)),
				Quantity:      cellText(cells.Eq(4)),
			})
		})
		return len(lines) == 0
	})
	return lines
}
