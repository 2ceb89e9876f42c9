package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UnknownOEM stands in for an OEM number the catalog search did not return.
const UnknownOEM = "???? ????"

// search results follow the third table of the catalog search page
const searchResultTable = 2

// OEMNumber looks up the OEM numbers of a catalog number. The portal's
// search does not accept a leading zero, so one is stripped. When the search
// finds nothing UnknownOEM is returned; an error means the request failed.
func (c *Client) OEMNumber(ctx context.Context, catalogNumber string) (string, error) {
	keyword := SearchKeyword(catalogNumber)
	doc, err := c.post(ctx, searchPath, map[string]string{"keyw": keyword})
	if err != nil {
		return "", fmt.Errorf("oem lookup %q: %w", keyword, err)
	}

	oem, ok := parseOEM(doc)
	if !ok {
		c.logger.Warn("oem number not found", "catalog_number", catalogNumber)
		return UnknownOEM, nil
	}
	return oem, nil
}

// SearchKeyword strips one leading zero from a catalog number.
func SearchKeyword(catalogNumber string) string {
	return strings.TrimPrefix(catalogNumber, "0")
}

// parseOEM reads the second cell of the first result row.
func parseOEM(doc *goquery.Document) (string, bool) {
	tables := doc.Find("table")
	if tables.Length() <= searchResultTable {
		return "", false
	}
	rows := following(doc, tables.Get(searchResultTable), "tr")
	if len(rows) < 2 {
		return "", false
	}
	cells := following(doc, rows[1], "td")
	if len(cells) < 2 {
		return "", false
	}
	oem := nodeText(cells[1])
	if oem == "" {
		return "", false
	}
	return oem, true
}
