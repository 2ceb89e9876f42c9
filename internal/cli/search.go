package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xo/tblfmt"

	"github.com/roach88/orderkeep/internal/record"
	"github.com/roach88/orderkeep/internal/store"
)

const (
	exitPhrase   = "exit"
	searchPrompt = "Search: >>> "
)

// catalogPhrase is a catalog number typed with or without its space.
var catalogPhrase = regexp.MustCompile(`^(?:[0-9]{8}|[0-9]{4} [0-9]{4})$`)

// searchColumns are the headers of the result table.
var searchColumns = []string{"Order number", "Date", "Catalog num", "Oem num", "Description", "Quantity"}

// ParseQuery turns a typed phrase into a store query. A catalog number is an
// exact match, anything else is split into lower-cased words.
func ParseQuery(phrase string) store.Query {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if catalogPhrase.MatchString(phrase) {
		if !strings.Contains(phrase, " ") {
			phrase = phrase[:4] + " " + phrase[4:]
		}
		return store.Query{CatalogNumber: phrase}
	}
	return store.Query{Terms: strings.Fields(phrase)}
}

// searchLoop reads phrases from in until "exit", end of input or ctx is
// cancelled, and prints the matches of each.
func searchLoop(ctx context.Context, st *store.Store, in io.Reader, out *OutputFormatter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanner := bufio.NewScanner(in)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	out.Notice("To exit type %q", exitPhrase)
	out.Notice("Search by catalog number/oem number/description")
	for {
		out.Prompt(searchPrompt)

		var line string
		select {
		case <-ctx.Done():
			out.Notice("")
			return nil
		case l, ok := <-lines:
			if !ok {
				out.Notice("")
				return scanner.Err()
			}
			line = l
		}

		phrase := strings.TrimSpace(line)
		if strings.EqualFold(phrase, exitPhrase) {
			return nil
		}
		if phrase == "" {
			continue
		}

		matches, err := st.Search(ctx, ParseQuery(phrase))
		if err != nil {
			out.Notice("Error: search failed: %v", err)
			continue
		}
		out.VerboseLog("%d lines match %q", len(matches), phrase)
		if err := renderMatches(out, matches); err != nil {
			return err
		}
	}
}

// renderMatches prints matches as a table, or as a JSON array with
// --format json.
func renderMatches(out *OutputFormatter, matches []store.Match) error {
	rs := newMatchResultSet(matches)
	defer rs.Close()

	if out.Format == "json" {
		if err := tblfmt.EncodeJSON(out.Writer, rs); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out.Writer)
		return err
	}
	return tblfmt.EncodeTable(out.Writer, rs)
}

// matchResultSet presents search matches as a tblfmt result set.
type matchResultSet struct {
	matches []store.Match
	pos     int
}

func newMatchResultSet(matches []store.Match) *matchResultSet {
	return &matchResultSet{matches: matches}
}

func (rs *matchResultSet) Next() bool {
	if rs.pos >= len(rs.matches) {
		return false
	}
	rs.pos++
	return true
}

func (rs *matchResultSet) Scan(dest ...interface{}) error {
	if rs.pos == 0 || rs.pos > len(rs.matches) {
		return fmt.Errorf("scan called without a current row")
	}
	if len(dest) != len(searchColumns) {
		return fmt.Errorf("scan: got %d destinations, want %d", len(dest), len(searchColumns))
	}

	m := rs.matches[rs.pos-1]
	row := []interface{}{
		m.Order.Number,
		record.FormatDate(m.Order.Date),
		m.Product.CatalogNumber,
		m.Product.OEMNumber,
		m.Product.Description,
		m.Quantity,
	}
	for i, v := range row {
		p, ok := dest[i].(*interface{})
		if !ok {
			return fmt.Errorf("scan: destination %d is %T, want *interface{}", i, dest[i])
		}
		*p = v
	}
	return nil
}

func (rs *matchResultSet) Columns() ([]string, error) {
	return searchColumns, nil
}

func (rs *matchResultSet) Close() error {
	return nil
}

func (rs *matchResultSet) Err() error {
	return nil
}

func (rs *matchResultSet) NextResultSet() bool {
	return false
}
