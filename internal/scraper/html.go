package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// following returns every element named tag that starts after from's start
// tag in document order, descendants of from included.
func following(doc *goquery.Document, from *html.Node, tag string) []*html.Node {
	var (
		out     []*html.Node
		started bool
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == from {
			started = true
		} else if started && n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
	return out
}

// nodeText joins the node's text fragments with single spaces, so that
// values separated by <br> stay apart.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// cellText is the trimmed text of a table cell.
func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
