package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// stripMarkup parses an (X)HTML fragment and returns its visible text:
// script and style subtrees are dropped entirely, remaining tags removed,
// whitespace runs collapsed to single spaces.
func stripMarkup(raw string) string {
	doc, errParse := html.Parse(strings.NewReader(raw))
	if errParse != nil {
		return ""
	}

	var sb strings.Builder
	collectText(doc, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// collectText walks the DOM accumulating text nodes.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
