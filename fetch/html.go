package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// dom is the single parsed document built once per cached page (Design
// Notes §9: "centralize HTML normalization and build a single DOM per
// cached page, accessed by a small query API"), instead of the
// regex-per-call scraping the design notes call out as non-transferable.
type dom struct {
	root *html.Node
}

func parseDOM(body []byte) (*dom, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	return &dom{root: root}, nil
}

// findAll returns every node with the given tag name, depth-first, document
// order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// textContent returns the concatenated text of n and its descendants, with
// runs of whitespace collapsed to a single space.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	fields := strings.Fields(b.String())
	return strings.Join(fields, " ")
}

// attr returns the value of attribute name on n, if present.
func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// firstLink returns the href of the first <a> descendant of n, if any.
func firstLink(n *html.Node) (string, bool) {
	for _, a := range findAll(n, "a") {
		if href, ok := attr(a, "href"); ok && href != "" {
			return href, true
		}
	}
	return "", false
}

// tableRows returns every <tr> under every <table> in the document, in
// document order — the shape Apple's security-release index and the
// developer beta feed both use.
func (d *dom) tableRows() []*html.Node {
	return findAll(d.root, "tr")
}

// cells returns the <td>/<th> children of a <tr> node, in order.
func cells(tr *html.Node) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			out = append(out, c)
		}
	}
	return out
}

// paragraphs returns every <p> node in the document, in order — used to
// locate "Impact:" / "Available for:" blocks on detail pages.
func (d *dom) paragraphs() []*html.Node {
	return findAll(d.root, "p")
}

// listItems returns every <li> node in the document, in order — Apple's
// detail pages often enumerate CVEs as list items rather than table rows.
func (d *dom) listItems() []*html.Node {
	return findAll(d.root, "li")
}

// headings returns every <h1>-<h4> node in the document, grouped by tag:
// all <h1> nodes in document order, then all <h2>, and so on.
func (d *dom) headings() []*html.Node {
	var out []*html.Node
	for _, tag := range []string{"h1", "h2", "h3", "h4"} {
		out = append(out, findAll(d.root, tag)...)
	}
	return out
}

var blockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true,
	"p": true, "li": true,
}

// blocks returns every heading/paragraph/list-item node in true document
// order, interleaved — unlike headings/paragraphs/listItems, which group by
// tag. DetailPageFetcher uses this to slice the text belonging to one
// heading's section without re-walking the tree per heading.
func (d *dom) blocks() []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && blockTags[n.Data] {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// isHeading reports whether n is an <h1>-<h4> node.
func isHeading(n *html.Node) bool {
	switch n.Data {
	case "h1", "h2", "h3", "h4":
		return n.Type == html.ElementNode
	default:
		return false
	}
}
