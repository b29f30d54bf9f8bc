package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate elements never contribute to the main content.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
	atom.Select:   true,
	atom.Head:     true,
}

// minParagraphLength is the non-space length below which a paragraph
// carries no content score.
const minParagraphLength = 10

// paragraphs are always scored; divs and sections only when they hold no
// block children and so act as paragraphs themselves.
var paragraphs = map[atom.Atom]bool{
	atom.P:          true,
	atom.Pre:        true,
	atom.Td:         true,
	atom.Blockquote: true,
}

var blocks = map[atom.Atom]bool{
	atom.A:          true,
	atom.Blockquote: true,
	atom.Dl:         true,
	atom.Div:        true,
	atom.Img:        true,
	atom.Ol:         true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
}

// MainContent returns the node holding the readable main content of doc.
//
// Explicit markup wins: the first <main> or role="main" element, otherwise
// the <article> with the most text. Without such markup every paragraph
// scores its parent in full and its grandparent by half, each candidate is
// scaled down by its link density, and the best one is returned. The <body>
// (or doc itself) is the fallback.
func MainContent(doc *html.Node) *html.Node {
	if n := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Main || strings.EqualFold(attr(n, "role"), "main")
	}); n != nil && textLength(n, false) > 0 {
		return n
	}

	var best *html.Node
	bestLen := 0
	walkElements(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Article {
			if l := textLength(n, false); l > bestLen {
				best, bestLen = n, l
			}
			return false
		}
		return true
	})
	if best != nil {
		return best
	}

	if best = topCandidate(doc); best != nil {
		return best
	}
	if body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return body
	}
	return doc
}

// topCandidate runs the paragraph scoring over doc and returns the
// candidate with the highest link-weighted score, or nil without any.
func topCandidate(doc *html.Node) *html.Node {
	scores := make(map[*html.Node]float64)
	var order []*html.Node
	credit := func(n *html.Node, s float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			scores[n] = baseScore(n)
			order = append(order, n)
		}
		scores[n] += s
	}

	walkElements(doc, func(n *html.Node) bool {
		if !isParagraph(n) {
			return true
		}
		text := innerText(n)
		length := len(strings.Join(strings.Fields(text), ""))
		if length < minParagraphLength {
			return true
		}
		s := 1 + float64(strings.Count(text, ",")+strings.Count(text, "、")) + min(float64(length/100), 3)
		credit(n.Parent, s)
		if n.Parent != nil {
			credit(n.Parent.Parent, s/2)
		}
		return true
	})

	var best *html.Node
	bestScore := 0.0
	for _, n := range order {
		total := textLength(n, false)
		if total == 0 {
			continue
		}
		s := scores[n] * (1 - float64(textLength(n, true))/float64(total))
		if best == nil || s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

func isParagraph(n *html.Node) bool {
	if paragraphs[n.DataAtom] {
		return true
	}
	if n.DataAtom != atom.Div && n.DataAtom != atom.Section {
		return false
	}
	return findFirst(n, func(c *html.Node) bool { return c != n && blocks[c.DataAtom] }) == nil
}

func baseScore(n *html.Node) float64 {
	switch n.DataAtom {
	case atom.Div, atom.Article, atom.Section, atom.Main:
		return 5
	case atom.Td, atom.Pre, atom.Blockquote:
		return 3
	case atom.Ul, atom.Ol, atom.Dl, atom.Dd, atom.Dt, atom.Li:
		return -3
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Th:
		return -5
	}
	return 0
}

// innerText concatenates the text below n, skipping boilerplate.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if boilerplate[n.DataAtom] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// textLength counts the non-space text characters below n, skipping
// boilerplate. With linksOnly it counts only text inside <a> elements.
func textLength(n *html.Node, linksOnly bool) int {
	total := 0
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inLink bool) {
		switch n.Type {
		case html.TextNode:
			if !linksOnly || inLink {
				total += len(strings.Join(strings.Fields(n.Data), ""))
			}
			return
		case html.ElementNode:
			if boilerplate[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.A {
				inLink = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(n, false)
	return total
}

// walkElements visits element nodes depth-first, skipping boilerplate.
// Returning false from fn skips the node's children.
func walkElements(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if boilerplate[n.DataAtom] {
			return
		}
		if !fn(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

// findFirst returns the first element (outside boilerplate) satisfying match.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walkElements(n, func(e *html.Node) bool {
		if found != nil {
			return false
		}
		if match(e) {
			found = e
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
