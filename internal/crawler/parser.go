package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Parser extracts the title and outgoing links of an HTML page.
type Parser struct {
	// baseURL is used to resolve relative links. A <base href> in the
	// document replaces it.
	baseURL *url.URL
}

// ParseResult contains the data extracted from a page.
type ParseResult struct {
	// Title is the text of the <title> element.
	Title string

	// Links holds every absolute http(s) link target in document order,
	// without duplicates and without fragments.
	Links []string

	// InternalLinks is the subset of Links on the same host as the page.
	InternalLinks []string

	// ExternalLinks is the subset of Links on other hosts.
	ExternalLinks []string
}

// NewParser creates a new parser for pages located at baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts links.
// The x/net/html parser is lenient, so malformed markup still yields
// whatever links could be recovered.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	base := p.baseURL
	if href := findBaseHref(doc); href != "" {
		if u, err := url.Parse(href); err == nil {
			base = p.baseURL.ResolveReference(u)
		}
	}

	result := &ParseResult{
		Links:         make([]string, 0),
		InternalLinks: make([]string, 0),
		ExternalLinks: make([]string, 0),
	}
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a", "area":
				link := ResolveURL(base, getAttr(n, "href"))
				if link != "" && isHTTP(link) && !seen[link] {
					seen[link] = true
					result.Links = append(result.Links, link)
					p.classifyLink(link, result)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// classifyLink sorts a link into InternalLinks or ExternalLinks.
func (p *Parser) classifyLink(link string, result *ParseResult) {
	u, err := url.Parse(link)
	if err != nil {
		return
	}
	if strings.EqualFold(u.Hostname(), p.baseURL.Hostname()) {
		result.InternalLinks = append(result.InternalLinks, link)
		return
	}
	result.ExternalLinks = append(result.ExternalLinks, link)
}

// findBaseHref returns the href of the first <base> element, if any.
func findBaseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		return getAttr(n, "href")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBaseHref(c); href != "" {
			return href
		}
	}
	return ""
}

// ResolveURL resolves ref against base and drops the fragment.
// Pseudo-URLs (javascript:, mailto:, tel:, data:) and bare fragments
// resolve to the empty string.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := u
	if base != nil {
		resolved = base.ResolveReference(u)
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

// isHTTP reports whether rawURL is an absolute http or https URL.
func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// getAttr returns the value of the named attribute, or "".
func getAttr(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}
