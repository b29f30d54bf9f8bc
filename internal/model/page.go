package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// MaxPageSize is the maximum size of raw page content to keep.
// Larger bodies are truncated to this size.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// QueueEntry is a pending crawl target.
type QueueEntry struct {
	// URL is the absolute http(s) URL to fetch.
	URL string `json:"url"`

	// Depth is the number of link hops from the seed. The seed has depth 0.
	Depth int `json:"depth"`
}

// Page is a crawled HTML page.
type Page struct {
	// URL is the URL the page was fetched from.
	URL string `json:"url"`

	// Depth is the link distance from the crawl seed.
	Depth int `json:"depth"`

	// RawHTML is the response body. Only HTML responses become pages.
	RawHTML string `json:"-"`

	// ContentType is the MIME type reported by the server.
	ContentType string `json:"content_type,omitempty"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Hash is the SHA-256 hash of RawHTML.
	Hash string `json:"hash,omitempty"`
}

// NewPage creates a page record for a fetched body and computes its hash.
func NewPage(url string, depth int, rawHTML string) *Page {
	p := &Page{
		URL:         url,
		Depth:       depth,
		RawHTML:     rawHTML,
		ContentType: "text/html",
		FetchedAt:   time.Now(),
	}
	p.TruncateRaw()
	p.ComputeHash()
	return p
}

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.RawHTML) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256([]byte(p.RawHTML))
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML returns true if the page content type indicates HTML.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html")
}

// TruncateRaw ensures the raw content doesn't exceed MaxPageSize.
func (p *Page) TruncateRaw() {
	if len(p.RawHTML) > MaxPageSize {
		p.RawHTML = p.RawHTML[:MaxPageSize]
	}
}

// ImageCaption is a downloaded image together with its caption.
type ImageCaption struct {
	// LocalPath is where the image was stored on disk.
	LocalPath string `json:"local_path"`

	// SourceURL is the absolute URL the image was downloaded from.
	SourceURL string `json:"source_url"`

	// Caption is the description produced by the captioner.
	Caption string `json:"caption"`
}

// Keep reports whether the caption carries information worth rendering.
// Empty captions and the literal "none" (any case) are dropped.
func (c ImageCaption) Keep() bool {
	text := strings.TrimSpace(c.Caption)
	return text != "" && !strings.EqualFold(text, "none")
}

// PageDocument is the extraction output for one page.
type PageDocument struct {
	// URL is the page the document was rendered from.
	URL string `json:"url"`

	// Text is the flattened main content.
	Text string `json:"text"`

	// Images holds the kept captions in document order.
	Images []ImageCaption `json:"images,omitempty"`
}

// Document is the composite extraction result for one crawl seed.
type Document struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// Pages holds the per-page documents in crawl order.
	Pages []PageDocument `json:"pages"`

	// Content is the rendered composite text.
	Content string `json:"content"`

	// CreatedAt is when extraction finished.
	CreatedAt time.Time `json:"created_at"`
}
