package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// WebPageToolName is the function name of WebPageTool.
const WebPageToolName = "crawl_and_extract"

// PageCrawler produces the composite document of a crawl.
type PageCrawler interface {
	CrawlAndExtract(ctx context.Context, seed string, maxDepth, maxPages int) (string, error)
}

// WebPageTool lets the model crawl a site and read its content, including
// captions of the embedded images.
type WebPageTool struct {
	crawler         PageCrawler
	defaultDepth    int
	defaultMaxPages int
	maxResultChars  int
}

// WebPageOption configures a WebPageTool.
type WebPageOption func(*WebPageTool)

// WithCrawlDefaults sets the bounds used when the model omits them.
func WithCrawlDefaults(maxDepth, maxPages int) WebPageOption {
	return func(t *WebPageTool) {
		if maxDepth >= 0 {
			t.defaultDepth = maxDepth
		}
		if maxPages > 0 {
			t.defaultMaxPages = maxPages
		}
	}
}

// WithMaxResultChars truncates the returned document to n runes.
// Zero disables truncation.
func WithMaxResultChars(n int) WebPageOption {
	return func(t *WebPageTool) {
		if n >= 0 {
			t.maxResultChars = n
		}
	}
}

// NewWebPageTool creates the tool on top of crawler.
func NewWebPageTool(crawler PageCrawler, opts ...WebPageOption) *WebPageTool {
	t := &WebPageTool{
		crawler:         crawler,
		defaultDepth:    1,
		defaultMaxPages: 20,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Tool.
func (t *WebPageTool) Name() string {
	return WebPageToolName
}

// Description implements Tool.
func (t *WebPageTool) Description() string {
	return "Crawl a web page and the pages it links to, then return their main text " +
		"as markdown with descriptions of the images they contain."
}

// Parameters implements Tool.
func (t *WebPageTool) Parameters() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "Absolute http(s) URL to start from."},
    "max_depth": {"type": "integer", "minimum": 0, "description": "Link hops to follow from the start page. Default %d."},
    "limit": {"type": "integer", "minimum": 1, "description": "Maximum number of pages to read. Default %d."}
  },
  "required": ["url"]
}`, t.defaultDepth, t.defaultMaxPages))
}

type webPageArgs struct {
	URL      string `json:"url"`
	MaxDepth *int   `json:"max_depth,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

// Call implements Tool.
func (t *WebPageTool) Call(ctx context.Context, arguments json.RawMessage) (string, error) {
	var args webPageArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	u, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: url must be an absolute http(s) URL, got %q", ErrInvalidArguments, args.URL)
	}

	depth := t.defaultDepth
	if args.MaxDepth != nil && *args.MaxDepth >= 0 {
		depth = *args.MaxDepth
	}
	limit := t.defaultMaxPages
	if args.Limit != nil && *args.Limit > 0 {
		limit = *args.Limit
	}

	content, err := t.crawler.CrawlAndExtract(ctx, u.String(), depth, limit)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Sprintf("No readable content could be extracted from %s.", u.String()), nil
	}
	return truncateRunes(content, t.maxResultChars), nil
}

// truncateRunes cuts s to at most n runes. n <= 0 leaves s unchanged.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "\n\n[truncated]"
		}
		count++
	}
	return s
}

var _ Tool = (*WebPageTool)(nil)
