package crawler

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Fetcher retrieves the HTML body of a URL.
// Implementations return the empty string for any failure.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) string
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) string

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) string {
	return f(ctx, rawURL)
}

// HTTPFetcher is a Fetcher backed by an *http.Client.
type HTTPFetcher struct {
	client      *http.Client
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithFetchTimeout bounds each fetch. Zero leaves only the client timeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithMaxBodySize sets the maximum number of body bytes read.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithFetcherLogger sets the logger used for failed fetches.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates a fetcher using client.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		timeout:     20 * time.Second,
		maxBodySize: 5 * 1024 * 1024,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one GET request. Only 2xx responses whose Content-Type
// is text/html (or XHTML) are returned; everything else, including
// transport errors and timeouts, yields "".
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) string {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.logger.Debug("invalid fetch URL", "url", rawURL, "error", err)
		return ""
	}
	req.Header.Set("Accept", "text/html,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("fetch failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Debug("fetch returned non-success status", "url", rawURL, "status", resp.StatusCode)
		return ""
	}
	if !IsHTMLContentType(resp.Header.Get("Content-Type")) {
		f.logger.Debug("skipping non-HTML response", "url", rawURL, "content_type", resp.Header.Get("Content-Type"))
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.logger.Debug("failed to read body", "url", rawURL, "error", err)
		return ""
	}
	return string(body)
}

// IsHTMLContentType reports whether a Content-Type header is text/html.
// XHTML and other markup types are not crawled.
func IsHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html"
}
