package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// graphFetcher serves an in-memory link graph and counts fetches per URL.
type graphFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	counts map[string]int
}

func newGraphFetcher(links map[string][]string) *graphFetcher {
	pages := make(map[string]string, len(links))
	for from, targets := range links {
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, to := range targets {
			fmt.Fprintf(&b, `<a href="%s">link</a>`, to)
		}
		b.WriteString("</body></html>")
		pages[from] = b.String()
	}
	return &graphFetcher{pages: pages, counts: make(map[string]int)}
}

func (g *graphFetcher) Fetch(_ context.Context, rawURL string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[rawURL]++
	return g.pages[rawURL]
}

func (g *graphFetcher) fetched() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}

func pageURLs(t *testing.T, spider *Spider, seed string) []string {
	t.Helper()
	pages, err := spider.Crawl(t.Context(), seed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls
}

func TestSpider(t *testing.T) {
	t.Parallel()

	site := map[string][]string{
		"http://site.test/":        {"/docs/a", "/blog/b", "http://site.test/#top"},
		"http://site.test/docs/a":  {"/docs/c", "/"},
		"http://site.test/blog/b":  {"/docs/c"},
		"http://site.test/docs/c":  {"/docs/d"},
		"http://site.test/docs/d":  nil,
		"http://other.test/ignore": nil,
	}

	t.Run("depth zero returns only the seed", func(t *testing.T) {
		t.Parallel()

		spider, err := NewSpider(newGraphFetcher(site), WithMaxDepth(0))
		if err != nil {
			t.Fatal(err)
		}
		urls := pageURLs(t, spider, "http://site.test/")
		if len(urls) != 1 || urls[0] != "http://site.test/" {
			t.Errorf("unexpected pages: %v", urls)
		}
	})

	t.Run("breadth first order within depth", func(t *testing.T) {
		t.Parallel()

		spider, _ := NewSpider(newGraphFetcher(site), WithMaxDepth(2), WithMaxPages(10))
		urls := pageURLs(t, spider, "http://site.test/")
		want := []string{
			"http://site.test/",
			"http://site.test/docs/a",
			"http://site.test/blog/b",
			"http://site.test/docs/c",
		}
		if strings.Join(urls, ",") != strings.Join(want, ",") {
			t.Errorf("pages = %v, want %v", urls, want)
		}
	})

	t.Run("page limit is honored", func(t *testing.T) {
		t.Parallel()

		spider, _ := NewSpider(newGraphFetcher(site), WithMaxDepth(5), WithMaxPages(2))
		urls := pageURLs(t, spider, "http://site.test/")
		if len(urls) != 2 {
			t.Errorf("expected 2 pages, got %v", urls)
		}
	})

	t.Run("no URL is fetched twice", func(t *testing.T) {
		t.Parallel()

		fetcher := newGraphFetcher(site)
		spider, _ := NewSpider(fetcher, WithMaxDepth(5), WithMaxPages(50), WithConcurrency(3))
		_ = pageURLs(t, spider, "http://site.test/")

		for u, n := range fetcher.fetched() {
			if n > 1 {
				t.Errorf("%s fetched %d times", u, n)
			}
		}
	})

	t.Run("include pattern prevents fetching other URLs", func(t *testing.T) {
		t.Parallel()

		fetcher := newGraphFetcher(site)
		spider, err := NewSpider(fetcher, WithMaxDepth(5), WithIncludePatterns([]string{"/docs/", `^http://site\.test/$`}))
		if err != nil {
			t.Fatal(err)
		}
		_ = pageURLs(t, spider, "http://site.test/")

		for u := range fetcher.fetched() {
			if strings.Contains(u, "/blog/") {
				t.Errorf("non-matching URL fetched: %s", u)
			}
		}
	})

	t.Run("seed failing the include pattern yields nothing", func(t *testing.T) {
		t.Parallel()

		fetcher := newGraphFetcher(site)
		spider, _ := NewSpider(fetcher, WithIncludePatterns([]string{"/docs/"}))
		urls := pageURLs(t, spider, "http://site.test/")
		if len(urls) != 0 || len(fetcher.fetched()) != 0 {
			t.Errorf("expected no fetches, got pages %v fetches %v", urls, fetcher.fetched())
		}
	})

	t.Run("exclude pattern", func(t *testing.T) {
		t.Parallel()

		fetcher := newGraphFetcher(site)
		spider, _ := NewSpider(fetcher, WithMaxDepth(5), WithExcludePatterns([]string{"/docs/c$"}))
		_ = pageURLs(t, spider, "http://site.test/")

		fetched := fetcher.fetched()
		if fetched["http://site.test/docs/c"] != 0 || fetched["http://site.test/docs/d"] != 0 {
			t.Errorf("excluded URL (or its children) fetched: %v", fetched)
		}
	})

	t.Run("same host restriction", func(t *testing.T) {
		t.Parallel()

		graph := map[string][]string{
			"http://site.test/":        {"http://other.test/ignore", "/local"},
			"http://site.test/local":   nil,
			"http://other.test/ignore": nil,
		}
		spider, _ := NewSpider(newGraphFetcher(graph), WithSameHostOnly(true))
		urls := pageURLs(t, spider, "http://site.test/")
		if strings.Join(urls, ",") != "http://site.test/,http://site.test/local" {
			t.Errorf("unexpected pages: %v", urls)
		}
	})

	t.Run("stats count skips", func(t *testing.T) {
		t.Parallel()

		spider, _ := NewSpider(newGraphFetcher(site), WithMaxDepth(1))
		_, stats, err := spider.CrawlWithStats(t.Context(), "http://site.test/")
		if err != nil {
			t.Fatal(err)
		}
		if stats.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", stats.Pages)
		}
		if stats.Skipped["visited"] == 0 && stats.Skipped["depth"] == 0 {
			t.Errorf("expected skipped entries, got %v", stats.Skipped)
		}
	})

	t.Run("invalid seed is an error", func(t *testing.T) {
		t.Parallel()

		spider, _ := NewSpider(newGraphFetcher(site))
		if _, err := spider.Crawl(t.Context(), "not a url"); err == nil {
			t.Error("expected error for invalid seed")
		}
	})

	t.Run("invalid pattern fails construction", func(t *testing.T) {
		t.Parallel()

		if _, err := NewSpider(newGraphFetcher(site), WithExcludePatterns([]string{"[z-a]"})); err == nil {
			t.Error("expected error for invalid pattern")
		}
	})

	t.Run("cancellation returns partial results", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		fetcher := FetcherFunc(func(_ context.Context, rawURL string) string {
			cancel()
			return `<html><a href="/next">next</a></html>`
		})
		spider, _ := NewSpider(fetcher, WithMaxDepth(3))
		pages, err := spider.Crawl(ctx, "http://site.test/")
		if err == nil {
			t.Fatal("expected context error")
		}
		if len(pages) != 1 {
			t.Errorf("expected the seed page before cancellation, got %d pages", len(pages))
		}
	})
}

func TestSpiderConcurrencyBound(t *testing.T) {
	t.Parallel()

	links := map[string][]string{"http://site.test/": nil}
	for i := range 20 {
		u := fmt.Sprintf("http://site.test/p%d", i)
		links["http://site.test/"] = append(links["http://site.test/"], u)
		links[u] = nil
	}
	graph := newGraphFetcher(links)

	var inFlight, peak atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) string {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return graph.Fetch(ctx, rawURL)
	})

	spider, _ := NewSpider(fetcher, WithMaxDepth(1), WithMaxPages(21), WithConcurrency(4))
	pages, err := spider.Crawl(t.Context(), "http://site.test/")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 21 {
		t.Errorf("expected 21 pages, got %d", len(pages))
	}
	if peak.Load() > 4 {
		t.Errorf("observed %d concurrent fetches, limit is 4", peak.Load())
	}
}

// TestSpiderWithTimeout crawls A -> {B, C} where B never answers in time.
func TestSpiderWithTimeout(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/b">B</a><a href="/c">C</a></body></html>`)) //nolint:errcheck
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>C</body></html>`)) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := NewHTTPFetcher(server.Client(), WithFetchTimeout(100*time.Millisecond))
	spider, _ := NewSpider(fetcher, WithMaxDepth(1), WithMaxPages(3))

	urls := pageURLs(t, spider, server.URL+"/a")
	want := []string{server.URL + "/a", server.URL + "/c"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("pages = %v, want %v", urls, want)
	}
}

func TestSpiderDelay(t *testing.T) {
	t.Parallel()

	links := map[string][]string{
		"http://site.test/":   {"/p1", "/p2"},
		"http://site.test/p1": nil,
		"http://site.test/p2": nil,
	}
	spider, _ := NewSpider(newGraphFetcher(links), WithDelay(30*time.Millisecond))

	start := time.Now()
	urls := pageURLs(t, spider, "http://site.test/")
	elapsed := time.Since(start)

	if len(urls) != 3 {
		t.Fatalf("expected 3 pages, got %v", urls)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("expected fetches to be spaced out, took %v", elapsed)
	}
}
