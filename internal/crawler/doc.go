// Package crawler provides breadth-first web crawling for the extraction
// pipeline.
//
// # Components
//
//   - Fetcher: a single bounded-timeout GET that only returns HTML bodies
//   - Spider: depth- and count-bounded BFS over a Fetcher with
//     include/exclude regular expressions and bounded concurrent fetches
//   - Parser: HTML parser that extracts the title and outgoing links
//
// # Traversal
//
// The queue is FIFO. Each popped entry is skipped when its URL was already
// visited, when it is deeper than the maximum depth or when it fails the
// URL patterns. Accepted entries are marked visited before they are fetched,
// so a URL is fetched at most once per crawl. Fetches are issued in waves of
// at most Concurrency entries; results are applied in queue order, so the
// output order does not depend on network timing.
//
// Fetch failures are never errors: a timeout, a non-2xx status or a
// non-HTML response produces no page and the crawl carries on.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(httpClient)
//	spider, err := crawler.NewSpider(fetcher, crawler.WithMaxDepth(1), crawler.WithMaxPages(20))
//	pages, err := spider.Crawl(ctx, "https://example.com/docs/")
package crawler
