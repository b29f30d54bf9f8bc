package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nao1215/owlpair/internal/metrics"
	"github.com/nao1215/owlpair/internal/model"
)

// Spider crawls web pages breadth-first from a seed URL.
// A Spider holds configuration only; every Crawl call owns its own queue,
// visited set and result list, so one Spider may run several crawls at once.
type Spider struct {
	fetcher Fetcher

	// maxDepth limits how far from the seed to go.
	// 0 means only the seed page, 1 adds the pages it links to, etc.
	maxDepth int

	// maxPages limits the number of pages returned.
	maxPages int

	// concurrency bounds the number of in-flight fetches.
	concurrency int64

	// delay is the minimum spacing between fetch starts. Zero disables it.
	delay time.Duration

	includePatterns []string
	excludePatterns []string
	matcher         *Matcher

	// sameHostOnly restricts the crawl to the seed's host.
	sameHostOnly bool

	logger  *slog.Logger
	metrics *metrics.Recorder
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to collect.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithConcurrency sets how many fetches may be in flight at once.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.concurrency = int64(n)
		}
	}
}

// WithDelay sets the minimum spacing between fetch starts.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithIncludePatterns sets regular expressions of which a URL must match
// at least one to be fetched.
func WithIncludePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.includePatterns = patterns
	}
}

// WithExcludePatterns sets regular expressions of URLs never to fetch.
func WithExcludePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.excludePatterns = patterns
	}
}

// WithSameHostOnly keeps the crawl on the seed's host.
func WithSameHostOnly(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.sameHostOnly = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) SpiderOption {
	return func(s *Spider) {
		s.metrics = m
	}
}

// NewSpider creates a Spider on top of fetcher.
// It fails when an include or exclude pattern does not compile.
func NewSpider(fetcher Fetcher, opts ...SpiderOption) (*Spider, error) {
	s := &Spider{
		fetcher:     fetcher,
		maxDepth:    1,
		maxPages:    20,
		concurrency: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	matcher, err := NewMatcher(s.includePatterns, s.excludePatterns)
	if err != nil {
		return nil, err
	}
	s.matcher = matcher
	return s, nil
}

// Stats summarizes one crawl.
type Stats struct {
	// Fetched is the number of fetches issued.
	Fetched int

	// Pages is the number of pages returned.
	Pages int

	// Empty is the number of fetches that produced no HTML.
	Empty int

	// Skipped counts queue entries that were never fetched, by reason.
	Skipped map[string]int
}

// Crawl starts at seed and returns the collected pages in BFS order.
// On cancellation it returns the pages collected so far together with
// the context error.
func (s *Spider) Crawl(ctx context.Context, seed string) ([]*model.Page, error) {
	pages, _, err := s.CrawlWithStats(ctx, seed)
	return pages, err
}

// CrawlWithStats is Crawl plus a summary of what happened.
func (s *Spider) CrawlWithStats(ctx context.Context, seed string) ([]*model.Page, Stats, error) {
	stats := Stats{Skipped: make(map[string]int)}

	start, err := url.Parse(seed)
	if err != nil || start.Host == "" || (start.Scheme != "http" && start.Scheme != "https") {
		return nil, stats, fmt.Errorf("invalid seed URL %q: must be an absolute http(s) URL", seed)
	}

	var limiter *rate.Limiter
	if s.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
	}
	sem := semaphore.NewWeighted(s.concurrency)

	pages := make([]*model.Page, 0)
	visited := make(map[string]bool)
	queue := []model.QueueEntry{{URL: normalizeURL(seed), Depth: 0}}

	for len(queue) > 0 && len(pages) < s.maxPages {
		if err := ctx.Err(); err != nil {
			return pages, s.finish(stats, pages), err
		}

		// Pop entries until the wave is full: a wave never holds more
		// entries than the remaining page quota, so a crawl never fetches
		// pages it would have to throw away.
		capacity := min(int(s.concurrency), s.maxPages-len(pages))
		wave := make([]model.QueueEntry, 0, capacity)
		for len(queue) > 0 && len(wave) < capacity {
			entry := queue[0]
			queue = queue[1:]

			if reason := s.skipReason(entry, visited); reason != "" {
				stats.Skipped[reason]++
				s.metrics.PageSkipped(reason)
				continue
			}
			visited[entry.URL] = true
			wave = append(wave, entry)
		}
		if len(wave) == 0 {
			continue
		}

		bodies, err := s.fetchWave(ctx, wave, sem, limiter)
		stats.Fetched += len(wave)
		if err != nil {
			return pages, s.finish(stats, pages), err
		}

		for i, entry := range wave {
			body := bodies[i]
			if body == "" {
				stats.Empty++
				s.metrics.PageSkipped(metrics.SkipEmpty)
				continue
			}
			if len(pages) >= s.maxPages {
				break
			}

			pages = append(pages, model.NewPage(entry.URL, entry.Depth, body))
			s.logger.Debug("crawled page", "url", entry.URL, "depth", entry.Depth, "bytes", len(body))

			if entry.Depth >= s.maxDepth {
				continue
			}
			for _, link := range s.extractLinks(entry.URL, body) {
				if s.sameHostOnly && !sameHost(start, link) {
					continue
				}
				queue = append(queue, model.QueueEntry{URL: link, Depth: entry.Depth + 1})
			}
		}
	}

	return pages, s.finish(stats, pages), nil
}

// skipReason returns why entry must not be fetched, or "" to fetch it.
func (s *Spider) skipReason(entry model.QueueEntry, visited map[string]bool) string {
	switch {
	case visited[entry.URL]:
		return metrics.SkipVisited
	case entry.Depth > s.maxDepth:
		return metrics.SkipDepth
	case !s.matcher.Allow(entry.URL):
		return metrics.SkipPattern
	default:
		return ""
	}
}

// fetchWave fetches every entry concurrently, bounded by sem, and returns
// the bodies in wave order.
func (s *Spider) fetchWave(ctx context.Context, wave []model.QueueEntry, sem *semaphore.Weighted, limiter *rate.Limiter) ([]string, error) {
	bodies := make([]string, len(wave))
	var wg sync.WaitGroup
	var acquireErr error

	for i, entry := range wave {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			started := time.Now()
			bodies[i] = s.fetcher.Fetch(ctx, entry.URL)
			if bodies[i] != "" {
				s.metrics.PageFetched(time.Since(started))
			}
		})
	}
	wg.Wait()

	return bodies, acquireErr
}

// extractLinks returns the absolute http(s) links of a page.
// Unparsable HTML yields no links.
func (s *Spider) extractLinks(pageURL, body string) []string {
	parser, err := NewParser(pageURL)
	if err != nil {
		return nil
	}
	result, err := parser.Parse(strings.NewReader(body))
	if err != nil {
		s.logger.Debug("failed to parse page", "url", pageURL, "error", err)
		return nil
	}
	links := make([]string, 0, len(result.Links))
	for _, link := range result.Links {
		links = append(links, normalizeURL(link))
	}
	return links
}

func (s *Spider) finish(stats Stats, pages []*model.Page) Stats {
	stats.Pages = len(pages)
	return stats
}

// normalizeURL normalizes a URL for deduplication: the fragment is dropped,
// scheme and host are lower-cased and an empty path becomes "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// sameHost reports whether target is on the same host as base.
func sameHost(base *url.URL, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}
