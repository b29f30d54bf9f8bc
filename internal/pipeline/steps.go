package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/owlpair/internal/crawler"
	"github.com/nao1215/owlpair/internal/extract"
)

// CrawlStep collects the pages reachable from the job seed.
type CrawlStep struct {
	fetcher crawler.Fetcher

	// spiderOpts are applied before the job's own bounds and patterns.
	spiderOpts []crawler.SpiderOption

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithSpiderOptions adds options for every spider the step creates.
func WithSpiderOptions(opts ...crawler.SpiderOption) CrawlStepOption {
	return func(s *CrawlStep) {
		s.spiderOpts = append(s.spiderOpts, opts...)
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step fetching through fetcher.
func NewCrawlStep(fetcher crawler.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls job.Seed. Cancellation keeps the pages collected so far and
// marks the job TimedOut; it is not a step failure.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	opts := make([]crawler.SpiderOption, 0, len(s.spiderOpts)+5)
	opts = append(opts, s.spiderOpts...)
	opts = append(opts,
		crawler.WithMaxDepth(job.MaxDepth),
		crawler.WithMaxPages(job.MaxPages),
		crawler.WithIncludePatterns(job.IncludePatterns),
		crawler.WithExcludePatterns(job.ExcludePatterns),
		crawler.WithLogger(s.logger),
	)

	spider, err := crawler.NewSpider(s.fetcher, opts...)
	if err != nil {
		return fmt.Errorf("failed to create spider: %w", err)
	}

	pages, stats, err := spider.CrawlWithStats(ctx, job.Seed)
	job.Pages = pages
	job.Stats = stats
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			job.TimedOut = true
			return nil
		}
		return err
	}

	s.logger.Info("crawl finished",
		"seed", job.Seed,
		"pages", len(pages),
		"fetched", stats.Fetched,
	)
	return nil
}

// ExtractStep renders every crawled page.
type ExtractStep struct {
	extractor *extract.Extractor
	logger    *slog.Logger
}

// NewExtractStep creates an extract step.
func NewExtractStep(extractor *extract.Extractor, logger *slog.Logger) *ExtractStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStep{extractor: extractor, logger: logger}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do extracts the pages that have no document yet, in crawl order.
// Captioner errors stop the step.
func (s *ExtractStep) Do(ctx context.Context, job *Job) error {
	for _, page := range job.Pages[len(job.Documents):] {
		if ctx.Err() != nil {
			job.TimedOut = true
			return nil
		}
		doc, err := s.extractor.ExtractDocument(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				job.TimedOut = true
				return nil
			}
			return fmt.Errorf("failed to extract %s: %w", page.URL, err)
		}
		job.Documents = append(job.Documents, doc)
	}
	return nil
}

// AssembleStep joins the page documents into the composite document.
type AssembleStep struct {
	extractor *extract.Extractor
}

// NewAssembleStep creates an assemble step. The extractor renders the text
// of pages that were crawled but never extracted; it may be nil.
func NewAssembleStep(extractor *extract.Extractor) *AssembleStep {
	return &AssembleStep{extractor: extractor}
}

// Name returns the step name.
func (s *AssembleStep) Name() string {
	return "assemble"
}

// Do sets job.Content. It runs even on a cancelled context.
func (s *AssembleStep) Do(_ context.Context, job *Job) error {
	assemble(job, s.extractor)
	return nil
}

// assemble fills in text-only documents for unextracted pages and joins
// every document with DocumentSeparator.
func assemble(job *Job, extractor *extract.Extractor) {
	if extractor != nil {
		for _, page := range job.Pages[len(job.Documents):] {
			job.Documents = append(job.Documents, extractor.ExtractText(page))
		}
	}

	parts := make([]string, 0, len(job.Documents))
	for _, doc := range job.Documents {
		parts = append(parts, extract.Render(doc))
	}
	job.Content = strings.Join(parts, DocumentSeparator)
}

var (
	_ Step = (*CrawlStep)(nil)
	_ Step = (*ExtractStep)(nil)
	_ Step = (*AssembleStep)(nil)
)
