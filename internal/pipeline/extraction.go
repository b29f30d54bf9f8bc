package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/owlpair/internal/config"
	"github.com/nao1215/owlpair/internal/crawler"
	"github.com/nao1215/owlpair/internal/extract"
)

// ExtractionPipeline crawls a seed, extracts every page and joins the
// results into one composite document.
type ExtractionPipeline struct {
	fetcher    crawler.Fetcher
	extractor  *extract.Extractor
	spiderOpts []crawler.SpiderOption
	sites      *config.File

	defaultDepth    int
	defaultMaxPages int
	includePatterns []string
	excludePatterns []string

	logger *slog.Logger
}

// ExtractionOption configures an ExtractionPipeline.
type ExtractionOption func(*ExtractionPipeline)

// WithSpider adds options for every spider the pipeline creates.
func WithSpider(opts ...crawler.SpiderOption) ExtractionOption {
	return func(p *ExtractionPipeline) {
		p.spiderOpts = append(p.spiderOpts, opts...)
	}
}

// WithSiteConfigs sets per-host overrides for depth, page limit and patterns.
func WithSiteConfigs(file *config.File) ExtractionOption {
	return func(p *ExtractionPipeline) {
		p.sites = file
	}
}

// WithDefaults sets the bounds used when a caller passes a negative value.
func WithDefaults(maxDepth, maxPages int) ExtractionOption {
	return func(p *ExtractionPipeline) {
		if maxDepth >= 0 {
			p.defaultDepth = maxDepth
		}
		if maxPages > 0 {
			p.defaultMaxPages = maxPages
		}
	}
}

// WithPatterns sets the URL filters for hosts without site overrides.
func WithPatterns(include, exclude []string) ExtractionOption {
	return func(p *ExtractionPipeline) {
		p.includePatterns = include
		p.excludePatterns = exclude
	}
}

// WithExtractionLogger sets the logger.
func WithExtractionLogger(logger *slog.Logger) ExtractionOption {
	return func(p *ExtractionPipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewExtractionPipeline creates an ExtractionPipeline.
func NewExtractionPipeline(fetcher crawler.Fetcher, extractor *extract.Extractor, opts ...ExtractionOption) *ExtractionPipeline {
	p := &ExtractionPipeline{
		fetcher:         fetcher,
		extractor:       extractor,
		defaultDepth:    config.DefaultCrawlDepth,
		defaultMaxPages: config.DefaultMaxPages,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewJob creates a job for seed. A negative maxDepth or a non-positive
// maxPages falls back to the seed host's site override, then to the
// pipeline defaults. Site patterns replace the pipeline patterns.
func (p *ExtractionPipeline) NewJob(seed string, maxDepth, maxPages int) *Job {
	site := p.sites.SiteConfigForURL(seed)

	if maxDepth < 0 {
		maxDepth = p.defaultDepth
		if site.Depth > 0 {
			maxDepth = site.Depth
		}
	}
	if maxPages <= 0 {
		maxPages = p.defaultMaxPages
		if site.MaxPages > 0 {
			maxPages = site.MaxPages
		}
	}

	job := NewJob(seed, maxDepth, maxPages)
	job.IncludePatterns = p.includePatterns
	job.ExcludePatterns = p.excludePatterns
	if len(site.IncludePatterns) > 0 {
		job.IncludePatterns = site.IncludePatterns
	}
	if len(site.ExcludePatterns) > 0 {
		job.ExcludePatterns = site.ExcludePatterns
	}
	return job
}

// Build creates a fresh step pipeline.
func (p *ExtractionPipeline) Build() *Pipeline {
	pl := New(WithLogger(p.logger))
	pl.AddSteps(
		NewCrawlStep(p.fetcher, WithSpiderOptions(p.spiderOpts...), WithCrawlLogger(p.logger)),
		NewExtractStep(p.extractor, p.logger),
		NewAssembleStep(p.extractor),
	)
	return pl
}

// Run executes job. When the context ends early the pages crawled so far
// are still assembled into job.Content and the context error is returned.
func (p *ExtractionPipeline) Run(ctx context.Context, job *Job) error {
	err := p.Build().Execute(ctx, job)
	if job.TimedOut {
		if job.Content == "" {
			assemble(job, p.extractor)
		}
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// CrawlAndExtract crawls seed up to maxDepth link hops and maxPages pages
// and returns the page documents joined by DocumentSeparator.
func (p *ExtractionPipeline) CrawlAndExtract(ctx context.Context, seed string, maxDepth, maxPages int) (string, error) {
	job := p.NewJob(seed, maxDepth, maxPages)
	err := p.Run(ctx, job)
	return job.Content, err
}
