package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/owlpair/internal/metrics"
	"github.com/nao1215/owlpair/internal/model"
)

// Extractor renders crawled pages into text documents.
type Extractor struct {
	client          *http.Client
	imageDir        string
	captioner       Captioner
	prompt          string
	maxImages       int
	concurrency     int
	downloadTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Recorder
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient sets the client used for image downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithCaptioner sets the image captioner. Without one, images are
// downloaded but never captioned.
func WithCaptioner(c Captioner) Option {
	return func(e *Extractor) {
		e.captioner = c
	}
}

// WithCaptionPrompt overrides DefaultCaptionPrompt.
func WithCaptionPrompt(prompt string) Option {
	return func(e *Extractor) {
		if prompt != "" {
			e.prompt = prompt
		}
	}
}

// WithMaxImages caps how many downloaded images per page are captioned.
func WithMaxImages(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.maxImages = n
		}
	}
}

// WithConcurrency bounds concurrent image downloads.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithDownloadTimeout bounds each image download.
func WithDownloadTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.downloadTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// NewExtractor creates an Extractor storing images in imageDir.
// The directory is created if needed.
func NewExtractor(imageDir string, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		client:          http.DefaultClient,
		imageDir:        imageDir,
		prompt:          DefaultCaptionPrompt,
		maxImages:       20,
		concurrency:     8,
		downloadTimeout: 20 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := os.MkdirAll(imageDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return e, nil
}

// Extract renders page as a text document. See Render for the layout.
func (e *Extractor) Extract(ctx context.Context, page *model.Page) (string, error) {
	doc, err := e.ExtractDocument(ctx, page)
	if err != nil {
		return "", err
	}
	return Render(doc), nil
}

// ExtractText renders the main text of page without touching the network.
func (e *Extractor) ExtractText(page *model.Page) model.PageDocument {
	root, err := html.Parse(strings.NewReader(page.RawHTML))
	if err != nil {
		return model.PageDocument{URL: page.URL, Text: strings.TrimSpace(page.RawHTML)}
	}
	return model.PageDocument{URL: page.URL, Text: FlattenText(MainContent(root))}
}

// ExtractDocument isolates the main content of page, downloads its images
// and captions up to the configured maximum of them.
func (e *Extractor) ExtractDocument(ctx context.Context, page *model.Page) (model.PageDocument, error) {
	result := model.PageDocument{URL: page.URL}

	root, err := html.Parse(strings.NewReader(page.RawHTML))
	if err != nil {
		// x/net/html recovers from almost anything; keep the raw text.
		e.logger.Debug("failed to parse page", "url", page.URL, "error", err)
		result.Text = strings.TrimSpace(page.RawHTML)
		return result, nil
	}

	content := MainContent(root)
	result.Text = FlattenText(content)

	imageURLs := FindImages(content, page.URL)
	paths, err := e.downloadAll(ctx, imageURLs)
	if err != nil {
		return result, err
	}

	captions, err := e.captionAll(ctx, imageURLs, paths)
	if err != nil {
		return result, err
	}
	result.Images = captions

	e.logger.Debug("extracted page",
		"url", page.URL,
		"text_chars", len(result.Text),
		"images_found", len(imageURLs),
		"captions", len(captions),
	)
	return result, nil
}

// downloadAll downloads the images concurrently and returns their local
// paths in input order; failed downloads leave an empty entry.
func (e *Extractor) downloadAll(ctx context.Context, imageURLs []string) ([]string, error) {
	paths := make([]string, len(imageURLs))
	if len(imageURLs) == 0 {
		return paths, nil
	}

	d := &downloader{
		client:  e.client,
		dir:     e.imageDir,
		timeout: e.downloadTimeout,
		logger:  e.logger,
		metrics: e.metrics,
	}

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, u := range imageURLs {
		g.Go(func() error {
			paths[i] = d.download(ctx, u)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // download never returns an error

	return paths, ctx.Err()
}

// captionAll captions the first maxImages successful downloads.
func (e *Extractor) captionAll(ctx context.Context, imageURLs, paths []string) ([]model.ImageCaption, error) {
	if e.captioner == nil {
		return nil, nil
	}

	var captions []model.ImageCaption
	attempted := 0
	for i, p := range paths {
		if p == "" {
			continue
		}
		if attempted >= e.maxImages {
			break
		}
		attempted++

		text, err := e.captioner.Caption(ctx, p, e.prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to caption %s: %w", imageURLs[i], err)
		}
		c := model.ImageCaption{LocalPath: p, SourceURL: imageURLs[i], Caption: strings.TrimSpace(text)}
		kept := c.Keep()
		e.metrics.Caption(kept)
		if kept {
			captions = append(captions, c)
		}
	}
	return captions, nil
}

// Render lays out a page document: a "### <url>" header, a blank line, the
// main text, a blank line and the kept images as "![img](path)\n*caption*"
// separated by blank lines.
func Render(doc model.PageDocument) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(doc.URL)
	b.WriteString("\n\n")
	b.WriteString(doc.Text)
	b.WriteString("\n\n")

	parts := make([]string, 0, len(doc.Images))
	for _, img := range doc.Images {
		parts = append(parts, fmt.Sprintf("![img](%s)\n*%s*", img.LocalPath, img.Caption))
	}
	b.WriteString(strings.Join(parts, "\n\n"))
	return b.String()
}
