// Package metrics records Prometheus metrics for crawls, extractions and
// dialogue runs. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "owlpair"

// Skip reasons used as label values of pages_skipped_total.
const (
	SkipVisited = "visited"
	SkipDepth   = "depth"
	SkipPattern = "pattern"
	SkipEmpty   = "empty"
)

// Recorder holds the metric collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	pagesFetched     prometheus.Counter
	pagesSkipped     *prometheus.CounterVec
	fetchDuration    prometheus.Histogram
	imagesDownloaded prometheus.Counter
	imagesFailed     prometheus.Counter
	captions         *prometheus.CounterVec
	rounds           prometheus.Counter
	tokens           *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		pagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of HTML pages fetched by the crawler",
		}),
		pagesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_skipped_total",
			Help:      "Total number of crawl queue entries skipped",
		}, []string{"reason"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		imagesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "images_downloaded_total",
			Help:      "Total number of images stored in the cache",
		}),
		imagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "images_failed_total",
			Help:      "Total number of image downloads that failed",
		}),
		captions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captions_total",
			Help:      "Total number of image captions by outcome",
		}, []string{"outcome"}), // outcome: kept, dropped
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dialogue_rounds_total",
			Help:      "Total number of dialogue rounds executed",
		}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_total",
			Help:      "Total number of model tokens consumed",
		}, []string{"type"}), // type: prompt, completion
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls made by agents",
		}, []string{"tool", "status"}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PageFetched records a fetched HTML page and the time the fetch took.
func (r *Recorder) PageFetched(d time.Duration) {
	if r == nil {
		return
	}
	r.pagesFetched.Inc()
	r.fetchDuration.Observe(d.Seconds())
}

// PageSkipped records a queue entry that was not turned into a page.
func (r *Recorder) PageSkipped(reason string) {
	if r == nil {
		return
	}
	r.pagesSkipped.WithLabelValues(reason).Inc()
}

// ImageDownloaded records an image stored in (or reused from) the cache.
func (r *Recorder) ImageDownloaded() {
	if r == nil {
		return
	}
	r.imagesDownloaded.Inc()
}

// ImageFailed records a failed image download.
func (r *Recorder) ImageFailed() {
	if r == nil {
		return
	}
	r.imagesFailed.Inc()
}

// Caption records a caption and whether it was kept.
func (r *Recorder) Caption(kept bool) {
	if r == nil {
		return
	}
	outcome := "dropped"
	if kept {
		outcome = "kept"
	}
	r.captions.WithLabelValues(outcome).Inc()
}

// Round records one dialogue round.
func (r *Recorder) Round() {
	if r == nil {
		return
	}
	r.rounds.Inc()
}

// Tokens records prompt and completion tokens separately.
func (r *Recorder) Tokens(prompt, completion int) {
	if r == nil {
		return
	}
	r.tokens.WithLabelValues("prompt").Add(float64(prompt))
	r.tokens.WithLabelValues("completion").Add(float64(completion))
}

// ToolCall records a tool invocation.
func (r *Recorder) ToolCall(tool string, failed bool) {
	if r == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	r.toolCalls.WithLabelValues(tool, status).Inc()
}
