package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	t.Run("counts pages and skips", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.PageFetched(100 * time.Millisecond)
		r.PageFetched(200 * time.Millisecond)
		r.PageSkipped(SkipVisited)
		r.PageSkipped(SkipPattern)
		r.PageSkipped(SkipPattern)

		if got := testutil.ToFloat64(r.pagesFetched); got != 2 {
			t.Errorf("pages fetched = %v, want 2", got)
		}
		if got := testutil.ToFloat64(r.pagesSkipped.WithLabelValues(SkipPattern)); got != 2 {
			t.Errorf("pattern skips = %v, want 2", got)
		}
		if got := testutil.CollectAndCount(r.fetchDuration); got != 1 {
			t.Errorf("expected one histogram, got %d", got)
		}
	})

	t.Run("keeps prompt and completion tokens apart", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.Tokens(10, 3)
		r.Tokens(5, 2)

		if got := testutil.ToFloat64(r.tokens.WithLabelValues("prompt")); got != 15 {
			t.Errorf("prompt tokens = %v, want 15", got)
		}
		if got := testutil.ToFloat64(r.tokens.WithLabelValues("completion")); got != 5 {
			t.Errorf("completion tokens = %v, want 5", got)
		}
	})

	t.Run("captions, images, rounds and tool calls", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.Caption(true)
		r.Caption(false)
		r.ImageDownloaded()
		r.ImageFailed()
		r.Round()
		r.ToolCall("crawl_and_extract", false)
		r.ToolCall("crawl_and_extract", true)

		if got := testutil.ToFloat64(r.captions.WithLabelValues("kept")); got != 1 {
			t.Errorf("kept captions = %v, want 1", got)
		}
		if got := testutil.ToFloat64(r.rounds); got != 1 {
			t.Errorf("rounds = %v, want 1", got)
		}
		if got := testutil.ToFloat64(r.toolCalls.WithLabelValues("crawl_and_extract", "error")); got != 1 {
			t.Errorf("failed tool calls = %v, want 1", got)
		}
	})

	t.Run("nil recorder is a no-op", func(t *testing.T) {
		t.Parallel()

		var r *Recorder
		r.PageFetched(time.Second)
		r.PageSkipped(SkipDepth)
		r.ImageDownloaded()
		r.ImageFailed()
		r.Caption(true)
		r.Round()
		r.Tokens(1, 1)
		r.ToolCall("x", false)
		if r.Registry() != nil {
			t.Error("nil recorder should have no registry")
		}
	})

	t.Run("handler exposes metrics", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.Round()

		rec := httptest.NewRecorder()
		r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if !strings.Contains(rec.Body.String(), "owlpair_dialogue_rounds_total 1") {
			t.Errorf("unexpected metrics output:\n%s", rec.Body.String())
		}
	})
}
