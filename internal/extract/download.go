package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/owlpair/internal/metrics"
)

// maxImageSize bounds the bytes stored per image.
const maxImageSize = 20 * 1024 * 1024

// downloader stores images in a cache directory.
type downloader struct {
	client  *http.Client
	dir     string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// download returns the local path of imageURL, fetching it when it is not
// cached yet. Any failure yields "" and leaves no file behind.
func (d *downloader) download(ctx context.Context, imageURL string) string {
	target := filepath.Join(d.dir, CacheFileName(imageURL))
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		d.metrics.ImageDownloaded()
		return target
	}

	if err := d.fetch(ctx, imageURL, target); err != nil {
		d.logger.Debug("image download failed", "url", imageURL, "error", err)
		d.metrics.ImageFailed()
		return ""
	}
	d.metrics.ImageDownloaded()
	return target
}

func (d *downloader) fetch(ctx context.Context, imageURL, target string) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image") {
		return fmt.Errorf("unexpected content type %q", ct)
	}

	// Write to a temporary file first so that a concurrent reader never
	// sees a partial image under the final name.
	tmp, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // removing a renamed file fails harmlessly

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageSize))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("empty image body")
	}
	return os.Rename(tmpName, target)
}
