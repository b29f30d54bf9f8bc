package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/owlpair/internal/model"
)

// DefaultCaptionPrompt asks for the text in an image plus a one-sentence summary.
const DefaultCaptionPrompt = "Read any text in the image and describe its key information in one sentence."

// Captioner describes a locally stored image.
// An empty caption, or the word "none", means there is nothing to say.
type Captioner interface {
	Caption(ctx context.Context, localPath, prompt string) (string, error)
}

// CaptionerFunc adapts a function to the Captioner interface.
type CaptionerFunc func(ctx context.Context, localPath, prompt string) (string, error)

// Caption calls f.
func (f CaptionerFunc) Caption(ctx context.Context, localPath, prompt string) (string, error) {
	return f(ctx, localPath, prompt)
}

// ChainCaptioner asks each captioner in turn and returns the first caption
// worth keeping. An error from any captioner stops the chain.
type ChainCaptioner []Captioner

// Caption implements Captioner.
func (c ChainCaptioner) Caption(ctx context.Context, localPath, prompt string) (string, error) {
	for _, captioner := range c {
		if captioner == nil {
			continue
		}
		text, err := captioner.Caption(ctx, localPath, prompt)
		if err != nil {
			return "", err
		}
		if keepCaption(text) {
			return text, nil
		}
	}
	return "", nil
}

// exifCaptionTags are the EXIF tags that carry a human-written description.
var exifCaptionTags = []string{"ImageDescription", "XPTitle", "XPComment", "UserComment"}

// MetadataCaptioner captions images from their embedded EXIF description.
// Images without EXIF data get an empty caption.
type MetadataCaptioner struct{}

// Caption implements Captioner. The prompt is ignored.
func (MetadataCaptioner) Caption(_ context.Context, localPath, _ string) (string, error) {
	data, err := os.ReadFile(localPath) //nolint:gosec // path comes from the image cache
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	// Missing or corrupt metadata is not a captioning failure.
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return "", nil //nolint:nilerr
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return "", nil //nolint:nilerr
	}

	values := make(map[string]string, len(entries))
	for _, entry := range entries {
		values[entry.TagName] = cleanExifText(entry.Formatted)
	}
	for _, tag := range exifCaptionTags {
		if text := values[tag]; text != "" {
			return text, nil
		}
	}
	return "", nil
}

// cleanExifText strips NUL padding, brackets and charset prefixes that
// EXIF string formatting leaves behind.
func cleanExifText(s string) string {
	s = strings.Trim(s, "\x00 []\"")
	s = strings.TrimPrefix(s, "ASCII")
	s = strings.TrimPrefix(s, "UNICODE")
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func keepCaption(text string) bool {
	return model.ImageCaption{Caption: text}.Keep()
}
