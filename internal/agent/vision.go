package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/nao1215/owlpair/internal/extract"
)

// maxVisionImageSize bounds the image bytes sent to the vision model.
const maxVisionImageSize = 20 * 1024 * 1024

// VisionCaptioner captions images with a vision-capable chat model.
// The image is inlined as a base64 data URL.
type VisionCaptioner struct {
	client *Client
	model  string
}

// NewVisionCaptioner creates a captioner using modelName.
func NewVisionCaptioner(client *Client, modelName string) *VisionCaptioner {
	return &VisionCaptioner{client: client, model: modelName}
}

// Caption implements extract.Captioner.
func (v *VisionCaptioner) Caption(ctx context.Context, localPath, prompt string) (string, error) {
	data, err := os.ReadFile(localPath) //nolint:gosec // path comes from the image cache
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxVisionImageSize {
		return "", nil
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := v.client.complete(ctx, &chatRequest{
		Model: v.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ extract.Captioner = (*VisionCaptioner)(nil)
