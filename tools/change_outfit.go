package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/refstore"
)

// ChangeOutfit edits a referenced image so the subject wears a different
// outfit. On success the result carries the edited image with
// ShouldContinue=false, so the run ends without another model call.
func ChangeOutfit(ctx context.Context, args map[string]any, tc *Context) (models.ToolResult, error) {
	outfit := strings.TrimSpace(stringArg(args, "outfit_description"))
	if outfit == "" {
		return models.ToolResult{Success: false, Message: "outfit_description is required", ShouldContinue: true}, nil
	}

	source, err := resolveImage(tc, stringArg(args, "image"))
	if err != nil {
		return models.ToolResult{Success: false, Message: err.Error(), ShouldContinue: true}, nil
	}

	seed, seedMIME, err := imagePayload(source)
	if err != nil {
		return models.ToolResult{Success: false, Message: fmt.Sprintf("could not load image %s: %v", source.CanonicalID, err), ShouldContinue: true}, nil
	}

	prompt := fmt.Sprintf("Edit this fashion photo so the subject is wearing: %s. Keep the pose, lighting, and background unchanged.", outfit)
	data, mimeType, err := generateImageFunc(ctx, prompt, seed, seedMIME)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("outfit change failed: %w", err)
	}

	return models.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Changed the outfit on %s to: %s", source.CanonicalID, outfit),
		Images: []models.ToolImage{{
			Data:     base64.StdEncoding.EncodeToString(data),
			MIMEType: mimeType,
		}},
		ShouldContinue: false,
	}, nil
}

// httpGet is a package-level var so tests can mock payload downloads.
var httpGet = defaultHTTPGet

func defaultHTTPGet(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "lookbook/1.0")
	return http.DefaultClient.Do(req)
}

// imagePayload returns the raw bytes for a stored image, downloading
// from its durable URL when the bytes aged out of memory.
func imagePayload(img *refstore.StoredImage) ([]byte, string, error) {
	if len(img.Data) > 0 {
		return img.Data, img.MIMEType, nil
	}
	if img.URL == "" {
		return nil, "", fmt.Errorf("no payload or URL available")
	}

	resp, err := httpGet(img.URL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, img.URL)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, "", err
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	return data, mimeType, nil
}
