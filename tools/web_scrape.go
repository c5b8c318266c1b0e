package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/superlion8/lookbook/models"
)

const scrapeBodyLimit = 5 * 1024 * 1024

// ScrapeProductPage fetches a product or campaign page and extracts its
// readable content, so the model can pull garment names, materials, and
// brand voice into generated imagery briefs.
func ScrapeProductPage(ctx context.Context, args map[string]any, tc *Context) (models.ToolResult, error) {
	rawURL := strings.TrimSpace(stringArg(args, "url"))
	if rawURL == "" {
		return models.ToolResult{Success: false, Message: "url is required", ShouldContinue: true}, nil
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return models.ToolResult{Success: false, Message: "url must be an HTTP or HTTPS URL", ShouldContinue: true}, nil
	}

	maxChars := intArg(args, "max_chars")
	if maxChars <= 0 {
		maxChars = 8000
	}

	resp, err := httpGet(rawURL)
	if err != nil {
		return models.ToolResult{Success: false, Message: fmt.Sprintf("fetching %s: %v", rawURL, err), ShouldContinue: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ToolResult{Success: false, Message: fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, rawURL), ShouldContinue: true}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, scrapeBodyLimit))
	if err != nil {
		return models.ToolResult{Success: false, Message: fmt.Sprintf("reading %s: %v", rawURL, err), ShouldContinue: true}, nil
	}

	text := extractReadable(body, rawURL)
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars] + "\n...(truncated)"
	}

	return models.ToolResult{
		Success:        true,
		Message:        text,
		ShouldContinue: true,
	}, nil
}

// extractReadable runs readability extraction, falling back to a raw tag
// strip when the page defeats the extractor.
func extractReadable(body []byte, rawURL string) string {
	parsed, _ := url.Parse(rawURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return stripTags(string(body))
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = stripTags(article.Content)
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return text
}

func stripTags(html string) string {
	var out strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			out.WriteRune(' ')
		case !inTag:
			out.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(out.String()), " ")
}
