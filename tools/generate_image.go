package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/superlion8/lookbook/models"
)

const imageModel = "gemini-2.5-flash-image"

// generateImageFunc is a package-level var so tests can mock the model.
var generateImageFunc = defaultGenerateImage

// GenerateFashionImage creates a new marketing image from a text brief.
// The produced image is returned as base64 payload; the dispatcher
// registers it in the reference store before the result leaves the tool
// layer.
func GenerateFashionImage(ctx context.Context, args map[string]any, tc *Context) (models.ToolResult, error) {
	prompt := strings.TrimSpace(stringArg(args, "prompt"))
	if prompt == "" {
		return models.ToolResult{Success: false, Message: "prompt is required", ShouldContinue: true}, nil
	}
	if style := stringArg(args, "style"); style != "" {
		prompt = fmt.Sprintf("%s\n\nVisual style: %s", prompt, style)
	}

	data, mimeType, err := generateImageFunc(ctx, prompt, nil, "")
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("image generation failed: %w", err)
	}

	return models.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Generated a fashion image for: %q", prompt),
		Images: []models.ToolImage{{
			Data:     base64.StdEncoding.EncodeToString(data),
			MIMEType: mimeType,
		}},
		ShouldContinue: false,
	}, nil
}

// defaultGenerateImage calls the Gemini image model. When seed bytes are
// provided the model edits the seed image instead of generating from
// scratch.
func defaultGenerateImage(ctx context.Context, prompt string, seed []byte, seedMIME string) ([]byte, string, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	parts := []*genai.Part{{Text: prompt}}
	if len(seed) > 0 {
		if seedMIME == "" {
			seedMIME = "image/png"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: seedMIME, Data: seed}})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	result, err := client.Models.GenerateContent(ctx, imageModel, contents, nil)
	if err != nil {
		return nil, "", err
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, "", fmt.Errorf("no image generated in response")
	}

	for _, part := range result.Candidates[0].Content.Parts {
		if part.InlineData != nil {
			return part.InlineData.Data, part.InlineData.MIMEType, nil
		}
	}
	return nil, "", fmt.Errorf("no image data found in response")
}
