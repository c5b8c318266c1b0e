package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/superlion8/lookbook/models"
)

const visionModel = "gemini-2.0-flash"

// analyzeImageFunc is a package-level var so tests can mock the model.
var analyzeImageFunc = defaultAnalyzeImage

// AnalyzeImage describes a referenced image with a vision model. Used by
// the agent to ground outfit edits and marketing copy in what the source
// photo actually shows.
func AnalyzeImage(ctx context.Context, args map[string]any, tc *Context) (models.ToolResult, error) {
	source, err := resolveImage(tc, stringArg(args, "image"))
	if err != nil {
		return models.ToolResult{Success: false, Message: err.Error(), ShouldContinue: true}, nil
	}

	prompt := strings.TrimSpace(stringArg(args, "prompt"))
	if prompt == "" {
		prompt = "Describe this image in detail: garments, colors, fabrics, fit, styling, and overall mood."
	}

	payload, mimeType, err := imagePayload(source)
	if err != nil {
		return models.ToolResult{Success: false, Message: fmt.Sprintf("could not load image %s: %v", source.CanonicalID, err), ShouldContinue: true}, nil
	}

	analysis, err := analyzeImageFunc(ctx, prompt, payload, mimeType)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("image analysis failed: %w", err)
	}

	return models.ToolResult{
		Success:        true,
		Message:        analysis,
		ShouldContinue: true,
	}, nil
}

func defaultAnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if mimeType == "" {
		mimeType = "image/png"
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}}}

	result, err := client.Models.GenerateContent(ctx, visionModel, contents, nil)
	if err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("no analysis in response")
	}

	var out strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.WriteString(part.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no text in analysis response")
	}
	return out.String(), nil
}
