package models

import "fmt"

// FunctionDeclaration describes one callable tool to the model.
type FunctionDeclaration struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName,omitempty"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters defines the JSON Schema for function parameters.
type Parameters struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// ToolImage is one image produced or referenced by a tool. Either URL or
// Data is set; Data is base64-encoded payload that has not yet been
// persisted.
type ToolImage struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// ToolResult is the normalized outcome of a tool execution. A false
// Success is a recoverable failure fed back to the model, never a crash.
// ShouldContinue=false together with images is a designed early exit:
// the loop stops with this result as the final answer.
type ToolResult struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message,omitempty"`
	Images         []ToolImage `json:"images,omitempty"`
	ShouldContinue bool        `json:"shouldContinue"`
}

// leanPayloadLimit is the size above which string fields in a tool
// result are redacted before re-entering model context.
const leanPayloadLimit = 2048

// Lean returns the tool result as a map with large binary payloads
// replaced by size markers, suitable for the audit log and for feeding
// back to the model without blowing the token budget.
func (r ToolResult) Lean() map[string]any {
	out := map[string]any{
		"success": r.Success,
		"message": r.Message,
	}
	if len(r.Images) > 0 {
		images := make([]map[string]any, 0, len(r.Images))
		for _, img := range r.Images {
			entry := map[string]any{"id": img.ID}
			if img.URL != "" {
				entry["url"] = img.URL
			}
			if img.Data != "" {
				entry["data"] = fmt.Sprintf("<%d bytes redacted>", len(img.Data))
			}
			images = append(images, entry)
		}
		out["images"] = images
	}
	return out
}

// RedactLarge replaces oversized string values in a tool result map with
// size markers. Nested maps are walked; everything else passes through.
func RedactLarge(result map[string]any) map[string]any {
	if result == nil {
		return nil
	}
	out := make(map[string]any, len(result))
	for k, v := range result {
		switch val := v.(type) {
		case string:
			if len(val) > leanPayloadLimit {
				out[k] = fmt.Sprintf("<%d bytes redacted>", len(val))
			} else {
				out[k] = val
			}
		case map[string]any:
			out[k] = RedactLarge(val)
		default:
			out[k] = v
		}
	}
	return out
}
