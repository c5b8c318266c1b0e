// Package gemini adapts the provider-agnostic model contract to the
// Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log"
	"os"

	"google.golang.org/genai"

	"github.com/superlion8/lookbook/models"
)

// DefaultModel is the reasoning model driving the agent loop.
const DefaultModel = "gemini-2.5-flash"

// Provider implements the model contract on top of the Gemini SDK.
type Provider struct {
	Model  string
	Logger *log.Logger

	// newClient is swapped out in tests.
	newClient func(ctx context.Context) (*genai.Client, error)
}

// NewProvider creates a provider for the given model name. An empty
// name selects DefaultModel. The API key comes from the environment via
// the SDK (GEMINI_API_KEY / GOOGLE_API_KEY).
func NewProvider(model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		Model:  model,
		Logger: log.New(os.Stdout, "[GEMINI] ", log.LstdFlags),
		newClient: func(ctx context.Context) (*genai.Client, error) {
			return genai.NewClient(ctx, nil)
		},
	}
}

// Generate performs one model call, including tool declarations and the
// system instruction, and converts the reply back to neutral parts.
func (p *Provider) Generate(ctx context.Context, req models.ModelRequest) (models.ModelResponse, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return models.ModelResponse{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	contents := toContents(req.Messages)
	if len(contents) == 0 {
		return models.ModelResponse{}, fmt.Errorf("cannot call model with no content")
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}

	result, err := client.Models.GenerateContent(ctx, p.Model, contents, config)
	if err != nil {
		return models.ModelResponse{}, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return models.ModelResponse{}, fmt.Errorf("empty response from model")
	}

	return models.ModelResponse{Parts: fromParts(result.Candidates[0].Content.Parts)}, nil
}

// toContents converts neutral messages to the wire form. Thought
// signatures ride along on the exact parts they arrived with; the API
// rejects follow-up calls when they are altered or dropped.
func toContents(messages []models.AgentMessage) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if converted := toPart(part); converted != nil {
				parts = append(parts, converted)
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: string(msg.Role), Parts: parts})
	}
	return contents
}

func toPart(part models.Part) *genai.Part {
	var out *genai.Part
	switch part.Kind() {
	case models.PartText:
		out = &genai.Part{Text: part.Text}
	case models.PartThought:
		out = &genai.Part{Text: part.Thought, Thought: true}
	case models.PartInlineImage:
		out = &genai.Part{InlineData: &genai.Blob{
			MIMEType: part.InlineImage.MIMEType,
			Data:     part.InlineImage.Data,
		}}
	case models.PartToolCall:
		out = &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   part.ToolCall.ID,
			Name: part.ToolCall.Name,
			Args: part.ToolCall.Args,
		}}
	case models.PartToolResult:
		out = &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       part.ToolResponse.ID,
			Name:     part.ToolResponse.Name,
			Response: part.ToolResponse.Response,
		}}
	default:
		return nil
	}
	out.ThoughtSignature = part.Signature
	return out
}

// fromParts converts a reply to neutral parts, carrying signatures back
// verbatim.
func fromParts(parts []*genai.Part) []models.Part {
	var out []models.Part
	for _, part := range parts {
		if part == nil {
			continue
		}
		var converted models.Part
		switch {
		case part.FunctionCall != nil:
			converted = models.ToolCallPart(part.FunctionCall.ID, part.FunctionCall.Name, part.FunctionCall.Args)
		case part.InlineData != nil:
			converted = models.InlineImagePart(part.InlineData.MIMEType, part.InlineData.Data)
		case part.Thought:
			converted = models.ThoughtPart(part.Text)
		case part.Text != "":
			converted = models.TextPart(part.Text)
		default:
			continue
		}
		converted.Signature = part.ThoughtSignature
		out = append(out, converted)
	}
	return out
}

// toDeclarations converts the JSON-schema tool declarations.
func toDeclarations(decls []models.FunctionDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  toSchema(decl.Parameters),
		})
	}
	return out
}

func toSchema(params models.Parameters) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params.Properties)),
		Required:   params.Required,
	}
	for name, propAny := range params.Properties {
		prop, ok := propAny.(map[string]any)
		if !ok {
			continue
		}
		schema.Properties[name] = toPropertySchema(prop)
	}
	return schema
}

func toPropertySchema(prop map[string]any) *genai.Schema {
	out := &genai.Schema{}
	if t, ok := prop["type"].(string); ok {
		out.Type = schemaType(t)
	}
	if desc, ok := prop["description"].(string); ok {
		out.Description = desc
	}
	if items, ok := prop["items"].(map[string]any); ok {
		out.Items = toPropertySchema(items)
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}
