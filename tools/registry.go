package tools

import (
	"github.com/superlion8/lookbook/models"
)

// GenerateFashionImageTool returns the declaration for image generation.
func GenerateFashionImageTool() Tool {
	return Tool{
		Declaration: models.FunctionDeclaration{
			Name:        "generate_fashion_image",
			DisplayName: "Generating image",
			Description: "Generate a fashion-marketing image from a text brief. Use for new looks, campaign visuals, and product mockups.",
			Parameters: models.Parameters{
				Type: "object",
				Properties: map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Detailed visual brief: garments, model, setting, lighting, composition",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Optional style direction, e.g. 'editorial', 'streetwear lookbook', 'studio e-commerce'",
					},
				},
				Required: []string{"prompt"},
			},
		},
		Run: GenerateFashionImage,
	}
}

// ChangeOutfitTool returns the declaration for outfit editing.
func ChangeOutfitTool() Tool {
	return Tool{
		Declaration: models.FunctionDeclaration{
			Name:        "change_outfit",
			DisplayName: "Changing outfit",
			Description: "Edit an existing image so the subject wears a different outfit. Reference the image by its id from the image registry.",
			Parameters: models.Parameters{
				Type: "object",
				Properties: map[string]any{
					"image": map[string]any{
						"type":        "string",
						"description": "Reference to the source image (registry id, URL, or filename)",
					},
					"outfit_description": map[string]any{
						"type":        "string",
						"description": "The outfit to dress the subject in",
					},
				},
				Required: []string{"image", "outfit_description"},
			},
		},
		Run: ChangeOutfit,
	}
}

// AnalyzeImageTool returns the declaration for image analysis.
func AnalyzeImageTool() Tool {
	return Tool{
		Declaration: models.FunctionDeclaration{
			Name:        "analyze_image",
			DisplayName: "Analyzing image",
			Description: "Describe an image: garments, colors, fabrics, fit, and mood. Reference the image by its id from the image registry.",
			Parameters: models.Parameters{
				Type: "object",
				Properties: map[string]any{
					"image": map[string]any{
						"type":        "string",
						"description": "Reference to the image (registry id, URL, or filename)",
					},
					"prompt": map[string]any{
						"type":        "string",
						"description": "What to analyze. Default: a detailed garment-level description",
					},
				},
				Required: []string{"image"},
			},
		},
		Run: AnalyzeImage,
	}
}

// ScrapeProductPageTool returns the declaration for web scraping.
func ScrapeProductPageTool() Tool {
	return Tool{
		Declaration: models.FunctionDeclaration{
			Name:        "scrape_product_page",
			DisplayName: "Reading page",
			Description: "Fetch a product or campaign page and extract its readable content.",
			Parameters: models.Parameters{
				Type: "object",
				Properties: map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "HTTP or HTTPS URL to fetch",
					},
					"max_chars": map[string]any{
						"type":        "integer",
						"description": "Maximum characters to return (default 8000)",
					},
				},
				Required: []string{"url"},
			},
		},
		Run: ScrapeProductPage,
	}
}

// DefaultTools returns the standard capability set for lookbook.
func DefaultTools() []Tool {
	return []Tool{
		GenerateFashionImageTool(),
		ChangeOutfitTool(),
		AnalyzeImageTool(),
		ScrapeProductPageTool(),
	}
}
