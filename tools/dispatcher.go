// Package tools implements the capabilities the agent can call and the
// dispatcher that executes them safely. Tools never propagate expected
// failures as errors: validation misses, unknown image references, and
// capability faults all come back as structured failed results so the
// model can react and retry.
package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/refstore"
)

// Reference resolution errors. Both surface as failed tool results, never
// as a crashed run; the distinction tells the model whether to supply a
// reference at all or to pick a different one.
var (
	ErrRefMissing = errors.New("image reference not supplied")
	ErrRefUnknown = errors.New("unknown image reference")
)

// Context carries the per-conversation state a tool executes against.
type Context struct {
	UserID         string
	ConversationID string
	Refs           *refstore.Store
}

// RunFunc is the signature of a tool implementation.
type RunFunc func(ctx context.Context, args map[string]any, tc *Context) (models.ToolResult, error)

// Tool pairs a model-facing declaration with its implementation.
type Tool struct {
	Declaration models.FunctionDeclaration
	Run         RunFunc
}

// Dispatcher validates arguments and executes named tools.
type Dispatcher struct {
	tools  map[string]Tool
	order  []string
	Logger *log.Logger
}

// NewDispatcher creates a dispatcher over the given tool set.
func NewDispatcher(list []Tool) *Dispatcher {
	d := &Dispatcher{
		tools:  make(map[string]Tool, len(list)),
		Logger: log.New(os.Stdout, "[TOOLS] ", log.LstdFlags),
	}
	for _, t := range list {
		if _, dup := d.tools[t.Declaration.Name]; dup {
			continue
		}
		d.tools[t.Declaration.Name] = t
		d.order = append(d.order, t.Declaration.Name)
	}
	return d
}

// Declarations returns the tool schemas in registration order.
func (d *Dispatcher) Declarations() []models.FunctionDeclaration {
	out := make([]models.FunctionDeclaration, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].Declaration)
	}
	return out
}

// DisplayName returns the human-readable name for a tool.
func (d *Dispatcher) DisplayName(name string) string {
	if t, ok := d.tools[name]; ok && t.Declaration.DisplayName != "" {
		return t.Declaration.DisplayName
	}
	return name
}

// Execute runs one named tool. All expected failure modes come back as
// success=false results; a panicking tool is recovered and converted.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, tc *Context) (result models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Printf("tool %s panicked: %v", name, r)
			result = failure(fmt.Sprintf("tool %s failed unexpectedly: %v", name, r))
		}
	}()

	tool, ok := d.tools[name]
	if !ok {
		return failure(fmt.Sprintf("unknown or unavailable tool: %s", name))
	}

	if err := validateArgs(tool.Declaration.Parameters, args); err != nil {
		d.Logger.Printf("tool %s rejected arguments: %v", name, err)
		return failure(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	result, err := tool.Run(ctx, args, tc)
	if err != nil {
		d.Logger.Printf("tool %s failed: %v", name, err)
		return failure(err.Error())
	}

	d.registerImages(name, &result, tc)
	return result
}

// registerImages records every image a tool produced in the reference
// store before the result is returned, so later tool calls in the same
// run can reference it.
func (d *Dispatcher) registerImages(tool string, result *models.ToolResult, tc *Context) {
	if tc == nil || tc.Refs == nil {
		return
	}
	for i := range result.Images {
		img := &result.Images[i]
		if img.ID == "" {
			img.ID = "gen_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		}
		var data []byte
		if img.Data != "" {
			decoded, err := base64.StdEncoding.DecodeString(img.Data)
			if err != nil {
				d.Logger.Printf("tool %s produced undecodable image payload for %s: %v", tool, img.ID, err)
			} else {
				data = decoded
			}
		}
		tc.Refs.Register(refstore.RegisterOpts{
			ID:          img.ID,
			Data:        data,
			URL:         img.URL,
			MIMEType:    img.MIMEType,
			Kind:        refstore.KindGenerated,
			Description: "generated by " + tool,
		})
	}
}

// resolveImage resolves an image-bearing argument through the reference
// store, distinguishing a missing reference from an unknown one.
func resolveImage(tc *Context, ref string) (*refstore.StoredImage, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, ErrRefMissing
	}
	if tc == nil || tc.Refs == nil {
		return nil, fmt.Errorf("%w: %s", ErrRefUnknown, ref)
	}
	img, ok := tc.Refs.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefUnknown, ref)
	}
	return img, nil
}

func failure(message string) models.ToolResult {
	return models.ToolResult{Success: false, Message: message, ShouldContinue: true}
}

// validateArgs checks the arguments against the tool's JSON schema:
// required properties must be present, and present properties must match
// their declared primitive type.
func validateArgs(schema models.Parameters, args map[string]any) error {
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("missing required argument %q", req)
		}
	}

	for key, value := range args {
		propAny, declared := schema.Properties[key]
		if !declared {
			// Unknown extras are tolerated; providers occasionally add
			// fields the schema never asked for.
			continue
		}
		prop, ok := propAny.(map[string]any)
		if !ok {
			continue
		}
		declaredType, _ := prop["type"].(string)
		if declaredType == "" || value == nil {
			continue
		}
		if err := checkType(key, declaredType, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key, declaredType string, value any) error {
	switch declaredType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string, got %T", key, value)
		}
	case "integer", "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("argument %q must be a number, got %T", key, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean, got %T", key, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("argument %q must be an array, got %T", key, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object, got %T", key, value)
		}
	}
	return nil
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg extracts an optional integer argument. JSON numbers arrive as
// float64 from the provider.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
