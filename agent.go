// Package lookbook drives multi-turn, tool-augmented conversations with
// a remote image-capable language model for fashion-marketing work. The
// orchestrator repeatedly calls the model, executes requested tools
// against a per-run reference store, and reports progress through an
// event sink.
package lookbook

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/refstore"
	"github.com/superlion8/lookbook/tools"
)

// DefaultMaxIterations is the hard ceiling on model-call iterations.
// Reaching it is a designed degradation, not an error.
const DefaultMaxIterations = 5

// TruncatedMessage is the synthesized final text when the ceiling hits.
const TruncatedMessage = "I had to stop before finishing: the request needed more steps than one run allows. Here is what I completed so far."

// ModelProvider is the abstract contract with the upstream model
// service. A provider error is fatal to the run; everything below it is
// recoverable by design.
type ModelProvider interface {
	Generate(ctx context.Context, req models.ModelRequest) (models.ModelResponse, error)
}

// EventSink receives the orchestrator's progress in emission order. The
// Image callback persists the payload and returns the durable URL; it is
// invoked before the corresponding image event becomes visible, so no
// event ever references bytes that are not yet durable.
type EventSink interface {
	Thinking(text string)
	ToolStart(tool, displayName string, args map[string]any)
	ToolResult(tool string, args map[string]any, result models.ToolResult)
	TextDelta(delta string)
	Image(id string, data []byte, mimeType, knownURL string) (url string, err error)
}

// AgentError distinguishes terminal failures from recoverable ones.
type AgentError struct {
	Message string
	Fatal   bool
}

func (e *AgentError) Error() string {
	return e.Message
}

// Agent owns the orchestration loop for one kind of assistant.
type Agent struct {
	Provider      ModelProvider
	Dispatcher    *tools.Dispatcher
	SystemPrompt  string
	MaxIterations int
	Logger        *log.Logger
}

// NewAgent wires an agent with the default iteration ceiling.
func NewAgent(provider ModelProvider, dispatcher *tools.Dispatcher, systemPrompt string) *Agent {
	return &Agent{
		Provider:      provider,
		Dispatcher:    dispatcher,
		SystemPrompt:  systemPrompt,
		MaxIterations: DefaultMaxIterations,
		Logger:        log.New(os.Stdout, "[AGENT] ", log.LstdFlags),
	}
}

// RunInput seeds one agent run with the built context and the per-run
// reference store. The store is exclusively owned by this run.
type RunInput struct {
	UserID         string
	ConversationID string
	Messages       []models.AgentMessage
	Refs           *refstore.Store
}

// RunResult is the cumulative outcome of a run.
type RunResult struct {
	Text      string
	Thinking  string
	Images    []models.ToolImage
	ToolLog   []models.ToolInvocation
	Truncated bool
}

// Run executes the orchestration loop: call the model, execute any tool
// calls in order, feed the results back, and stop on a final text
// response, a designed tool early-exit, or the iteration ceiling.
func (a *Agent) Run(ctx context.Context, input RunInput, sink EventSink) (*RunResult, error) {
	maxIterations := a.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	toolCtx := &tools.Context{
		UserID:         input.UserID,
		ConversationID: input.ConversationID,
		Refs:           input.Refs,
	}

	messages := input.Messages
	result := &RunResult{}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		a.Logger.Printf("conversation %s: iteration %d/%d", input.ConversationID, iteration, maxIterations)

		// The registry prompt is rebuilt every iteration so images
		// generated by earlier tool calls are immediately citable.
		req := models.ModelRequest{
			SystemPrompt: joinPrompts(a.SystemPrompt, RegistryPrompt(input.Refs)),
			Messages:     messages,
			Tools:        a.Dispatcher.Declarations(),
		}

		resp, err := a.Provider.Generate(ctx, req)
		if err != nil {
			return nil, &AgentError{Message: fmt.Sprintf("model call failed: %v", err), Fatal: true}
		}

		if thinking := resp.Thinking(); thinking != "" {
			sink.Thinking(thinking)
			result.Thinking += thinking
		}
		if text := resp.Text(); text != "" {
			sink.TextDelta(text)
			result.Text += text
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			// No tool requests: the narrative text is the final answer.
			return result, nil
		}

		// The model's message is appended verbatim, continuation
		// signatures included, before any tool result re-enters the
		// sequence.
		messages = append(messages, models.AgentMessage{Role: models.RoleModel, Parts: resp.Parts})

		var resultParts []models.Part
		for _, callPart := range calls {
			call := callPart.ToolCall
			sink.ToolStart(call.Name, a.Dispatcher.DisplayName(call.Name), call.Args)

			toolResult := a.Dispatcher.Execute(ctx, call.Name, call.Args, toolCtx)

			images, err := a.publishImages(&toolResult, input.Refs, sink)
			if err != nil {
				return nil, &AgentError{Message: fmt.Sprintf("failed to persist tool images: %v", err), Fatal: true}
			}
			result.Images = append(result.Images, images...)

			sink.ToolResult(call.Name, call.Args, toolResult)
			result.ToolLog = append(result.ToolLog, models.ToolInvocation{
				Tool:      call.Name,
				Arguments: call.Args,
				Result:    toolResult.Lean(),
				Timestamp: time.Now(),
			})

			resultParts = append(resultParts, models.ToolResultPart(call.ID, call.Name, toolResultResponse(toolResult)))

			if toolResult.Success && !toolResult.ShouldContinue && len(toolResult.Images) > 0 {
				// Designed early exit: the user asked for an image and
				// got one; no further narration needed.
				if toolResult.Message != "" {
					sink.TextDelta(toolResult.Message)
					result.Text += toolResult.Message
				}
				return result, nil
			}
		}

		messages = append(messages, models.AgentMessage{Role: models.RoleUser, Parts: resultParts})
	}

	// Ceiling reached: designed degradation, not an error.
	a.Logger.Printf("conversation %s: iteration ceiling reached", input.ConversationID)
	sink.TextDelta(TruncatedMessage)
	result.Text += TruncatedMessage
	result.Truncated = true
	return result, nil
}

// publishImages persists each produced image through the sink (durable
// URL before any event) and records the URL back onto the store entry.
func (a *Agent) publishImages(toolResult *models.ToolResult, refs *refstore.Store, sink EventSink) ([]models.ToolImage, error) {
	var published []models.ToolImage
	for i := range toolResult.Images {
		img := &toolResult.Images[i]

		var data []byte
		if img.Data != "" {
			decoded, err := base64.StdEncoding.DecodeString(img.Data)
			if err != nil {
				a.Logger.Printf("skipping undecodable image payload for %s: %v", img.ID, err)
				continue
			}
			data = decoded
		}

		url, err := sink.Image(img.ID, data, img.MIMEType, img.URL)
		if err != nil {
			return nil, err
		}

		img.URL = url
		img.Data = ""
		refs.Register(refstore.RegisterOpts{
			ID:      img.ID,
			URL:     url,
			Aliases: []string{url},
			Kind:    refstore.KindGenerated,
		})
		published = append(published, *img)
	}
	return published, nil
}

// toolResultResponse is the lean form fed back into model context.
func toolResultResponse(result models.ToolResult) map[string]any {
	response := result.Lean()
	if !result.Success {
		response["is_error"] = true
	}
	return response
}

func joinPrompts(base, registry string) string {
	if registry == "" {
		return base
	}
	if base == "" {
		return registry
	}
	return base + "\n\n" + registry
}
