package models

// ModelRequest is the provider-agnostic input for one model call.
type ModelRequest struct {
	// SystemPrompt is the base instruction plus the current image
	// registry prompt, rebuilt every iteration so newly generated
	// images are immediately citable.
	SystemPrompt string
	Messages     []AgentMessage
	Tools        []FunctionDeclaration
}

// ModelResponse is one provider reply: narrative text, optional
// reasoning, and zero or more tool call requests, in provider order.
type ModelResponse struct {
	Parts []Part
}

// ToolCalls returns the tool call parts of the response in order.
func (r ModelResponse) ToolCalls() []Part {
	var calls []Part
	for _, p := range r.Parts {
		if p.Kind() == PartToolCall {
			calls = append(calls, p)
		}
	}
	return calls
}

// Text concatenates the narrative text parts of the response.
func (r ModelResponse) Text() string {
	var out string
	for _, p := range r.Parts {
		if p.Kind() == PartText {
			out += p.Text
		}
	}
	return out
}

// Thinking concatenates the reasoning parts of the response.
func (r ModelResponse) Thinking() string {
	var out string
	for _, p := range r.Parts {
		if p.Kind() == PartThought {
			out += p.Thought
		}
	}
	return out
}
