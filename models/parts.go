package models

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// PartKind discriminates the closed set of message part variants.
type PartKind int

const (
	PartUnknown PartKind = iota
	PartText
	PartInlineImage
	PartToolCall
	PartToolResult
	PartThought
)

// ToolCall is a request from the model to execute a named tool.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse carries a tool's output back into the message sequence.
type ToolResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// InlineImage is raw image bytes attached to a message.
type InlineImage struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Part is one element of an AgentMessage. Exactly one of the variant
// fields is set; Kind reports which. Signature is an opaque provider
// continuation token that must be round-tripped byte-for-byte on the
// part it arrived with, or the next model call is rejected.
type Part struct {
	Text         string        `json:"text,omitempty"`
	InlineImage  *InlineImage  `json:"inlineImage,omitempty"`
	ToolCall     *ToolCall     `json:"toolCall,omitempty"`
	ToolResponse *ToolResponse `json:"toolResponse,omitempty"`
	Thought      string        `json:"thought,omitempty"`

	Signature []byte `json:"signature,omitempty"`
}

// Kind returns the variant of this part. Callers switch exhaustively on
// the result rather than probing individual fields.
func (p Part) Kind() PartKind {
	switch {
	case p.ToolCall != nil:
		return PartToolCall
	case p.ToolResponse != nil:
		return PartToolResult
	case p.InlineImage != nil:
		return PartInlineImage
	case p.Thought != "":
		return PartThought
	case p.Text != "":
		return PartText
	}
	return PartUnknown
}

// AgentMessage is one turn in the provider-facing history.
type AgentMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ThoughtPart builds a reasoning part.
func ThoughtPart(text string) Part {
	return Part{Thought: text}
}

// InlineImagePart builds an inline image part.
func InlineImagePart(mimeType string, data []byte) Part {
	return Part{InlineImage: &InlineImage{MIMEType: mimeType, Data: data}}
}

// ToolCallPart builds a tool call part.
func ToolCallPart(id, name string, args map[string]any) Part {
	return Part{ToolCall: &ToolCall{ID: id, Name: name, Args: args}}
}

// ToolResultPart builds a tool result part.
func ToolResultPart(id, name string, response map[string]any) Part {
	return Part{ToolResponse: &ToolResponse{ID: id, Name: name, Response: response}}
}
