package models

import "time"

// EventType enumerates the outward stream event variants.
type EventType string

const (
	EventConversation EventType = "conversation"
	EventThinking     EventType = "thinking"
	EventToolStart    EventType = "tool_start"
	EventToolResult   EventType = "tool_result"
	EventTextDelta    EventType = "text_delta"
	EventImage        EventType = "image"
	EventDone         EventType = "done"
	EventError        EventType = "error"
	EventHeartbeat    EventType = "heartbeat"
)

// StreamEvent is one occurrence in the client-visible event sequence.
// Events are ephemeral: only their cumulative effect on the persisted
// turn survives the run.
type StreamEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ConversationData accompanies EventConversation when a new conversation
// id has been assigned.
type ConversationData struct {
	ConversationID string `json:"conversation_id"`
}

// ThinkingData carries a reasoning fragment.
type ThinkingData struct {
	Text string `json:"text"`
}

// ToolStartData announces a tool invocation before it runs.
type ToolStartData struct {
	Tool        string         `json:"tool"`
	DisplayName string         `json:"displayName"`
	Arguments   map[string]any `json:"arguments"`
}

// ToolResultData reports the outcome of a tool invocation.
type ToolResultData struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    ToolResultInfo `json:"result"`
}

// ToolResultInfo is the client-facing summary of a ToolResult.
type ToolResultInfo struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	HasImages bool   `json:"hasImages"`
}

// TextDeltaData carries a narrative text fragment.
type TextDeltaData struct {
	Delta string `json:"delta"`
}

// ImageData announces a durable generated or uploaded image. URL always
// points at persisted storage; raw bytes never cross the wire.
type ImageData struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MIMEType string `json:"mimeType"`
}

// DoneData terminates a successful run.
type DoneData struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// ErrorData terminates a failed run.
type ErrorData struct {
	Message string `json:"message"`
}

// ToolInvocation is one entry in the append-only audit log of an agent
// run. Result holds the lean form: large binary fields are redacted
// before the record is persisted or fed back into model context.
type ToolInvocation struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}
