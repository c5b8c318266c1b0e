package stores

import (
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/superlion8/lookbook/models"
)

// Turn statuses. An assistant turn is created as a placeholder in
// StatusGenerating before the agent loop starts and updated in place
// until it reaches StatusSent or StatusFailed.
const (
	StatusGenerating = "generating"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Conversation holds metadata for a chat conversation.
type Conversation struct {
	gorm.Model
	ConversationID string `gorm:"uniqueIndex;not null"`
	UserID         string `gorm:"index;not null"`
	Title          string `gorm:"type:text"`
	TurnCount      int    `gorm:"default:0"`
	Turns          []ConversationTurn `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// ConversationTurn is one persisted turn: the user's message or the
// assistant's reply, including the tool audit log and reasoning text.
// Image bytes are never stored here, only serving URLs.
type ConversationTurn struct {
	gorm.Model
	ConversationID    string `gorm:"index;not null"`
	TurnID            string `gorm:"uniqueIndex;not null"`
	Sequence          int    `gorm:"not null"`
	Role              string `gorm:"not null"` // "user", "model"
	Text              string `gorm:"type:text"`
	Thinking          string `gorm:"type:text"`
	ImageURLsJSON     string `gorm:"column:image_urls_json;type:json"`
	GeneratedURLsJSON string `gorm:"column:generated_urls_json;type:json"`
	ToolCallsJSON     string `gorm:"column:tool_calls_json;type:json"`
	Status            string `gorm:"not null"` // generating, sent, failed
}

// ImageURLs returns the uploaded-image URLs for this turn.
func (t *ConversationTurn) ImageURLs() []string {
	return decodeStrings(t.ImageURLsJSON)
}

// SetImageURLs stores the uploaded-image URLs for this turn.
func (t *ConversationTurn) SetImageURLs(urls []string) {
	t.ImageURLsJSON = encodeJSON(urls)
}

// GeneratedURLs returns the generated-image URLs for this turn.
func (t *ConversationTurn) GeneratedURLs() []string {
	return decodeStrings(t.GeneratedURLsJSON)
}

// SetGeneratedURLs stores the generated-image URLs for this turn.
func (t *ConversationTurn) SetGeneratedURLs(urls []string) {
	t.GeneratedURLsJSON = encodeJSON(urls)
}

// ToolCalls returns the persisted tool audit log for this turn.
func (t *ConversationTurn) ToolCalls() []models.ToolInvocation {
	if t.ToolCallsJSON == "" || t.ToolCallsJSON == "null" {
		return nil
	}
	var calls []models.ToolInvocation
	if err := json.Unmarshal([]byte(t.ToolCallsJSON), &calls); err != nil {
		log.Printf("Warning: failed to unmarshal tool calls for turn %s: %v", t.TurnID, err)
		return nil
	}
	return calls
}

// SetToolCalls stores the tool audit log for this turn.
func (t *ConversationTurn) SetToolCalls(calls []models.ToolInvocation) {
	t.ToolCallsJSON = encodeJSON(calls)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("Warning: failed to unmarshal string list: %v", err)
		return nil
	}
	return out
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Warning: failed to marshal for storage: %v", err)
		return "null"
	}
	return string(data)
}

// ConversationInfo holds basic conversation metadata for listing.
type ConversationInfo struct {
	ConversationID string
	UserID         string
	Title          string
	TurnCount      int
	CreatedAt      string
	UpdatedAt      string
}

// TurnStore abstracts durable turn storage.
type TurnStore interface {
	// Turn operations. UpdateTurn replaces the stored row matching
	// turn.TurnID in place.
	CreateTurn(turn *ConversationTurn) error
	UpdateTurn(turn *ConversationTurn) error
	FetchTurns(conversationID string, limit int) ([]ConversationTurn, error)

	// Conversation operations.
	CreateConversation(convoID, userID string) error
	ConversationExists(convoID string) (bool, error)
	ListConversationsForUser(userID string) ([]ConversationInfo, error)

	// Connection management.
	Connect() error
	Close() error
	Ping() error
}

// StoreConfig holds configuration for database stores.
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`
}

// NewStoreConfig creates a new store configuration.
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}
