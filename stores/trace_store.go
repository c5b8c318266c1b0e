package stores

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ToolTrace is one persisted tool invocation, indexed by conversation
// and turn so the audit trail of a run can be queried without decoding
// the turn's JSON column.
type ToolTrace struct {
	ID             uint           `gorm:"primarykey" json:"-"`
	CreatedAt      time.Time      `json:"-"`
	ConversationID string         `gorm:"index:idx_tooltrace_conv;not null" json:"conversation_id"`
	TurnID         string         `gorm:"index:idx_tooltrace_turn;not null" json:"turn_id"`
	Tool           string         `gorm:"not null" json:"tool"`
	Success        bool           `json:"success"`
	ArgumentsJSON  string         `gorm:"type:text" json:"-"`
	Arguments      map[string]any `gorm:"-" json:"arguments,omitempty"`
	ResultJSON     string         `gorm:"type:text" json:"-"`
	Result         map[string]any `gorm:"-" json:"result,omitempty"`
	Timestamp      time.Time      `gorm:"not null" json:"timestamp"`
}

// BeforeSave marshals the map fields to their JSON columns.
func (t *ToolTrace) BeforeSave(tx *gorm.DB) error {
	if t.Arguments != nil {
		data, err := json.Marshal(t.Arguments)
		if err != nil {
			return err
		}
		t.ArgumentsJSON = string(data)
	}
	if t.Result != nil {
		data, err := json.Marshal(t.Result)
		if err != nil {
			return err
		}
		t.ResultJSON = string(data)
	}
	return nil
}

// AfterFind unmarshals the JSON columns back into the map fields.
func (t *ToolTrace) AfterFind(tx *gorm.DB) error {
	if t.ArgumentsJSON != "" {
		if err := json.Unmarshal([]byte(t.ArgumentsJSON), &t.Arguments); err != nil {
			return err
		}
	}
	if t.ResultJSON != "" {
		return json.Unmarshal([]byte(t.ResultJSON), &t.Result)
	}
	return nil
}

// TraceStore persists and queries the per-invocation audit trail.
type TraceStore interface {
	SaveTrace(trace *ToolTrace) error
	TracesByConversation(conversationID string) ([]*ToolTrace, error)
	DeleteTracesByConversation(conversationID string) error
}

// GormTraceStore implements TraceStore on an existing GORM connection,
// sharing the database with the turn store it audits.
type GormTraceStore struct {
	db *gorm.DB
}

// NewGormTraceStore migrates the trace table and returns the store.
func NewGormTraceStore(db *gorm.DB) (*GormTraceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if err := db.AutoMigrate(&ToolTrace{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tool_traces table: %w", err)
	}
	return &GormTraceStore{db: db}, nil
}

// NewTraceStoreFor builds a trace store sharing the connection of a
// GORM-backed turn store.
func NewTraceStoreFor(store TurnStore) (*GormTraceStore, error) {
	backed, ok := store.(interface{ DB() *gorm.DB })
	if !ok {
		return nil, fmt.Errorf("turn store %T does not expose a database connection", store)
	}
	return NewGormTraceStore(backed.DB())
}

// SaveTrace records one invocation.
func (s *GormTraceStore) SaveTrace(trace *ToolTrace) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Create(trace).Error
}

// TracesByConversation returns all traces for a conversation in
// invocation order.
func (s *GormTraceStore) TracesByConversation(conversationID string) ([]*ToolTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var traces []*ToolTrace
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&traces).Error
	return traces, err
}

// DeleteTracesByConversation removes a conversation's audit trail.
func (s *GormTraceStore) DeleteTracesByConversation(conversationID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Where("conversation_id = ?", conversationID).Delete(&ToolTrace{}).Error
}
