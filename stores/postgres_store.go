package stores

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements TurnStore for PostgreSQL databases.
type PostgresStore struct {
	db  *gorm.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for Postgres store: %s", config.Type)
	}

	store := &PostgresStore{dsn: config.Connection}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	return store, nil
}

// NewPostgresStoreSimple creates a new PostgreSQL store from a DSN.
func NewPostgresStoreSimple(dsn string) (*PostgresStore, error) {
	return NewPostgresStore(NewStoreConfig("postgres", dsn))
}

// Connect establishes a connection to the PostgreSQL database.
func (s *PostgresStore) Connect() error {
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	s.db = db

	if err := s.db.AutoMigrate(&Conversation{}, &ConversationTurn{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// DB exposes the underlying connection so sibling stores can share it.
func (s *PostgresStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateTurn inserts a new turn, creating the conversation record first
// if this is its first turn.
func (s *PostgresStore) CreateTurn(turn *ConversationTurn) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	exists, err := s.ConversationExists(turn.ConversationID)
	if err != nil {
		log.Printf("Warning: error checking for conversation %s: %v", turn.ConversationID, err)
	} else if !exists {
		if err := s.CreateConversation(turn.ConversationID, ""); err != nil {
			log.Printf("Warning: failed to create conversation record for %s: %v", turn.ConversationID, err)
		}
	}

	var count int64
	if err := s.db.Model(&ConversationTurn{}).Where("conversation_id = ?", turn.ConversationID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count existing turns: %w", err)
	}
	turn.Sequence = int(count) + 1

	tx := s.db.Begin()
	if err := tx.Create(turn).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create turn record: %w", err)
	}
	if err := tx.Model(&Conversation{}).Where("conversation_id = ?", turn.ConversationID).Update("turn_count", turn.Sequence).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update conversation turn count: %w", err)
	}
	return tx.Commit().Error
}

// UpdateTurn replaces the stored row matching turn.TurnID.
func (s *PostgresStore) UpdateTurn(turn *ConversationTurn) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Model(&ConversationTurn{}).Where("turn_id = ?", turn.TurnID).Updates(map[string]any{
		"text":                turn.Text,
		"thinking":            turn.Thinking,
		"image_urls_json":     turn.ImageURLsJSON,
		"generated_urls_json": turn.GeneratedURLsJSON,
		"tool_calls_json":     turn.ToolCallsJSON,
		"status":              turn.Status,
	}).Error
}

// FetchTurns retrieves turns for a conversation in sequence order.
// limit caps the result to the last N turns (0 = all).
func (s *PostgresStore) FetchTurns(conversationID string, limit int) ([]ConversationTurn, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.Where("conversation_id = ?", conversationID).Order("sequence ASC")

	if limit > 0 {
		var count int64
		if err := s.db.Model(&ConversationTurn{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count turns: %w", err)
		}
		if count > int64(limit) {
			query = query.Offset(int(count) - limit)
		}
	}

	var turns []ConversationTurn
	if err := query.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}
	return turns, nil
}

// CreateConversation creates a new conversation record.
func (s *PostgresStore) CreateConversation(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Create(&Conversation{ConversationID: convoID, UserID: userID}).Error
}

// ConversationExists reports whether a conversation record exists.
func (s *PostgresStore) ConversationExists(convoID string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database connection is nil")
	}
	var count int64
	err := s.db.Model(&Conversation{}).Where("conversation_id = ?", convoID).Count(&count).Error
	return count > 0, err
}

// ListConversationsForUser returns all conversations with details for a user.
func (s *PostgresStore) ListConversationsForUser(userID string) ([]ConversationInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var convs []Conversation
	if err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	result := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		result[i] = ConversationInfo{
			ConversationID: c.ConversationID,
			UserID:         c.UserID,
			Title:          c.Title,
			TurnCount:      c.TurnCount,
			CreatedAt:      c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:      c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return result, nil
}
