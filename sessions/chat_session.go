package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	lookbook "github.com/superlion8/lookbook"
	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/refstore"
	"github.com/superlion8/lookbook/stores"
)

// historyFetchLimit bounds how much persisted history one run rebuilds
// context from.
const historyFetchLimit = 50

// ChatSession ties one chat request to one agent run: it persists the
// user turn, creates the assistant placeholder, builds provider context,
// and drives the agent with a Bridge as its sink.
type ChatSession struct {
	Agent   *lookbook.Agent
	Builder *lookbook.ContextBuilder
	Store   stores.TurnStore
	Media   stores.MediaStore
	Logger  *log.Logger

	// Traces, when set, gives the run's bridge a per-invocation audit
	// store in addition to the turn's JSON column.
	Traces stores.TraceStore

	UserID         string
	ConversationID string
}

// NewChatSession creates a session for one request. An empty
// conversationID means a new conversation is minted on Run.
func NewChatSession(agent *lookbook.Agent, builder *lookbook.ContextBuilder, store stores.TurnStore, media stores.MediaStore, userID, conversationID string) *ChatSession {
	return &ChatSession{
		Agent:          agent,
		Builder:        builder,
		Store:          store,
		Media:          media,
		Logger:         log.New(os.Stdout, "[SESSION] ", log.LstdFlags),
		UserID:         userID,
		ConversationID: conversationID,
	}
}

// Run executes the full request cycle and streams progress to writer.
// The request context governs only the wire: when the client goes away
// the run finishes and persists regardless.
func (s *ChatSession) Run(ctx context.Context, user lookbook.UserTurn, writer EventWriter) error {
	fresh, err := s.ensureConversation()
	if err != nil {
		writer.WriteEvent(errorEvent(err))
		return err
	}

	// History is captured before the new turns land so the context
	// builder sees exactly the prior conversation.
	history, err := s.Store.FetchTurns(s.ConversationID, historyFetchLimit)
	if err != nil {
		writer.WriteEvent(errorEvent(err))
		return err
	}

	if err := s.saveUserTurn(&user, len(history)); err != nil {
		writer.WriteEvent(errorEvent(err))
		return err
	}

	bridge, err := s.prepare(writer, fresh)
	if err != nil {
		writer.WriteEvent(errorEvent(err))
		return err
	}
	bridge.Watch(ctx)
	bridge.StartHeartbeat(DefaultHeartbeatInterval)
	defer bridge.StopHeartbeat()

	refs := refstore.New()
	built := s.Builder.Build(history, user, refs)

	input := lookbook.RunInput{
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Messages:       built.Messages,
		Refs:           refs,
	}

	// The agent run outlives the request context deliberately.
	_, runErr := s.Agent.Run(context.WithoutCancel(ctx), input, bridge)
	if runErr != nil {
		s.Logger.Printf("conversation %s: run failed: %v", s.ConversationID, runErr)
		bridge.Fail(runErr.Error())
		return runErr
	}

	bridge.Finish(s.ConversationID)
	return nil
}

// ensureConversation mints and records the conversation row if needed.
// The returned flag reports whether the id was assigned on this request.
func (s *ChatSession) ensureConversation() (bool, error) {
	fresh := s.ConversationID == ""
	if fresh {
		s.ConversationID = "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	exists, err := s.Store.ConversationExists(s.ConversationID)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	if !exists {
		if err := s.Store.CreateConversation(s.ConversationID, s.UserID); err != nil {
			return false, fmt.Errorf("failed to create conversation: %w", err)
		}
	}
	return fresh, nil
}

// prepare creates the assistant placeholder turn the bridge updates in
// place as the run progresses.
func (s *ChatSession) prepare(writer EventWriter, fresh bool) (*Bridge, error) {
	placeholder := &stores.ConversationTurn{
		ConversationID: s.ConversationID,
		TurnID:         "turn_" + uuid.NewString(),
		Role:           string(models.RoleModel),
		Status:         stores.StatusGenerating,
	}
	if err := s.Store.CreateTurn(placeholder); err != nil {
		return nil, fmt.Errorf("failed to create placeholder turn: %w", err)
	}

	bridge := NewBridge(writer, s.Media, s.Store, placeholder)
	bridge.Traces = s.Traces
	if fresh {
		bridge.Conversation(s.ConversationID)
	}
	return bridge, nil
}

// saveUserTurn persists the incoming message. Raw upload bytes go to
// media storage first so the turn row only ever holds URLs; the assigned
// ids and URLs are written back onto the turn so context building sees
// them.
func (s *ChatSession) saveUserTurn(user *lookbook.UserTurn, priorTurns int) error {
	var urls []string
	for i := range user.Images {
		img := &user.Images[i]
		if img.ID == "" {
			img.ID = "img_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		}
		if img.URL == "" && len(img.Data) > 0 {
			url, err := s.Media.SaveImage(img.ID, img.Data, img.MIMEType)
			if err != nil {
				return fmt.Errorf("failed to persist upload %s: %w", img.ID, err)
			}
			img.URL = url
		}
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}

	turn := &stores.ConversationTurn{
		ConversationID: s.ConversationID,
		TurnID:         "turn_" + uuid.NewString(),
		Role:           string(models.RoleUser),
		Text:           user.Text,
		Status:         stores.StatusSent,
	}
	turn.SetImageURLs(urls)

	if err := s.Store.CreateTurn(turn); err != nil {
		return err
	}
	s.Logger.Printf("conversation %s: saved user turn %s (%d prior turns)", s.ConversationID, turn.TurnID, priorTurns)
	return nil
}

// History returns the persisted turns in client-facing form. Turns still
// generating are shown as such; the client polls or reconnects for the
// final state after a dropped stream.
func (s *ChatSession) History() ([]TurnView, error) {
	turns, err := s.Store.FetchTurns(s.ConversationID, historyFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	views := make([]TurnView, 0, len(turns))
	for _, turn := range turns {
		views = append(views, TurnView{
			TurnID:        turn.TurnID,
			Sequence:      turn.Sequence,
			Role:          turn.Role,
			Text:          turn.Text,
			Thinking:      turn.Thinking,
			ImageURLs:     turn.ImageURLs(),
			GeneratedURLs: turn.GeneratedURLs(),
			ToolCalls:     turn.ToolCalls(),
			Status:        turn.Status,
			CreatedAt:     turn.CreatedAt,
		})
	}
	return views, nil
}

// TurnView is the API shape of one persisted turn.
type TurnView struct {
	TurnID        string                  `json:"turn_id"`
	Sequence      int                     `json:"sequence"`
	Role          string                  `json:"role"`
	Text          string                  `json:"text"`
	Thinking      string                  `json:"thinking,omitempty"`
	ImageURLs     []string                `json:"image_urls,omitempty"`
	GeneratedURLs []string                `json:"generated_urls,omitempty"`
	ToolCalls     []models.ToolInvocation `json:"tool_calls,omitempty"`
	Status        string                  `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
}

func errorEvent(err error) models.StreamEvent {
	return models.StreamEvent{Type: models.EventError, Data: models.ErrorData{Message: err.Error()}}
}
