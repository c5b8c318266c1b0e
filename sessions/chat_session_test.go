package sessions

import (
	"context"
	"errors"
	"strings"
	"testing"

	lookbook "github.com/superlion8/lookbook"
	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/stores"
	"github.com/superlion8/lookbook/tools"
)

type scriptedProvider struct {
	responses []models.ModelResponse
	err       error
}

func (p *scriptedProvider) Generate(ctx context.Context, req models.ModelRequest) (models.ModelResponse, error) {
	if p.err != nil {
		return models.ModelResponse{}, p.err
	}
	if len(p.responses) == 0 {
		return models.ModelResponse{Parts: []models.Part{models.TextPart("fallback")}}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func newSession(provider lookbook.ModelProvider, store *fakeTurnStore, media stores.MediaStore, conversationID string) *ChatSession {
	agent := lookbook.NewAgent(provider, tools.NewDispatcher(tools.DefaultTools()), "You are a fashion assistant.")
	builder := lookbook.NewContextBuilder()
	builder.Fetch = func(url string) ([]byte, string, error) {
		return []byte{0xff, 0xd8}, "image/jpeg", nil
	}
	return NewChatSession(agent, builder, store, media, "user1", conversationID)
}

func TestChatSession_FullCycle(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ModelResponse{
		{Parts: []models.Part{models.TextPart("A navy capsule works well for autumn.")}},
	}}
	store := newFakeTurnStore()
	writer := &fakeWriter{}
	session := newSession(provider, store, &fakeMedia{}, "")

	err := session.Run(context.Background(), lookbook.UserTurn{Text: "plan an autumn capsule"}, writer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ConversationID == "" {
		t.Fatal("a conversation id must be minted")
	}

	types := writer.types()
	if types[0] != models.EventConversation {
		t.Errorf("fresh conversation must announce its id first, got %v", types)
	}
	if types[len(types)-1] != models.EventDone {
		t.Errorf("stream must end with done, got %v", types)
	}

	turns, _ := store.FetchTurns(session.ConversationID, 50)
	if len(turns) != 2 {
		t.Fatalf("expected user turn plus model turn, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Text != "plan an autumn capsule" {
		t.Errorf("user turn wrong: %+v", turns[0])
	}
	if turns[1].Role != "model" || turns[1].Status != stores.StatusSent {
		t.Errorf("model turn wrong: %+v", turns[1])
	}
	if !strings.Contains(turns[1].Text, "navy capsule") {
		t.Errorf("model text not persisted: %q", turns[1].Text)
	}
}

func TestChatSession_ExistingConversationNotReannounced(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ModelResponse{
		{Parts: []models.Part{models.TextPart("sure")}},
	}}
	store := newFakeTurnStore()
	store.CreateConversation("conv_existing", "user1")
	writer := &fakeWriter{}
	session := newSession(provider, store, &fakeMedia{}, "conv_existing")

	if err := session.Run(context.Background(), lookbook.UserTurn{Text: "hi"}, writer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ev := range writer.types() {
		if ev == models.EventConversation {
			t.Error("existing conversation must not be re-announced")
		}
	}
}

func TestChatSession_UploadPersistedBeforeRun(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ModelResponse{
		{Parts: []models.Part{models.TextPart("nice jacket")}},
	}}
	store := newFakeTurnStore()
	media := &fakeMedia{}
	writer := &fakeWriter{}
	session := newSession(provider, store, media, "")

	user := lookbook.UserTurn{
		Text:   "rate this look",
		Images: []lookbook.UploadedImage{{Data: []byte{0x89, 0x50}, MIMEType: "image/png"}},
	}
	if err := session.Run(context.Background(), user, writer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(media.saved) != 1 {
		t.Fatal("upload bytes must be persisted to media storage")
	}
	turns, _ := store.FetchTurns(session.ConversationID, 50)
	urls := turns[0].ImageURLs()
	if len(urls) != 1 || !strings.HasPrefix(urls[0], "/images/") {
		t.Errorf("user turn must carry the durable upload URL, got %v", urls)
	}
}

func TestChatSession_ProviderFailureMarksTurnFailed(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("upstream down")}
	store := newFakeTurnStore()
	writer := &fakeWriter{}
	session := newSession(provider, store, &fakeMedia{}, "")

	err := session.Run(context.Background(), lookbook.UserTurn{Text: "hello"}, writer)
	if err == nil {
		t.Fatal("provider failure must surface")
	}

	turns, _ := store.FetchTurns(session.ConversationID, 50)
	if len(turns) != 2 {
		t.Fatalf("expected both turns persisted, got %d", len(turns))
	}
	if turns[1].Status != stores.StatusFailed {
		t.Errorf("model turn must be marked failed, got %s", turns[1].Status)
	}

	types := writer.types()
	if types[len(types)-1] != models.EventError {
		t.Errorf("stream must end with an error event, got %v", types)
	}
}

func TestChatSession_HistoryViews(t *testing.T) {
	store := newFakeTurnStore()
	store.CreateConversation("conv_h", "user1")
	userTurn := &stores.ConversationTurn{ConversationID: "conv_h", TurnID: "t1", Role: "user", Text: "hi", Status: stores.StatusSent}
	store.CreateTurn(userTurn)
	modelTurn := &stores.ConversationTurn{ConversationID: "conv_h", TurnID: "t2", Role: "model", Text: "hello", Status: stores.StatusSent}
	modelTurn.SetGeneratedURLs([]string{"/images/gen_1.png"})
	store.CreateTurn(modelTurn)

	session := newSession(&scriptedProvider{}, store, &fakeMedia{}, "conv_h")
	views, err := session.History()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[1].GeneratedURLs[0] != "/images/gen_1.png" {
		t.Errorf("generated urls missing from view: %+v", views[1])
	}
}
