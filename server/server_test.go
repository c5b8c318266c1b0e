package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	lookbook "github.com/superlion8/lookbook"
	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/stores"
	"github.com/superlion8/lookbook/tools"
)

type fixedProvider struct {
	text string
}

func (p *fixedProvider) Generate(ctx context.Context, req models.ModelRequest) (models.ModelResponse, error) {
	return models.ModelResponse{Parts: []models.Part{models.TextPart(p.text)}}, nil
}

type memoryStore struct {
	mu            sync.Mutex
	turns         []stores.ConversationTurn
	conversations map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: make(map[string]string)}
}

func (s *memoryStore) CreateTurn(turn *stores.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.Sequence = len(s.turns) + 1
	s.turns = append(s.turns, *turn)
	return nil
}

func (s *memoryStore) UpdateTurn(turn *stores.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.turns {
		if s.turns[i].TurnID == turn.TurnID {
			s.turns[i] = *turn
			return nil
		}
	}
	return nil
}

func (s *memoryStore) FetchTurns(conversationID string, limit int) ([]stores.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stores.ConversationTurn
	for _, turn := range s.turns {
		if turn.ConversationID == conversationID {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateConversation(convoID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[convoID] = userID
	return nil
}

func (s *memoryStore) ConversationExists(convoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[convoID]
	return ok, nil
}

func (s *memoryStore) ListConversationsForUser(userID string) ([]stores.ConversationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stores.ConversationInfo
	for id, uid := range s.conversations {
		if uid == userID {
			out = append(out, stores.ConversationInfo{ConversationID: id, UserID: uid})
		}
	}
	return out, nil
}

func (s *memoryStore) Connect() error { return nil }
func (s *memoryStore) Close() error   { return nil }
func (s *memoryStore) Ping() error    { return nil }

type nullMedia struct{}

func (nullMedia) SaveImage(id string, data []byte, mimeType string) (string, error) {
	return "/images/" + id + ".png", nil
}

func newTestServer(store *memoryStore) *Server {
	gin.SetMode(gin.TestMode)
	agent := lookbook.NewAgent(&fixedProvider{text: "hello from the model"}, tools.NewDispatcher(tools.DefaultTools()), "assistant")
	builder := lookbook.NewContextBuilder()
	builder.Fetch = func(url string) ([]byte, string, error) { return []byte{1}, "image/png", nil }
	return New(Config{
		Agent:   agent,
		Builder: builder,
		Store:   store,
		Media:   nullMedia{},
	})
}

func TestHandleChat_StreamsSSE(t *testing.T) {
	store := newMemoryStore()
	srv := newTestServer(store)

	body := `{"user_id":"user1","message":"plan a spring capsule"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event: conversation") {
		t.Errorf("missing conversation event:\n%s", out)
	}
	if !strings.Contains(out, "event: text_delta") || !strings.Contains(out, "hello from the model") {
		t.Errorf("missing model text:\n%s", out)
	}
	if !strings.Contains(out, "event: done") {
		t.Errorf("stream must end with done:\n%s", out)
	}
}

func TestHandleChat_RejectsEmptyRequest(t *testing.T) {
	srv := newTestServer(newMemoryStore())

	body := `{"user_id":"user1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChat_RejectsMissingUser(t *testing.T) {
	srv := newTestServer(newMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleHistory_UnknownConversation(t *testing.T) {
	srv := newTestServer(newMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleHistory_ReturnsTurns(t *testing.T) {
	store := newMemoryStore()
	store.CreateConversation("conv1", "user1")
	store.CreateTurn(&stores.ConversationTurn{ConversationID: "conv1", TurnID: "t1", Role: "user", Text: "hi", Status: stores.StatusSent})
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"text":"hi"`) {
		t.Errorf("turn missing from response: %s", rec.Body.String())
	}
}

type memoryTraceStore struct {
	traces []*stores.ToolTrace
}

func (s *memoryTraceStore) SaveTrace(trace *stores.ToolTrace) error {
	s.traces = append(s.traces, trace)
	return nil
}

func (s *memoryTraceStore) TracesByConversation(conversationID string) ([]*stores.ToolTrace, error) {
	var out []*stores.ToolTrace
	for _, trace := range s.traces {
		if trace.ConversationID == conversationID {
			out = append(out, trace)
		}
	}
	return out, nil
}

func (s *memoryTraceStore) DeleteTracesByConversation(conversationID string) error { return nil }

func TestHandleTraces_DisabledWithoutStore(t *testing.T) {
	srv := newTestServer(newMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv1/traces", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when tracing is not wired, got %d", rec.Code)
	}
}

func TestHandleTraces_ReturnsAuditTrail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemoryStore()
	store.CreateConversation("conv1", "user1")
	traces := &memoryTraceStore{}
	traces.SaveTrace(&stores.ToolTrace{ConversationID: "conv1", TurnID: "t1", Tool: "analyze_image", Success: true})

	agent := lookbook.NewAgent(&fixedProvider{text: "hi"}, tools.NewDispatcher(tools.DefaultTools()), "assistant")
	srv := New(Config{
		Agent:   agent,
		Builder: lookbook.NewContextBuilder(),
		Store:   store,
		Media:   nullMedia{},
		Traces:  traces,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv1/traces", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "analyze_image") {
		t.Errorf("trace missing from response: %s", rec.Body.String())
	}
}

func TestHandleListConversations(t *testing.T) {
	store := newMemoryStore()
	store.CreateConversation("conv1", "user1")
	store.CreateConversation("conv2", "someone_else")
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?user_id=user1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "conv1") || strings.Contains(body, "conv2") {
		t.Errorf("listing must be scoped to the user: %s", body)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(newMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestToUserTurn_Validation(t *testing.T) {
	if _, err := toUserTurn(ChatRequest{UserID: "u"}); err == nil {
		t.Error("empty request must be rejected")
	}
	if _, err := toUserTurn(ChatRequest{UserID: "u", Images: []UploadedFile{{Data: "!!!"}}}); err == nil {
		t.Error("invalid base64 must be rejected")
	}
	turn, err := toUserTurn(ChatRequest{UserID: "u", Message: "hi", Images: []UploadedFile{{Data: "AQI=", MIMEType: "image/png"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turn.Images[0].Data) != 2 {
		t.Errorf("base64 payload not decoded: %v", turn.Images[0].Data)
	}
}
