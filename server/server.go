// Package server exposes the chat API over HTTP: an SSE chat endpoint,
// a WebSocket variant, conversation history reads, and static serving of
// persisted images.
package server

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	lookbook "github.com/superlion8/lookbook"
	"github.com/superlion8/lookbook/sessions"
	"github.com/superlion8/lookbook/stores"
)

// Config holds everything the router needs. Traces is optional; when
// nil the per-invocation audit endpoint reports tracing as disabled.
type Config struct {
	Agent    *lookbook.Agent
	Builder  *lookbook.ContextBuilder
	Store    stores.TurnStore
	Media    stores.MediaStore
	Traces   stores.TraceStore
	MediaDir string
	Logger   *log.Logger
}

// Server owns the gin engine and its dependencies.
type Server struct {
	cfg      Config
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	UserID         string         `json:"user_id" binding:"required"`
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	Images         []UploadedFile `json:"images"`
}

// UploadedFile is one image attached to a chat request. Data is base64.
type UploadedFile struct {
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// New builds the server and registers routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[SERVER] ", log.LstdFlags)
	}
	s := &Server{
		cfg:    cfg,
		router: gin.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	{
		api.POST("/chat", s.handleChat)
		api.GET("/conversations", s.handleListConversations)
		api.GET("/conversations/:conversationID", s.handleHistory)
		api.GET("/conversations/:conversationID/traces", s.handleTraces)
	}
	s.router.GET("/ws/chat", s.handleWebSocketChat)
	if s.cfg.MediaDir != "" {
		s.router.Static("/images", s.cfg.MediaDir)
	}
	s.router.GET("/health", s.handleHealth)
}

// handleChat runs one agent turn and streams progress as SSE.
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := toUserTurn(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	writer, err := sessions.NewSSEWriter(c, s.cfg.Logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	session := sessions.NewChatSession(s.cfg.Agent, s.cfg.Builder, s.cfg.Store, s.cfg.Media, req.UserID, req.ConversationID)
	session.Traces = s.cfg.Traces
	if err := session.Run(c.Request.Context(), user, writer); err != nil {
		s.cfg.Logger.Printf("chat run failed: %v", err)
	}
}

// handleWebSocketChat is the WebSocket variant: one chat request per
// message, the same event sequence back as JSON frames.
func (s *Server) handleWebSocketChat(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.cfg.Logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writer := sessions.NewWebSocketWriter(conn, s.cfg.Logger)
	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.cfg.Logger.Printf("websocket read failed: %v", err)
			}
			return
		}
		if req.UserID == "" {
			conn.WriteJSON(gin.H{"error": "user_id is required"})
			continue
		}
		user, err := toUserTurn(req)
		if err != nil {
			conn.WriteJSON(gin.H{"error": err.Error()})
			continue
		}

		session := sessions.NewChatSession(s.cfg.Agent, s.cfg.Builder, s.cfg.Store, s.cfg.Media, req.UserID, req.ConversationID)
		session.Traces = s.cfg.Traces
		if err := session.Run(c.Request.Context(), user, writer); err != nil {
			s.cfg.Logger.Printf("websocket chat run failed: %v", err)
		}
	}
}

// handleHistory returns the persisted turns of one conversation.
func (s *Server) handleHistory(c *gin.Context) {
	conversationID := c.Param("conversationID")
	exists, err := s.cfg.Store.ConversationExists(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	session := sessions.NewChatSession(s.cfg.Agent, s.cfg.Builder, s.cfg.Store, s.cfg.Media, "", conversationID)
	views, err := session.History()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "turns": views})
}

// handleTraces returns the per-invocation audit trail of a conversation.
func (s *Server) handleTraces(c *gin.Context) {
	if s.cfg.Traces == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tracing not enabled"})
		return
	}

	conversationID := c.Param("conversationID")
	exists, err := s.cfg.Store.ConversationExists(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	traces, err := s.cfg.Traces.TracesByConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "traces": traces})
}

// handleListConversations lists conversations for a user.
func (s *Server) handleListConversations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	infos, err := s.cfg.Store.ListConversationsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": infos})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.cfg.Store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toUserTurn(req ChatRequest) (lookbook.UserTurn, error) {
	if req.Message == "" && len(req.Images) == 0 {
		return lookbook.UserTurn{}, fmt.Errorf("message or images required")
	}

	user := lookbook.UserTurn{Text: req.Message}
	for i, file := range req.Images {
		upload := lookbook.UploadedImage{URL: file.URL, MIMEType: file.MIMEType}
		if file.Data != "" {
			data, err := base64.StdEncoding.DecodeString(file.Data)
			if err != nil {
				return lookbook.UserTurn{}, fmt.Errorf("image %d is not valid base64: %w", i, err)
			}
			upload.Data = data
		}
		if len(upload.Data) == 0 && upload.URL == "" {
			return lookbook.UserTurn{}, fmt.Errorf("image %d has neither data nor url", i)
		}
		user.Images = append(user.Images, upload)
	}
	return user, nil
}
