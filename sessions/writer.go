// Package sessions connects agent runs to live clients: it owns the
// stream writers, the persistence bridge that turns sink callbacks into
// durable turn updates, and the chat session that ties one request to
// one agent run.
package sessions

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/superlion8/lookbook/models"
)

// EventWriter pushes stream events to a connected client. Heartbeats go
// through their own method because the SSE form is a comment line, not
// an event.
type EventWriter interface {
	WriteEvent(event models.StreamEvent) error
	WriteHeartbeat() error
	Flush()
}

// SSEWriter writes Server-Sent Events to an HTTP response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	Logger  *log.Logger
	mu      sync.Mutex
}

// NewSSEWriter prepares a gin response for SSE streaming and returns the
// writer. Returns an error when the underlying connection cannot flush.
func NewSSEWriter(c *gin.Context, logger *log.Logger) (*SSEWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by connection")
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: c.Writer, flusher: flusher, Logger: logger}, nil
}

// WriteEvent writes one event in the standard SSE framing.
func (s *SSEWriter) WriteEvent(event models.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteHeartbeat writes an SSE comment line to keep intermediaries from
// closing an idle connection.
func (s *SSEWriter) WriteHeartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Flush forces buffered output onto the wire.
func (s *SSEWriter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flusher.Flush()
}

// WebSocketWriter streams the same event sequence over a WebSocket.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

// NewWebSocketWriter wraps an upgraded connection.
func NewWebSocketWriter(conn *websocket.Conn, logger *log.Logger) *WebSocketWriter {
	return &WebSocketWriter{Conn: conn, Logger: logger}
}

// WriteEvent sends one event as a JSON message.
func (w *WebSocketWriter) WriteEvent(event models.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(event)
}

// WriteHeartbeat sends a heartbeat event; WebSockets have no comment
// framing, so the heartbeat is an ordinary typed message.
func (w *WebSocketWriter) WriteHeartbeat() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(models.StreamEvent{Type: models.EventHeartbeat})
}

// Flush is a no-op; WebSocket writes are not buffered at this layer.
func (w *WebSocketWriter) Flush() {}
