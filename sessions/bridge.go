package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/stores"
)

const (
	// DefaultFlushInterval throttles in-progress turn writes. The final
	// flush on completion or failure is never throttled.
	DefaultFlushInterval = 2 * time.Second

	// DefaultHeartbeatInterval keeps idle streams alive through proxies.
	DefaultHeartbeatInterval = 15 * time.Second
)

// Bridge receives agent sink callbacks and fans them out two ways: live
// events to the client and throttled updates to the persisted turn. A
// client disconnect silences the wire but never the persistence side, so
// a finished run is always recoverable from the turn row.
type Bridge struct {
	Writer        EventWriter
	Media         stores.MediaStore
	Store         stores.TurnStore
	Logger        *log.Logger
	FlushInterval time.Duration

	// Traces, when set, additionally records each tool invocation as
	// its own audit row alongside the turn's JSON column.
	Traces stores.TraceStore

	mu           sync.Mutex
	turn         *stores.ConversationTurn
	toolLog      []models.ToolInvocation
	generated    []string
	disconnected bool
	lastFlush    time.Time

	heartbeatStop chan struct{}
	heartbeatOnce sync.Once
}

// NewBridge wires a bridge around the generating placeholder turn. The
// turn is updated in place as the run progresses.
func NewBridge(writer EventWriter, media stores.MediaStore, store stores.TurnStore, turn *stores.ConversationTurn) *Bridge {
	return &Bridge{
		Writer:        writer,
		Media:         media,
		Store:         store,
		Logger:        log.New(os.Stdout, "[BRIDGE] ", log.LstdFlags),
		FlushInterval: DefaultFlushInterval,
		turn:          turn,
		lastFlush:     time.Now(),
		heartbeatStop: make(chan struct{}),
	}
}

// Watch marks the bridge disconnected when the request context ends.
// The run itself is not cancelled; only wire writes stop.
func (b *Bridge) Watch(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if !b.disconnected {
			b.disconnected = true
			b.Logger.Printf("client disconnected for turn %s; run continues", b.turn.TurnID)
		}
		b.mu.Unlock()
	}()
}

// StartHeartbeat begins periodic keepalive writes until StopHeartbeat.
func (b *Bridge) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.mu.Lock()
				down := b.disconnected
				b.mu.Unlock()
				if down {
					return
				}
				if err := b.Writer.WriteHeartbeat(); err != nil {
					b.markDisconnected(err)
					return
				}
			case <-b.heartbeatStop:
				return
			}
		}
	}()
}

// StopHeartbeat ends the keepalive loop. Safe to call more than once.
func (b *Bridge) StopHeartbeat() {
	b.heartbeatOnce.Do(func() { close(b.heartbeatStop) })
}

// Thinking accumulates reasoning text on the turn and streams it.
func (b *Bridge) Thinking(text string) {
	b.mu.Lock()
	b.turn.Thinking += text
	b.mu.Unlock()

	b.emit(models.StreamEvent{Type: models.EventThinking, Data: models.ThinkingData{Text: text}})
	b.maybeFlush()
}

// TextDelta accumulates narrative text on the turn and streams it.
func (b *Bridge) TextDelta(delta string) {
	b.mu.Lock()
	b.turn.Text += delta
	b.mu.Unlock()

	b.emit(models.StreamEvent{Type: models.EventTextDelta, Data: models.TextDeltaData{Delta: delta}})
	b.maybeFlush()
}

// ToolStart streams the invocation announcement. Nothing to persist yet.
func (b *Bridge) ToolStart(tool, displayName string, args map[string]any) {
	b.emit(models.StreamEvent{Type: models.EventToolStart, Data: models.ToolStartData{
		Tool:        tool,
		DisplayName: displayName,
		Arguments:   models.RedactLarge(args),
	}})
}

// ToolResult appends to the turn's audit log and streams the outcome.
func (b *Bridge) ToolResult(tool string, args map[string]any, result models.ToolResult) {
	invocation := models.ToolInvocation{
		Tool:      tool,
		Arguments: models.RedactLarge(args),
		Result:    result.Lean(),
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.toolLog = append(b.toolLog, invocation)
	b.turn.SetToolCalls(b.toolLog)
	conversationID, turnID := b.turn.ConversationID, b.turn.TurnID
	b.mu.Unlock()

	if b.Traces != nil {
		trace := &stores.ToolTrace{
			ConversationID: conversationID,
			TurnID:         turnID,
			Tool:           tool,
			Success:        result.Success,
			Arguments:      invocation.Arguments,
			Result:         invocation.Result,
			Timestamp:      invocation.Timestamp,
		}
		if err := b.Traces.SaveTrace(trace); err != nil {
			b.Logger.Printf("failed to record trace for %s on turn %s: %v", tool, turnID, err)
		}
	}

	b.emit(models.StreamEvent{Type: models.EventToolResult, Data: models.ToolResultData{
		Tool:      tool,
		Arguments: models.RedactLarge(args),
		Result: models.ToolResultInfo{
			Success:   result.Success,
			Message:   result.Message,
			HasImages: len(result.Images) > 0,
		},
	}})
	b.maybeFlush()
}

// Image persists the payload and records the durable URL on the turn
// before any client sees the event. The returned URL is what the rest of
// the run references the image by.
func (b *Bridge) Image(id string, data []byte, mimeType, knownURL string) (string, error) {
	if len(data) == 0 && knownURL == "" {
		return "", fmt.Errorf("image %s has neither payload nor URL", id)
	}

	url := knownURL
	if len(data) > 0 {
		saved, err := b.Media.SaveImage(id, data, mimeType)
		if err != nil {
			return "", err
		}
		url = saved
	}

	b.mu.Lock()
	b.generated = append(b.generated, url)
	b.turn.SetGeneratedURLs(b.generated)
	b.mu.Unlock()

	// An image is the most expensive artifact of a run; flush the turn
	// immediately rather than waiting out the throttle window.
	b.flush()

	b.emit(models.StreamEvent{Type: models.EventImage, Data: models.ImageData{
		ID:       id,
		URL:      url,
		MIMEType: mimeType,
	}})
	return url, nil
}

// Conversation announces a freshly assigned conversation id.
func (b *Bridge) Conversation(conversationID string) {
	b.emit(models.StreamEvent{Type: models.EventConversation, Data: models.ConversationData{ConversationID: conversationID}})
}

// Finish marks the turn sent, flushes it, and terminates the stream.
func (b *Bridge) Finish(conversationID string) {
	b.mu.Lock()
	b.turn.Status = stores.StatusSent
	messageID := b.turn.TurnID
	b.mu.Unlock()

	b.flush()
	b.emit(models.StreamEvent{Type: models.EventDone, Data: models.DoneData{
		ConversationID: conversationID,
		MessageID:      messageID,
	}})
	b.StopHeartbeat()
}

// Fail marks the turn failed, flushes whatever content accumulated, and
// terminates the stream with an error event.
func (b *Bridge) Fail(message string) {
	b.mu.Lock()
	b.turn.Status = stores.StatusFailed
	b.mu.Unlock()

	b.flush()
	b.emit(models.StreamEvent{Type: models.EventError, Data: models.ErrorData{Message: message}})
	b.StopHeartbeat()
}

func (b *Bridge) emit(event models.StreamEvent) {
	b.mu.Lock()
	down := b.disconnected
	b.mu.Unlock()
	if down {
		return
	}
	if err := b.Writer.WriteEvent(event); err != nil {
		b.markDisconnected(err)
	}
}

func (b *Bridge) markDisconnected(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.disconnected {
		b.disconnected = true
		b.Logger.Printf("write failed for turn %s, treating client as gone: %v", b.turn.TurnID, err)
	}
}

// maybeFlush persists the turn when the throttle window has elapsed.
func (b *Bridge) maybeFlush() {
	b.mu.Lock()
	due := time.Since(b.lastFlush) >= b.FlushInterval
	b.mu.Unlock()
	if due {
		b.flush()
	}
}

func (b *Bridge) flush() {
	b.mu.Lock()
	turn := *b.turn
	b.lastFlush = time.Now()
	b.mu.Unlock()

	if err := b.Store.UpdateTurn(&turn); err != nil {
		b.Logger.Printf("failed to flush turn %s: %v", turn.TurnID, err)
	}
}
