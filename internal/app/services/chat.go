package services

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"command-deck-server-go/internal/domain/eventbus"
	"command-deck-server-go/internal/domain/generation"
	"command-deck-server-go/internal/domain/memory"
	"command-deck-server-go/internal/platform/errors"
	"command-deck-server-go/internal/platform/logging"
)

// SessionConn is the transport surface one chat session drives: a frame
// reader, a serialized text writer, and a close hook.
type SessionConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteText(data []byte) error
	Close() error
}

// Streamer is the slice of the rotating generation client the session uses.
type Streamer interface {
	Stream(ctx context.Context, userID uint, prompt string, contextItems []string) (<-chan generation.StreamChunk, error)
}

// ContextStore is the memory collaborator: bounded relevance retrieval plus
// interaction persistence.
type ContextStore interface {
	RetrieveContext(ctx context.Context, userID uint, query string, limit int) ([]memory.ContextItem, error)
	AddInteraction(ctx context.Context, userID uint, prompt, response string) (string, error)
}

// RiskFilter screens prompts before they reach the generation pipeline.
type RiskFilter interface {
	Analyze(prompt string) (bool, string)
}

// ChatService drives one websocket session's message loop: read a prompt,
// screen it, stream the generated response back as events, persist the
// finished interaction. Requests are handled one at a time in arrival
// order; business failures emit an error event and the loop keeps
// listening. Only a transport failure or shutdown ends the session.
type ChatService struct {
	logger *logging.Logger
	conn   SessionConn
	client Streamer
	memory ContextStore
	filter RiskFilter

	sessionID    string
	userID       uint
	contextLimit int

	ctx    context.Context
	cancel context.CancelFunc
}

// ChatConfig carries the collaborators for a single chat session.
type ChatConfig struct {
	SessionID    string
	UserID       uint
	Conn         SessionConn
	Client       Streamer
	Memory       ContextStore
	Filter       RiskFilter
	Logger       *logging.Logger
	ContextLimit int
}

// NewChatService builds the session controller for one connection.
func NewChatService(cfg *ChatConfig) *ChatService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatService{
		logger:       cfg.Logger,
		conn:         cfg.Conn,
		client:       cfg.Client,
		memory:       cfg.Memory,
		filter:       cfg.Filter,
		sessionID:    cfg.SessionID,
		userID:       cfg.UserID,
		contextLimit: cfg.ContextLimit,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// GetSessionID exposes the session identifier.
func (s *ChatService) GetSessionID() string {
	return s.sessionID
}

// Close cancels the in-flight generation, if any, and unblocks the loop.
// Safe to call more than once and concurrently with Handle.
func (s *ChatService) Close() {
	s.cancel()
}

// Handle runs the session loop until the transport disconnects. Frames
// without a usable prompt field are ignored silently.
func (s *ChatService) Handle() {
	defer s.cancel()

	eventbus.PublishAsync(eventbus.EventSessionOpened, eventbus.SessionEventData{
		SessionID: s.sessionID,
		UserID:    s.userID,
	})
	defer eventbus.PublishAsync(eventbus.EventSessionClosed, eventbus.SessionEventData{
		SessionID: s.sessionID,
		UserID:    s.userID,
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.DebugTag("Chat", "session read loop ended", map[string]interface{}{
				"session_id": s.sessionID,
				"error":      err.Error(),
			})
			return
		}

		prompt, ok := extractPrompt(data)
		if !ok {
			s.logger.DebugTag("Chat", "frame without prompt ignored", map[string]interface{}{
				"session_id": s.sessionID,
			})
			continue
		}

		if err := s.respond(s.ctx, prompt); err != nil {
			// Write failure or shutdown; the deferred cancel stops any producer.
			s.logger.DebugTag("Chat", "session ended mid-request", map[string]interface{}{
				"session_id": s.sessionID,
				"error":      err.Error(),
			})
			return
		}
	}
}

// respond runs one logical request end to end. A nil return means the
// session should keep listening; an error means the transport is gone.
func (s *ChatService) respond(ctx context.Context, prompt string) error {
	traceID := uuid.NewString()

	if ok, reason := s.filter.Analyze(prompt); !ok {
		s.logger.WarnTag("Chat", "prompt rejected by risk filter", map[string]interface{}{
			"session_id": s.sessionID,
			"user_id":    s.userID,
			"trace_id":   traceID,
			"reason":     reason,
		})
		return s.writeEvent(newErrorEvent(reason, traceID))
	}

	contextItems, err := s.memory.RetrieveContext(ctx, s.userID, prompt, s.contextLimit)
	if err != nil {
		// Degraded mode: answer without history rather than failing the request.
		s.logger.ErrorTag("Chat", "context retrieval failed", map[string]interface{}{
			"session_id": s.sessionID,
			"trace_id":   traceID,
			"error":      err.Error(),
		})
		contextItems = nil
	}
	contextTexts := make([]string, 0, len(contextItems))
	for _, item := range contextItems {
		contextTexts = append(contextTexts, item.Text())
	}

	if err := s.writeEvent(newStartEvent(len(contextTexts), traceID)); err != nil {
		return err
	}
	eventbus.PublishAsync(eventbus.EventGenerationStarted, eventbus.GenerationEventData{
		TraceID:   traceID,
		SessionID: s.sessionID,
		UserID:    s.userID,
	})

	chunks, err := s.client.Stream(ctx, s.userID, prompt, contextTexts)
	if err != nil {
		return s.failRequest(traceID, err)
	}

	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return s.failRequest(traceID, chunk.Err)
		}
		full.WriteString(chunk.Text)
		if err := s.writeEvent(newChunkEvent(chunk.Text, traceID)); err != nil {
			s.cancel()
			return err
		}
	}

	if ctx.Err() != nil {
		// Disconnected mid-stream; nothing partial is persisted.
		return ctx.Err()
	}

	fullText := full.String()
	if _, err := s.memory.AddInteraction(ctx, s.userID, prompt, fullText); err != nil {
		s.logger.ErrorTag("Chat", "interaction persistence failed", map[string]interface{}{
			"session_id": s.sessionID,
			"trace_id":   traceID,
			"error":      err.Error(),
		})
	}

	if err := s.writeEvent(newDoneEvent(fullText, traceID)); err != nil {
		return err
	}

	eventbus.PublishAsync(eventbus.EventGenerationCompleted, eventbus.GenerationEventData{
		TraceID:   traceID,
		SessionID: s.sessionID,
		UserID:    s.userID,
		Chars:     len(fullText),
	})
	s.logger.InfoTag("Chat", "generation completed", map[string]interface{}{
		"session_id": s.sessionID,
		"trace_id":   traceID,
		"chars":      len(fullText),
	})
	return nil
}

// failRequest reports a failed request to the client. Quota and backend
// errors are business outcomes, so the returned error reflects only the
// event write.
func (s *ChatService) failRequest(traceID string, cause error) error {
	s.logger.WarnTag("Chat", "generation failed", map[string]interface{}{
		"session_id": s.sessionID,
		"user_id":    s.userID,
		"trace_id":   traceID,
		"error":      cause.Error(),
	})
	eventbus.PublishAsync(eventbus.EventGenerationError, eventbus.GenerationEventData{
		TraceID:   traceID,
		SessionID: s.sessionID,
		UserID:    s.userID,
		Error:     cause.Error(),
	})
	return s.writeEvent(newErrorEvent(errors.UserMessage(cause), traceID))
}

// writeEvent encodes one event and pushes it down the session's single
// write path.
func (s *ChatService) writeEvent(event any) error {
	data, err := sonic.Marshal(event)
	if err != nil {
		return err
	}
	return s.conn.WriteText(data)
}

// promptFields are the accepted inbound field names; first present wins.
var promptFields = []string{"prompt", "message", "text"}

// extractPrompt pulls the prompt out of an inbound frame. Frames that are
// not JSON objects or carry no non-blank prompt field report ok=false.
func extractPrompt(data []byte) (string, bool) {
	var frame map[string]any
	if err := sonic.Unmarshal(data, &frame); err != nil {
		return "", false
	}

	for _, field := range promptFields {
		value, ok := frame[field].(string)
		if ok && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}
