package services

// Outbound session frames share a "type" discriminator and a trace id that
// correlates every event of one logical request. The shapes below are the
// wire contract consumed by the web client.
const (
	EventTypeStart = "start"
	EventTypeChunk = "chunk"
	EventTypeError = "error"
	EventTypeDone  = "done"
)

// StartEvent announces that generation began and how many stored
// interactions were folded into the prompt.
type StartEvent struct {
	Type        string `json:"type"`
	ContextUsed int    `json:"context_used"`
	TraceID     string `json:"trace_id"`
}

// ChunkEvent carries one streamed response fragment.
type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	TraceID string `json:"trace_id"`
}

// ErrorEvent reports a failed request. The session stays open afterwards.
type ErrorEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	TraceID string `json:"trace_id"`
}

// DoneEvent terminates a successful request with the accumulated full text.
type DoneEvent struct {
	Type     string `json:"type"`
	FullText string `json:"full_text"`
	TraceID  string `json:"trace_id"`
}

func newStartEvent(contextUsed int, traceID string) StartEvent {
	return StartEvent{Type: EventTypeStart, ContextUsed: contextUsed, TraceID: traceID}
}

func newChunkEvent(content, traceID string) ChunkEvent {
	return ChunkEvent{Type: EventTypeChunk, Content: content, TraceID: traceID}
}

func newErrorEvent(content, traceID string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Content: content, TraceID: traceID}
}

func newDoneEvent(fullText, traceID string) DoneEvent {
	return DoneEvent{Type: EventTypeDone, FullText: fullText, TraceID: traceID}
}
